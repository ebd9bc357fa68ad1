package attendance

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// CSV headers match the historical export format consumed by existing
// spreadsheets, hence the Vietnamese column names.
var (
	recordHeaders  = []string{"Tên", "MSSV/Mã NV", "Email", "Chức vụ", "Phòng ban", "Loại", "Ngày", "Giờ", "Địa điểm", "Ghi chú", "Timestamp"}
	sessionHeaders = []string{"Ngày", "Tên", "MSSV/Mã NV", "Giờ vào", "Giờ ra", "Tổng giờ", "Trạng thái"}
)

var sessionStatusLabels = map[string]string{
	"complete": "Hoàn thành",
	"partial":  "Chưa checkout",
	"missing":  "Không có dữ liệu",
}

// ExportRecordsCSV serializes the full log, most recent first. Every field
// is quoted. Returns "" when the log is empty.
func (s *Store) ExportRecordsCSV(ctx context.Context) (string, error) {
	records, err := s.loadRecords(ctx)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}

	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, recordHeaders)
	for _, r := range records {
		name, email, role, dept := "N/A", "N/A", "N/A", "N/A"
		if r.User != nil {
			name, email = r.User.Name, r.User.Email
			role = string(r.User.Role)
			if r.User.Department != "" {
				dept = r.User.Department
			}
		}
		label := "Ra"
		if r.Kind == CheckIn {
			label = "Vào"
		}
		rows = append(rows, []string{
			name, r.RawID, email, role, dept, label,
			r.DateDisplay(), r.TimeDisplay(), r.Location, r.Notes,
			r.Timestamp.Format(time.RFC3339),
		})
	}
	return quoteAll(rows), nil
}

// ExportSessionsCSV serializes the session table. Returns "" when empty.
func (s *Store) ExportSessionsCSV(ctx context.Context) (string, error) {
	sessions, err := s.loadSessions(ctx)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", nil
	}

	rows := make([][]string, 0, len(sessions)+1)
	rows = append(rows, sessionHeaders)
	for _, sess := range sessions {
		name, rawID := "N/A", "N/A"
		if r := firstRecord(sess); r != nil {
			if r.User != nil {
				name = r.User.Name
			}
			rawID = r.RawID
		}
		var inTime, outTime, hours string
		if sess.CheckIn != nil {
			inTime = sess.CheckIn.TimeDisplay()
		}
		if sess.CheckOut != nil {
			outTime = sess.CheckOut.TimeDisplay()
		}
		if sess.TotalHours != nil {
			hours = strconv.FormatFloat(*sess.TotalHours, 'f', -1, 64)
		}
		rows = append(rows, []string{
			sess.Date, name, rawID, inTime, outTime, hours,
			sessionStatusLabels[sess.Status()],
		})
	}
	return quoteAll(rows), nil
}

func firstRecord(s Session) *Record {
	if s.CheckIn != nil {
		return s.CheckIn
	}
	return s.CheckOut
}

// quoteAll renders rows with every field quoted, doubling embedded quotes.
func quoteAll(rows [][]string) string {
	var sb strings.Builder
	for i, row := range rows {
		if i > 0 {
			sb.WriteByte('\n')
		}
		for j, field := range row {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('"')
			sb.WriteString(strings.ReplaceAll(field, `"`, `""`))
			sb.WriteByte('"')
		}
	}
	return sb.String()
}
