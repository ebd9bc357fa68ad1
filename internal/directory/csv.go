package directory

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

var exportHeader = []string{"name", "email", "studentId", "employeeId", "role", "department", "isActive"}

// ExportCSV serializes the directory with a fixed header. Importing the
// result reproduces the same set of users (minus ids and QR payloads,
// which are regenerated).
func (s *Service) ExportCSV(ctx context.Context) (string, error) {
	users, err := s.load(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(exportHeader); err != nil {
		return "", err
	}
	for _, u := range users {
		row := []string{
			u.Name,
			u.Email,
			u.StudentID,
			u.EmployeeID,
			string(u.Role),
			u.Department,
			strconv.FormatBool(u.IsActive),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return sb.String(), w.Error()
}

// ImportResult reports the outcome of a CSV import batch.
type ImportResult struct {
	Success int      `json:"success"`
	Errors  []string `json:"errors"`
}

// ImportCSV creates users from CSV data. Column order is taken from the
// header row. Bad rows are collected as per-row errors and do not abort
// the batch.
func (s *Service) ImportCSV(ctx context.Context, data string) (ImportResult, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimSpace(data)))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return ImportResult{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return ImportResult{}, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		col[strings.TrimSpace(h)] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var res ImportResult
	for n, row := range rows[1:] {
		line := n + 2 // 1-based, counting the header
		// An absent isActive defaults to active; any other value must be
		// the literal "true".
		active := field(row, "isActive")
		in := NewUser{
			Name:       field(row, "name"),
			Email:      field(row, "email"),
			StudentID:  field(row, "studentId"),
			EmployeeID: field(row, "employeeId"),
			Role:       Role(field(row, "role")),
			Department: field(row, "department"),
			IsActive:   active == "" || active == "true",
		}
		if in.Name == "" || in.Email == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: name and email are required", line))
			continue
		}
		if _, err := s.Create(ctx, in); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		res.Success++
	}
	return res, nil
}
