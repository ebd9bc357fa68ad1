package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"qrattend/internal/blobstore"
	"qrattend/internal/directory"
	"qrattend/internal/qrtoken"
)

func newTestScanner(t *testing.T) (*Scanner, *directory.Service, *Store) {
	t.Helper()
	bs := blobstore.NewMemory()
	codec := qrtoken.NewCodec("test-secret")
	dir := directory.NewService(bs, codec)
	store := NewStore(bs)
	return NewScanner(codec, dir, store), dir, store
}

func TestScanStructuredToken(t *testing.T) {
	ctx := context.Background()
	scanner, dir, _ := newTestScanner(t)

	user, err := dir.Create(ctx, directory.NewUser{
		Name: "Alice Tran", Email: "alice@example.com", StudentID: "SV001", IsActive: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	rec, err := scanner.Scan(ctx, user.QRCode, CheckIn, "lab 2", "")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if rec.UserID != user.ID {
		t.Errorf("user id = %q, want %q", rec.UserID, user.ID)
	}
	if rec.User == nil || rec.User.Name != "Alice Tran" {
		t.Errorf("expected attached user, got %+v", rec.User)
	}
	if rec.RawID != "SV001" {
		t.Errorf("raw id = %q, want the student id", rec.RawID)
	}
	if rec.Location != "lab 2" {
		t.Errorf("location = %q", rec.Location)
	}
}

func TestScanLegacyMatchesDirectory(t *testing.T) {
	ctx := context.Background()
	scanner, dir, _ := newTestScanner(t)

	user, err := dir.Create(ctx, directory.NewUser{
		Name: "Binh Le", Email: "binh@example.com", EmployeeID: "NV007",
		Role: directory.RoleEmployee, IsActive: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	rec, err := scanner.Scan(ctx, "attend:NV007", CheckIn, "", "")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if rec.UserID != user.ID {
		t.Errorf("employee id lookup failed, record user = %q", rec.UserID)
	}
}

func TestScanLegacyUnmatched(t *testing.T) {
	ctx := context.Background()
	scanner, _, _ := newTestScanner(t)

	rec, err := scanner.Scan(ctx, "ATTEND:SV001", CheckIn, "", "")
	if err != nil {
		t.Fatalf("unmatched legacy scan must still record: %v", err)
	}
	if rec.UserID != "legacy:SV001" {
		t.Errorf("user id = %q, want legacy:SV001", rec.UserID)
	}
	if rec.User != nil {
		t.Errorf("no user should be attached")
	}
}

func TestScanInactiveUser(t *testing.T) {
	ctx := context.Background()
	scanner, dir, _ := newTestScanner(t)

	user, err := dir.Create(ctx, directory.NewUser{
		Name: "Cuc Pham", Email: "cuc@example.com", StudentID: "SV100", IsActive: false,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := scanner.Scan(ctx, user.QRCode, CheckIn, "", ""); !errors.Is(err, ErrInactiveUser) {
		t.Fatalf("structured scan: expected ErrInactiveUser, got %v", err)
	}
	if _, err := scanner.Scan(ctx, "ATTEND:SV100", CheckIn, "", ""); !errors.Is(err, ErrInactiveUser) {
		t.Fatalf("legacy scan: expected ErrInactiveUser, got %v", err)
	}
}

func TestScanUnknownTokenUser(t *testing.T) {
	ctx := context.Background()
	scanner, _, _ := newTestScanner(t)
	codec := qrtoken.NewCodec("test-secret")

	payload, err := codec.Issue("ghost-user")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := scanner.Scan(ctx, payload, CheckIn, "", ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestScanTamperedTokenFallsBack(t *testing.T) {
	ctx := context.Background()
	scanner, _, _ := newTestScanner(t)

	tok := qrtoken.Token{UserID: "u1", Type: qrtoken.TypeTag, Signature: "deadbeef"}
	b, _ := json.Marshal(tok)
	// The tampered payload matches neither format, so the scan is invalid.
	if _, err := scanner.Scan(ctx, string(b), CheckIn, "", ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestScanInvalidText(t *testing.T) {
	ctx := context.Background()
	scanner, _, _ := newTestScanner(t)

	for _, raw := range []string{"", "hello world", "ATTEND:"} {
		if _, err := scanner.Scan(ctx, raw, CheckIn, "", ""); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%q: expected ErrInvalidToken, got %v", raw, err)
		}
	}
}

func TestScanDuplicateMessageNamesTime(t *testing.T) {
	ctx := context.Background()
	scanner, dir, _ := newTestScanner(t)

	user, err := dir.Create(ctx, directory.NewUser{
		Name: "Alice Tran", Email: "alice@example.com", StudentID: "SV001", IsActive: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	first, err := scanner.Scan(ctx, user.QRCode, CheckIn, "", "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = scanner.Scan(ctx, user.QRCode, CheckIn, "", "")
	if err == nil {
		t.Fatal("second check-in should fail")
	}
	if !strings.Contains(err.Error(), first.TimeDisplay()) {
		t.Errorf("error %q should name the first record's time %s", err, first.TimeDisplay())
	}
}
