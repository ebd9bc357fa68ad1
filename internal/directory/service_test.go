package directory

import (
	"context"
	"errors"
	"testing"

	"qrattend/internal/blobstore"
	"qrattend/internal/qrtoken"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(blobstore.NewMemory(), qrtoken.NewCodec("test-secret"))
}

func TestCreateIssuesSignedQR(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	user, err := s.Create(ctx, NewUser{Name: "Alice", Email: "a@example.com", StudentID: "SV001", IsActive: true})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if user.ID == "" || user.QRCode == "" {
		t.Fatalf("id or qr payload missing: %+v", user)
	}
	if user.Role != RoleStudent {
		t.Errorf("role should default to student, got %q", user.Role)
	}

	dec := qrtoken.NewCodec("test-secret").Decode(user.QRCode)
	if dec.Kind != qrtoken.KindToken || dec.Token.UserID != user.ID {
		t.Fatalf("qr payload does not decode back to the user: %+v", dec)
	}
}

func TestCreateRejectsDuplicateIdentifiers(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if _, err := s.Create(ctx, NewUser{Name: "Alice", Email: "a@example.com", StudentID: "SV001"}); err != nil {
		t.Fatal(err)
	}
	_, err := s.Create(ctx, NewUser{Name: "Other", Email: "o@example.com", StudentID: "SV001"})
	var dup *DuplicateIDError
	if !errors.As(err, &dup) || dup.Field != "studentId" {
		t.Fatalf("expected studentId duplicate error, got %v", err)
	}

	if _, err := s.Create(ctx, NewUser{Name: "Binh", Email: "b@example.com", EmployeeID: "NV001", Role: RoleEmployee}); err != nil {
		t.Fatal(err)
	}
	_, err = s.Create(ctx, NewUser{Name: "Other", Email: "o2@example.com", EmployeeID: "NV001", Role: RoleEmployee})
	if !errors.As(err, &dup) || dup.Field != "employeeId" {
		t.Fatalf("expected employeeId duplicate error, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if _, err := s.Create(ctx, NewUser{Name: "", Email: "a@example.com"}); err == nil {
		t.Error("missing name should be rejected")
	}
	if _, err := s.Create(ctx, NewUser{Name: "A", Email: "a@example.com", Role: "wizard"}); err == nil {
		t.Error("unknown role should be rejected")
	}
}

func TestUpdateRegeneratesQR(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	user, err := s.Create(ctx, NewUser{Name: "Alice", Email: "a@example.com", StudentID: "SV001", IsActive: true})
	if err != nil {
		t.Fatal(err)
	}

	name := "Alice Tran"
	updated, err := s.UpdateUser(ctx, user.ID, Update{Name: &name})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name != "Alice Tran" {
		t.Errorf("name not updated: %q", updated.Name)
	}
	if updated.QRCode == "" {
		t.Error("qr payload missing after update")
	}
	// The regenerated payload still resolves to the same user id.
	dec := qrtoken.NewCodec("test-secret").Decode(updated.QRCode)
	if dec.Kind != qrtoken.KindToken || dec.Token.UserID != user.ID {
		t.Fatalf("regenerated payload wrong: %+v", dec)
	}
}

func TestUpdateRejectsDuplicateAndUnknown(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if _, err := s.Create(ctx, NewUser{Name: "Alice", Email: "a@example.com", StudentID: "SV001"}); err != nil {
		t.Fatal(err)
	}
	bob, err := s.Create(ctx, NewUser{Name: "Bob", Email: "b@example.com", StudentID: "SV002"})
	if err != nil {
		t.Fatal(err)
	}

	taken := "SV001"
	_, err = s.UpdateUser(ctx, bob.ID, Update{StudentID: &taken})
	var dup *DuplicateIDError
	if !errors.As(err, &dup) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if _, err := s.UpdateUser(ctx, "nope", Update{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	alice, err := s.Create(ctx, NewUser{Name: "Alice", Email: "a@example.com", StudentID: "SV001"})
	if err != nil {
		t.Fatal(err)
	}
	binh, err := s.Create(ctx, NewUser{Name: "Binh", Email: "b@example.com", EmployeeID: "NV001", Role: RoleEmployee})
	if err != nil {
		t.Fatal(err)
	}

	if u, _ := s.ByID(ctx, alice.ID); u == nil || u.Name != "Alice" {
		t.Errorf("ByID failed: %+v", u)
	}
	if u, _ := s.ByStudentID(ctx, "SV001"); u == nil || u.ID != alice.ID {
		t.Errorf("ByStudentID failed: %+v", u)
	}
	if u, _ := s.ByEmployeeID(ctx, "NV001"); u == nil || u.ID != binh.ID {
		t.Errorf("ByEmployeeID failed: %+v", u)
	}
	if u, _ := s.ByStudentID(ctx, "NV001"); u != nil {
		t.Errorf("employee id must not match as student id: %+v", u)
	}
	if u, _ := s.ByID(ctx, "ghost"); u != nil {
		t.Errorf("unknown id should return nil, got %+v", u)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	user, err := s.Create(ctx, NewUser{Name: "Alice", Email: "a@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if u, _ := s.ByID(ctx, user.ID); u != nil {
		t.Error("user still present after delete")
	}
	if err := s.Delete(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActiveAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if _, err := s.Create(ctx, NewUser{Name: "Alice Tran", Email: "alice@example.com", StudentID: "SV001", Department: "CNTT", IsActive: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, NewUser{Name: "Binh Le", Email: "binh@example.com", EmployeeID: "NV001", Role: RoleEmployee, IsActive: false}); err != nil {
		t.Fatal(err)
	}

	active, err := s.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Name != "Alice Tran" {
		t.Fatalf("active users = %+v", active)
	}

	for query, want := range map[string]string{
		"alice": "Alice Tran",
		"sv001": "Alice Tran",
		"cntt":  "Alice Tran",
		"nv001": "Binh Le",
	} {
		hits, err := s.Search(ctx, query)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 1 || hits[0].Name != want {
			t.Errorf("search %q = %+v, want %s", query, hits, want)
		}
	}
}
