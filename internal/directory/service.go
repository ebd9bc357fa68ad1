package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/blobstore"
	"qrattend/internal/qrtoken"
)

const usersKey = "app_users"

// ErrNotFound is returned when no user matches the requested id.
var ErrNotFound = errors.New("user not found")

// DuplicateIDError rejects a create or update that would reuse a student or
// employee identifier already present in the directory.
type DuplicateIDError struct {
	Field string // "studentId" or "employeeId"
	Value string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

// Service maintains the user directory on top of an injected blob store.
type Service struct {
	store blobstore.Store
	codec *qrtoken.Codec
	now   func() time.Time
}

// NewService creates a directory backed by store, issuing QR payloads
// through codec.
func NewService(store blobstore.Store, codec *qrtoken.Codec) *Service {
	return &Service{store: store, codec: codec, now: time.Now}
}

func (s *Service) load(ctx context.Context) ([]User, error) {
	b, err := s.store.Get(ctx, usersKey)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if b == nil {
		return nil, nil
	}
	var users []User
	if err := json.Unmarshal(b, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func (s *Service) save(ctx context.Context, users []User) error {
	b, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	if err := s.store.Set(ctx, usersKey, b); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

// NewUser carries the caller-supplied fields for Create.
type NewUser struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	StudentID  string `json:"studentId"`
	EmployeeID string `json:"employeeId"`
	Role       Role   `json:"role"`
	Department string `json:"department"`
	IsActive   bool   `json:"isActive"`
}

// Create adds a user, generating its id and signed QR payload. Student and
// employee identifiers must be unique across the directory.
func (s *Service) Create(ctx context.Context, in NewUser) (User, error) {
	if in.Name == "" || in.Email == "" {
		return User{}, errors.New("name and email are required")
	}
	if in.Role == "" {
		in.Role = RoleStudent
	}
	if !in.Role.Valid() {
		return User{}, fmt.Errorf("unknown role %q", in.Role)
	}

	users, err := s.load(ctx)
	if err != nil {
		return User{}, err
	}
	for _, u := range users {
		if in.StudentID != "" && u.StudentID == in.StudentID {
			return User{}, &DuplicateIDError{Field: "studentId", Value: in.StudentID}
		}
		if in.EmployeeID != "" && u.EmployeeID == in.EmployeeID {
			return User{}, &DuplicateIDError{Field: "employeeId", Value: in.EmployeeID}
		}
	}

	id := uuid.NewString()
	payload, err := s.codec.Issue(id)
	if err != nil {
		return User{}, fmt.Errorf("issue qr payload: %w", err)
	}
	user := User{
		ID:         id,
		Name:       in.Name,
		Email:      in.Email,
		StudentID:  in.StudentID,
		EmployeeID: in.EmployeeID,
		Role:       in.Role,
		Department: in.Department,
		QRCode:     payload,
		IsActive:   in.IsActive,
		CreatedAt:  s.now(),
	}

	users = append(users, user)
	if err := s.save(ctx, users); err != nil {
		return User{}, err
	}
	return user, nil
}

// Update carries partial changes; nil fields are left untouched.
type Update struct {
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	StudentID  *string `json:"studentId"`
	EmployeeID *string `json:"employeeId"`
	Role       *Role   `json:"role"`
	Department *string `json:"department"`
	IsActive   *bool   `json:"isActive"`
}

// UpdateUser applies changes to an existing user and regenerates its QR
// payload. Identifier uniqueness is re-checked against all other users.
func (s *Service) UpdateUser(ctx context.Context, id string, upd Update) (User, error) {
	users, err := s.load(ctx)
	if err != nil {
		return User{}, err
	}
	idx := -1
	for i := range users {
		if users[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return User{}, ErrNotFound
	}

	if upd.StudentID != nil && *upd.StudentID != "" {
		for i, u := range users {
			if i != idx && u.StudentID == *upd.StudentID {
				return User{}, &DuplicateIDError{Field: "studentId", Value: *upd.StudentID}
			}
		}
	}
	if upd.EmployeeID != nil && *upd.EmployeeID != "" {
		for i, u := range users {
			if i != idx && u.EmployeeID == *upd.EmployeeID {
				return User{}, &DuplicateIDError{Field: "employeeId", Value: *upd.EmployeeID}
			}
		}
	}

	u := users[idx]
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.StudentID != nil {
		u.StudentID = *upd.StudentID
	}
	if upd.EmployeeID != nil {
		u.EmployeeID = *upd.EmployeeID
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return User{}, fmt.Errorf("unknown role %q", *upd.Role)
		}
		u.Role = *upd.Role
	}
	if upd.Department != nil {
		u.Department = *upd.Department
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}

	payload, err := s.codec.Issue(u.ID)
	if err != nil {
		return User{}, fmt.Errorf("issue qr payload: %w", err)
	}
	u.QRCode = payload

	users[idx] = u
	if err := s.save(ctx, users); err != nil {
		return User{}, err
	}
	return u, nil
}

// Delete removes a user by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	users, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := users[:0]
	for _, u := range users {
		if u.ID != id {
			kept = append(kept, u)
		}
	}
	if len(kept) == len(users) {
		return ErrNotFound
	}
	return s.save(ctx, kept)
}

// All returns every user in creation order.
func (s *Service) All(ctx context.Context) ([]User, error) {
	return s.load(ctx)
}

// Active returns users able to check in or out.
func (s *Service) Active(ctx context.Context) ([]User, error) {
	users, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	var active []User
	for _, u := range users {
		if u.IsActive {
			active = append(active, u)
		}
	}
	return active, nil
}

// ByID resolves a user by its opaque id; (nil, nil) when absent.
func (s *Service) ByID(ctx context.Context, id string) (*User, error) {
	return s.find(ctx, func(u User) bool { return u.ID == id })
}

// ByStudentID resolves a user by student identifier; (nil, nil) when absent.
func (s *Service) ByStudentID(ctx context.Context, studentID string) (*User, error) {
	return s.find(ctx, func(u User) bool { return u.StudentID != "" && u.StudentID == studentID })
}

// ByEmployeeID resolves a user by employee identifier; (nil, nil) when absent.
func (s *Service) ByEmployeeID(ctx context.Context, employeeID string) (*User, error) {
	return s.find(ctx, func(u User) bool { return u.EmployeeID != "" && u.EmployeeID == employeeID })
}

func (s *Service) find(ctx context.Context, match func(User) bool) (*User, error) {
	users, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if match(users[i]) {
			u := users[i]
			return &u, nil
		}
	}
	return nil, nil
}

// Search matches query case-insensitively against name, email, identifiers
// and department.
func (s *Service) Search(ctx context.Context, query string) ([]User, error) {
	users, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var hits []User
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), q) ||
			strings.Contains(strings.ToLower(u.Email), q) ||
			(u.StudentID != "" && strings.Contains(strings.ToLower(u.StudentID), q)) ||
			(u.EmployeeID != "" && strings.Contains(strings.ToLower(u.EmployeeID), q)) ||
			(u.Department != "" && strings.Contains(strings.ToLower(u.Department), q)) {
			hits = append(hits, u)
		}
	}
	return hits, nil
}
