package directory

import "time"

// Role classifies a directory user.
type Role string

const (
	RoleStudent  Role = "student"
	RoleTeacher  Role = "teacher"
	RoleEmployee Role = "employee"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleEmployee:
		return true
	}
	return false
}

// User is a directory entry. QRCode is derived: a signed payload encoding
// the id, regenerated whenever user data changes.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	StudentID  string    `json:"studentId,omitempty"`
	EmployeeID string    `json:"employeeId,omitempty"`
	Role       Role      `json:"role"`
	Department string    `json:"department,omitempty"`
	QRCode     string    `json:"qrCode"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}
