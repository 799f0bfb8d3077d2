package domain

import "strings"

// User is the dispatcher's view of the user directory.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Sector       string
	Privilege    int // 0 = regular, higher values widen visibility
	IsAdmin      bool
	Active       bool
	OnLeave      bool
	SupervisorID string
}

// FullName joins first and last name, tolerating either being empty.
func (u *User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}
