package session

import "errors"

// Role is the operator role the backend authenticated.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
)

// Valid reports whether r is one of the roles the backend accepts at login.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleAnalyst
}

// Identity is the user record returned alongside a token at login.
type Identity struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Name  string `json:"name"`
}

// Session pairs a bearer token with the identity it authenticates.
type Session struct {
	Token    string
	Identity Identity
}

// ErrInvalidCredential is returned by Login when the token is empty.
var ErrInvalidCredential = errors.New("session: empty token")

// Storage keys, shared with the original web client's local storage layout.
const (
	keyToken = "token"
	keyUser  = "user"
)
