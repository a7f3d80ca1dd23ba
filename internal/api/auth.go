package api

import (
	"context"
	"fmt"

	"github.com/DaewiLF/MinerIA/internal/session"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string       `json:"email"`
	Password string       `json:"password"`
	Role     session.Role `json:"role"`
}

// LoginResponse is the backend's answer to a successful login.
type LoginResponse struct {
	Token string           `json:"token"`
	User  session.Identity `json:"user"`
}

// Login exchanges credentials for a bearer token. Every failure wraps
// ErrAuthentication; the response is only meaningful when err is nil.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	resp, err := c.postJSON(ctx, "/auth/login", req)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	var out LoginResponse
	if err := decodeJSON(resp, &out); err != nil {
		return LoginResponse{}, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	if out.Token == "" {
		return LoginResponse{}, fmt.Errorf("%w: response carried no token", ErrAuthentication)
	}
	return out, nil
}
