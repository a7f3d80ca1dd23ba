package api

import (
	"net/http"

	"github.com/DaewiLF/MinerIA/internal/session"
)

// AuthTransport stamps the current session token on every outgoing request.
// Without a session the request is sent as-is and the server decides.
// It never retries and never touches the request body.
type AuthTransport struct {
	Base    http.RoundTripper // nil means http.DefaultTransport
	Session session.Reader

	// OnUnauthorized, when set, runs after a 401 response.
	OnUnauthorized func()
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if token := t.Session.Token(); token != "" {
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base().RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusUnauthorized && t.OnUnauthorized != nil {
		t.OnUnauthorized()
	}
	return resp, err
}

func (t *AuthTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
