// Package guard decides whether a dashboard destination may be shown for
// the current session or must redirect.
package guard

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Destinations known to the dashboard.
const (
	PathLogin     = "/login"
	PathDashboard = "/dashboard"
	PathHistory   = "/history"
	PathAnalysis  = "/analysis/{id}"
)

// Authenticator is the single capability the guard depends on.
type Authenticator interface {
	Authenticated() bool
}

// Action is the outcome of resolving a destination.
type Action int

const (
	Permit Action = iota
	Redirect
)

func (a Action) String() string {
	switch a {
	case Permit:
		return "permit"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision tells the caller what to render. Target is the requested path
// for Permit and the redirect location for Redirect.
type Decision struct {
	Action Action
	Target string
}

// Guard holds the route table. It keeps no session state of its own.
type Guard struct {
	auth       Authenticator
	public     *chi.Mux
	privileged *chi.Mux
}

// New builds a Guard over the dashboard's route table.
func New(auth Authenticator) *Guard {
	noop := func(http.ResponseWriter, *http.Request) {}

	public := chi.NewRouter()
	public.Get(PathLogin, noop)

	privileged := chi.NewRouter()
	privileged.Get(PathDashboard, noop)
	privileged.Get(PathHistory, noop)
	privileged.Get(PathAnalysis, noop)

	return &Guard{auth: auth, public: public, privileged: privileged}
}

// Resolve decides whether path may be shown for the current session.
// Unknown paths redirect to the dashboard rather than failing.
func (g *Guard) Resolve(path string) Decision {
	switch {
	case g.public.Match(chi.NewRouteContext(), http.MethodGet, path):
		return Decision{Action: Permit, Target: path}
	case g.privileged.Match(chi.NewRouteContext(), http.MethodGet, path):
		if !g.auth.Authenticated() {
			return Decision{Action: Redirect, Target: PathLogin}
		}
		return Decision{Action: Permit, Target: path}
	default:
		return Decision{Action: Redirect, Target: PathDashboard}
	}
}

// Privileged reports whether path is a known destination that needs a session.
func (g *Guard) Privileged(path string) bool {
	return g.privileged.Match(chi.NewRouteContext(), http.MethodGet, path)
}

// AnalysisPath returns the detail destination for an analysis id.
func AnalysisPath(id string) string {
	return "/analysis/" + id
}
