package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/terraconstructs/gatekeeper/internal/auth"
)

// Resolver authenticates a bearer token and checks scopes against the
// principal's effective permissions.
type Resolver interface {
	Resolve(ctx context.Context, token string, requiredScopes []string) (*auth.Principal, error)
}

// Gate binds endpoints to the scopes they require. The resolved principal is
// stored on the request context for handlers.
type Gate struct {
	resolver Resolver
	log      logrus.FieldLogger
}

// NewGate returns a gate over resolver. A nil logger discards output.
func NewGate(resolver Resolver, log logrus.FieldLogger) *Gate {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Gate{resolver: resolver, log: log}
}

// Require admits requests whose bearer token resolves to an active principal
// holding every scope. With no scopes it only requires authentication.
func (g *Gate) Require(scopes ...string) func(http.Handler) http.Handler {
	return g.require(false, scopes)
}

// RequireStaff is Require plus the admin console rule: the principal must be
// staff or a super user.
func (g *Gate) RequireStaff(scopes ...string) func(http.Handler) http.Handler {
	return g.require(true, scopes)
}

func (g *Gate) require(staff bool, scopes []string) func(http.Handler) http.Handler {
	required := append([]string(nil), scopes...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r)
			if !ok {
				WriteError(w, r, g.log, fmt.Errorf("%w: not authenticated", auth.ErrUnauthorized))
				return
			}

			principal, err := g.resolver.Resolve(r.Context(), token, required)
			if err != nil {
				g.log.WithError(err).WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
				}).Debug("request rejected by gate")
				WriteError(w, r, g.log, err)
				return
			}
			if staff && !principal.User.IsStaff && !principal.User.IsSuperUser {
				WriteError(w, r, g.log, fmt.Errorf("%w: staff access required", auth.ErrForbidden))
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.SetPrincipalContext(r.Context(), principal)))
		})
	}
}
