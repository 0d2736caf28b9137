package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ResultKey holds the caller's Result in the gin context.
const ResultKey = "auth_result"

// Middleware adapts a Service to gin. A nil Service lets every request
// through.
type Middleware struct {
	svc *Service
}

func NewMiddleware(svc *Service) *Middleware {
	return &Middleware{svc: svc}
}

func (m *Middleware) Enabled() bool { return m != nil && m.svc != nil }

// Authenticate accepts a bearer token, basic credentials, or an access_token
// query parameter (for websocket clients that cannot set headers).
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}
		res, err := m.authenticate(c.Request)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="servcur"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(ResultKey, res)
		c.Next()
	}
}

// Require rejects callers whose roles do not grant the request's action on
// resource. GET and HEAD are reads; every other method is a write.
func (m *Middleware) Require(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}
		v, ok := c.Get(ResultKey)
		res, isResult := v.(Result)
		if !ok || !isResult {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		action := ActionWrite
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead:
			action = ActionRead
		}
		if !Allowed(res.Roles, resource, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.Next()
	}
}

func (m *Middleware) authenticate(r *http.Request) (Result, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return m.svc.Verify(strings.TrimSpace(parts[1]))
		}
	}
	if user, pass, ok := r.BasicAuth(); ok {
		return m.svc.Check(user, pass)
	}
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return m.svc.Verify(tok)
	}
	return Result{}, ErrInvalidCredentials
}
