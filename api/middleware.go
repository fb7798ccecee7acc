package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"fiberops/config"
	"fiberops/core/rbac"
)

type contextKey string

// callerContextKey holds the authenticated caller for the request.
const callerContextKey contextKey = "fiberops.caller"

// Caller is what token auth resolves a request to.
type Caller struct {
	Name  string
	Roles []string
}

func CallerFrom(ctx context.Context) *Caller {
	if v := ctx.Value(callerContextKey); v != nil {
		return v.(*Caller)
	}
	return nil
}

// parseTokenRoles builds the token table: the primary token gets admin,
// scoped tokens are "token=role1;role2" entries.
func parseTokenRoles(cfg *config.AppConfig) map[string][]string {
	tokens := make(map[string][]string)
	if t := strings.TrimSpace(cfg.APIToken); t != "" {
		tokens[t] = []string{"admin"}
	}
	for _, entry := range cfg.APITokens {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		var roles []string
		for _, role := range strings.Split(parts[1], ";") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
		if len(roles) > 0 {
			tokens[parts[0]] = roles
		}
	}
	return tokens
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if s.logger != nil {
					s.logger.Errorf("PANIC %s %s: %v\n%s", r.Method, r.URL.Path, rec, string(debug.Stack()))
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.logger != nil {
			caller := "-"
			if c := CallerFrom(r.Context()); c != nil {
				caller = c.Name
			}
			s.logger.Printf("RESP %s %s caller=%s status=%d dur=%s", r.Method, r.URL.Path, caller, rec.status, time.Since(start))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withToken authenticates the Bearer token and puts the caller on the
// context. Webhook routes skip this and authenticate by signature instead.
func (s *Server) withToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" || header == token {
			if s.logger != nil {
				s.logger.Printf("AUTH fail (missing token) %s %s", r.Method, r.URL.Path)
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		roles := s.lookupToken(token)
		if roles == nil {
			if s.logger != nil {
				s.logger.Printf("AUTH fail (bad token) %s %s", r.Method, r.URL.Path)
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		caller := &Caller{Name: strings.Join(roles, ","), Roles: roles}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerContextKey, caller)))
	}
}

func (s *Server) lookupToken(token string) []string {
	for candidate, roles := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return roles
		}
	}
	return nil
}

func (s *Server) requirePermission(perm rbac.Permission, next http.HandlerFunc) http.HandlerFunc {
	return s.withToken(func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFrom(r.Context())
		if caller == nil || !s.deps.Policy.Allowed(caller.Roles, perm) {
			if s.logger != nil {
				roles := []string(nil)
				if caller != nil {
					roles = caller.Roles
				}
				s.logger.Printf("PERM fail %s %s roles=%v need=%s", r.Method, r.URL.Path, roles, perm)
			}
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
