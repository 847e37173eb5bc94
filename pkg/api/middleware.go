package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Authenticator resolves the owner identity of a request. Credential
// verification lives outside this service; the default implementation
// trusts an identity header set by the fronting proxy.
type Authenticator interface {
	Identify(r *http.Request) (string, error)
}

// DefaultIdentityHeader is the header the HeaderAuthenticator reads
const DefaultIdentityHeader = "X-Sayra-User"

// anonymousOwner is used when no identity header is present
const anonymousOwner = "anonymous"

// HeaderAuthenticator identifies callers by a trusted request header
type HeaderAuthenticator struct {
	Header string
}

// Identify returns the header value, or the anonymous owner when the
// header is absent
func (a *HeaderAuthenticator) Identify(r *http.Request) (string, error) {
	header := a.Header
	if header == "" {
		header = DefaultIdentityHeader
	}
	if owner := r.Header.Get(header); owner != "" {
		return owner, nil
	}
	return anonymousOwner, nil
}

type contextKey string

const (
	ownerKey     contextKey = "owner"
	requestIDKey contextKey = "requestId"
)

// OwnerFromContext returns the owner identity attached by the
// identity middleware
func OwnerFromContext(ctx context.Context) string {
	if owner, ok := ctx.Value(ownerKey).(string); ok {
		return owner
	}
	return anonymousOwner
}

// RequestIDFromContext returns the request id attached by the request
// id middleware
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// withRequestID assigns each request a correlation id, echoed in the
// X-Request-Id response header
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withIdentity resolves the owner identity and attaches it to the
// request context
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := s.authenticator.Identify(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
			return
		}

		ctx := context.WithValue(r.Context(), ownerKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
