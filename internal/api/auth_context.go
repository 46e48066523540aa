package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/toollender/toollender/internal/domain"
	domainerrors "github.com/toollender/toollender/internal/errors"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

// subjectKey is the context key for the authenticated subject.
const subjectKey ctxKey = "subject"

// Authenticator resolves a bearer token to the signed-in subject.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Subject, error)
}

// GetSubject returns the authenticated subject from context.
// Returns 401 error if the caller is not signed in.
func GetSubject(ctx context.Context) (domain.Subject, error) {
	subject, ok := ctx.Value(subjectKey).(domain.Subject)
	if !ok || subject.ID == "" {
		return domain.Subject{}, huma.Error401Unauthorized("Authentication required")
	}
	return subject, nil
}

// GetUserID returns the authenticated subject ID from context.
func GetUserID(ctx context.Context) (string, error) {
	subject, err := GetSubject(ctx)
	if err != nil {
		return "", err
	}
	return subject.ID, nil
}

// setSubject stores the subject in context.
func setSubject(ctx context.Context, subject domain.Subject) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// authMiddleware returns a middleware that validates Bearer tokens and stores the subject in context.
// If no token is present or invalid, continues without subject in context.
// Handlers use GetSubject to check authentication.
func authMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			subject, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				// Invalid token - continue without subject (handler will reject if auth required)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(setSubject(r.Context(), subject)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// requireOwner returns 403 unless the signed-in subject is ownerID.
func requireOwner(ctx context.Context, ownerID string) (domain.Subject, error) {
	subject, err := GetSubject(ctx)
	if err != nil {
		return domain.Subject{}, err
	}
	if subject.ID != ownerID {
		return domain.Subject{}, domainerrors.Forbidden("Only the owner can change this tool")
	}
	return subject, nil
}
