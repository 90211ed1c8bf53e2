package http

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/strogmv/fanout/internal/domain"
	"github.com/strogmv/fanout/internal/pkg/auth"
	"github.com/strogmv/fanout/internal/pkg/errors"
	"github.com/strogmv/fanout/internal/pkg/rbac"
	"github.com/strogmv/fanout/internal/service"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

type claimsContextKey struct{}

func decodeJSONRequest(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return io.EOF
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(err error) error {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return errors.New(http.StatusBadRequest, "Validation Failed", strings.Join(fields, "; "))
	}
	return errors.New(http.StatusBadRequest, "Bad Request", "invalid JSON body")
}

// toAppError maps service errors onto HTTP problems. Unknown errors pass
// through and render as 500.
func toAppError(err error) error {
	switch {
	case stderrors.Is(err, domain.ErrUnresolved):
		return errors.Wrap(http.StatusUnprocessableEntity, "Unresolved Relation", err)
	case stderrors.Is(err, domain.ErrInvalidTransition):
		return errors.Wrap(http.StatusUnprocessableEntity, "Invalid Transition", err)
	case stderrors.Is(err, service.ErrReplayUnavailable):
		return errors.Wrap(http.StatusServiceUnavailable, "Service Unavailable", err)
	}
	return err
}

// AuthMiddleware verifies the bearer token and stores its claims in the context.
func AuthMiddleware(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				errors.WriteError(w, r, errors.New(http.StatusUnauthorized, "Unauthorized", "JWT token required"))
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				errors.WriteError(w, r, errors.New(http.StatusUnauthorized, "Unauthorized", "Invalid JWT"))
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = token[7:]
	}
	return strings.TrimSpace(token)
}

func CurrentClaims(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsContextKey{}).(*auth.Claims)
	return claims
}

func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := CurrentClaims(r)
			if claims == nil || !rbac.Any(claims.Roles, perm) {
				errors.WriteError(w, r, errors.New(http.StatusForbidden, "Forbidden", "Insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
