package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/GoCodeAlone/taskflow/internal/domain"
)

// Claims is the bearer token payload. The subject is the user ID; tokens
// minted with a userId claim instead are accepted too.
type Claims struct {
	Role   string `json:"role,omitempty"`
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// UserLookup loads the user a token names.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// Authenticator validates HS256 bearer tokens and resolves them to active
// users. The stored role is authoritative; the role claim is informational.
type Authenticator struct {
	secret []byte
	issuer string
	users  UserLookup
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string, users UserLookup, now func() time.Time) *Authenticator {
	if now == nil {
		now = time.Now
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, users: users, now: now}
}

// Authenticate resolves an Authorization header value to a user.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (domain.User, error) {
	if len(a.secret) == 0 {
		return domain.User{}, ErrAuthDisabled
	}
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return domain.User{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id := claims.Subject
	if id == "" {
		id = claims.UserID
	}
	if id == "" {
		return domain.User{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	user, err := a.users.GetUser(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("%w: unknown user", ErrInvalidToken)
	}
	if err != nil {
		return domain.User{}, err
	}
	if !user.Active {
		return domain.User{}, fmt.Errorf("%w: user inactive", ErrInvalidToken)
	}
	return user, nil
}

type ctxKey int

const userKey ctxKey = iota

func withUser(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFrom returns the authenticated user of a request context.
func UserFrom(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey).(domain.User)
	return u, ok
}

func actorFrom(r *http.Request) domain.Actor {
	u, _ := UserFrom(r.Context())
	return u.Actor()
}

func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			if statusFor(err) == http.StatusUnauthorized {
				s.logger.Debug("Rejected bearer token", "path", r.URL.Path, "error", err)
			}
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !actorFrom(r).IsAdmin() {
			s.writeError(w, r, ErrAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}
