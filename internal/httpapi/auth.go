package httpapi

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/bannerdesk/internal/config"
)

const (
	SessionCookie = "bannerdesk_session"
	sessionIssuer = "bannerdesk"
	adminSubject  = "admin"
)

var errUnauthorized = errors.New("unauthorized")

type principalKeyType struct{}

var principalKey = principalKeyType{}

type Principal struct {
	ID        string
	Source    string
	ExpiresAt time.Time
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// Sessions issues and verifies HS256 admin session tokens. A token is
// accepted until it expires, even if the PIN changes in between.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions signs with secret. An empty secret gets a random per-process
// key, so tokens do not survive a restart.
func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = config.DefaultSessionTTL
	}
	return &Sessions{secret: key, ttl: ttl, now: time.Now}, nil
}

func (s *Sessions) Issue() (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		Subject:   adminSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, expires, nil
}

func (s *Sessions) Verify(token string) (*Principal, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithSubject(adminSubject), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, errUnauthorized
	}
	p := &Principal{ID: claims.Subject, Source: "session"}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

func (s *Server) authMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch s.cfg.AuthMode {
			case config.AuthNone:
				ctx := WithPrincipal(r.Context(), &Principal{ID: "anonymous", Source: "none"})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			case config.AuthPIN:
				token := sessionToken(r)
				if token == "" {
					writeError(w, http.StatusUnauthorized, "unauthorized", "missing session", nil)
					return
				}
				p, err := s.sessions.Verify(token)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired session", nil)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
				return
			default:
				writeError(w, http.StatusUnauthorized, "unauthorized", "auth mode not supported", nil)
				return
			}
		})
	}
}

func sessionToken(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
