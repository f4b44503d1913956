package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/banyan/banyan/internal/domain/task"
)

// SessionManager issues short-lived JWTs for the optional operator
// dashboard (SPEC_FULL.md §2.4) — a convenience layered on top of, not a
// replacement for, the Basic-token scheme every worker and provider
// request still authenticates with. Grounded directly on the issuance
// half of cklxx-elephant.ai's JWTTokenManager.GenerateAccessToken /
// ParseAccessToken.
type SessionManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewSessionManager builds a SessionManager. A zero ttl defaults to 15
// minutes, matching the teacher's default access-token TTL.
func NewSessionManager(secret, issuer string, ttl time.Duration) *SessionManager {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &SessionManager{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Claims carries the identity a dashboard session token asserts.
type Claims struct {
	UserID    string
	Name      string
	Role      task.Role
	ExpiresAt time.Time
}

// Issue signs a session token for an already-authenticated user.
func (m *SessionManager) Issue(u *task.User) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, errors.New("auth: session secret not configured")
	}
	expiresAt := time.Now().Add(m.ttl)
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"name": u.Name,
		"role": string(u.Role),
		"exp":  expiresAt.Unix(),
		"iss":  m.issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse validates a session token and extracts its claims.
func (m *SessionManager) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("auth: invalid session token")
	}
	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	role, _ := claims["role"].(string)
	expValue, _ := claims["exp"].(float64)
	return Claims{
		UserID:    sub,
		Name:      name,
		Role:      task.ParseRole(role),
		ExpiresAt: time.Unix(int64(expValue), 0),
	}, nil
}
