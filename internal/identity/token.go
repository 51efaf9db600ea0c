// Package identity resolves the acting user of a request from a signed bearer
// token. Issuing credentials (login, registration) happens elsewhere.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Actor is the user behind a request. TeamID is set for members.
type Actor struct {
	ID     uuid.UUID
	Role   string
	TeamID *uuid.UUID
}

func (a *Actor) IsAdmin() bool { return a != nil && a.Role == RoleAdmin }

// CanActForTeam reports whether the actor may spend or view the team's money.
func (a *Actor) CanActForTeam(teamID uuid.UUID) bool {
	if a == nil {
		return false
	}
	return a.IsAdmin() || (a.TeamID != nil && *a.TeamID == teamID)
}

// Provider turns a presented token into an Actor.
type Provider interface {
	Verify(ctx context.Context, token string) (*Actor, error)
}

type claims struct {
	jwt.RegisteredClaims
	Role   string `json:"role"`
	TeamID string `json:"team_id,omitempty"`
}

// JWTProvider verifies HS256 tokens signed with a shared secret.
type JWTProvider struct {
	secret []byte
	ttl    time.Duration
}

func NewJWTProvider(secret string, ttl time.Duration) (*JWTProvider, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTProvider{secret: []byte(secret), ttl: ttl}, nil
}

var _ Provider = (*JWTProvider)(nil)

// Issue signs a token for a. Used by operator tooling and tests.
func (p *JWTProvider) Issue(a Actor) (string, error) {
	if a.Role != RoleAdmin && a.Role != RoleMember {
		return "", fmt.Errorf("invalid role %q", a.Role)
	}
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: a.Role,
	}
	if a.TeamID != nil {
		c.TeamID = a.TeamID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(p.secret)
}

func (p *JWTProvider) Verify(_ context.Context, token string) (*Actor, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrUnauthenticated)
	}
	a := &Actor{ID: id, Role: c.Role}
	if a.Role != RoleAdmin && a.Role != RoleMember {
		return nil, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, c.Role)
	}
	if c.TeamID != "" {
		teamID, err := uuid.Parse(c.TeamID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad team", ErrUnauthenticated)
		}
		a.TeamID = &teamID
	}
	return a, nil
}
