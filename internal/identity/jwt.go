package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is an authenticated caller
type Identity struct {
	ID   int64
	Name string
}

// Lookup resolves a credential to an identity
type Lookup interface {
	Lookup(ctx context.Context, credential string) (Identity, error)
}

// Claims carried by issued credentials; the subject is the identity id
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// JWT verifies and issues HS256 credentials
type JWT struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWT creates a JWT identity lookup
func NewJWT(secret, issuer string, ttl time.Duration) *JWT {
	return &JWT{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a credential for the identity
func (j *JWT) Issue(id int64, name string) (string, error) {
	if id <= 0 {
		return "", fmt.Errorf("identity id must be positive, got %d", id)
	}

	now := j.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			Issuer:    j.issuer,
		},
		Name: name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Lookup verifies the credential and returns the identity it was issued to
func (j *JWT) Lookup(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, fmt.Errorf("%w: missing credential", domain.ErrUnauthenticated)
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	},
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Identity{}, fmt.Errorf("%w: invalid subject", domain.ErrUnauthenticated)
	}

	return Identity{ID: id, Name: claims.Name}, nil
}
