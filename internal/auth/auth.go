package auth

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
)

// Claims carried by access tokens. The subject is the stable external id of
// the user; the username is used to provision the local account.
type Claims struct {
	Username string `json:"preferred_username"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated principal extracted from a token.
type Identity struct {
	Subject  string
	Username string
	Email    string
}

// Authenticator issues and verifies HS256 tokens.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for the identity.
func (a *Authenticator) Issue(id Identity) (string, error) {
	if id.Username == "" {
		return "", apperrors.Invalid("username is required")
	}
	subject := id.Subject
	if subject == "" {
		subject = id.Username
	}
	now := a.now()
	claims := Claims{
		Username: id.Username,
		Email:    id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// Parse verifies a token and returns its identity.
func (a *Authenticator) Parse(token string) (Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return Identity{}, errors.Wrapf(apperrors.ErrUnauthenticated, "invalid token: %v", err)
	}
	if claims.Username == "" {
		return Identity{}, errors.Wrap(apperrors.ErrUnauthenticated, "token has no username")
	}
	return Identity{Subject: claims.Subject, Username: claims.Username, Email: claims.Email}, nil
}

// UserResolver maps an authenticated identity to a local user, creating it
// on first sight.
type UserResolver interface {
	EnsureUser(ctx context.Context, id Identity) (*models.User, error)
}

const userKey = "auth.user"

// Middleware authenticates the bearer token and stores the resolved user in
// the request locals. onError renders failures.
func Middleware(a *Authenticator, users UserResolver, onError func(*fiber.Ctx, error) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return onError(c, errors.Wrap(apperrors.ErrUnauthenticated, "missing bearer token"))
		}
		id, err := a.Parse(strings.TrimSpace(token))
		if err != nil {
			return onError(c, err)
		}
		user, err := users.EnsureUser(c.UserContext(), id)
		if err != nil {
			return onError(c, err)
		}
		c.Locals(userKey, user)
		return c.Next()
	}
}

// CurrentUser returns the user stored by Middleware.
func CurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals(userKey).(*models.User)
	if !ok || user == nil {
		return nil, apperrors.ErrUnauthenticated
	}
	return user, nil
}
