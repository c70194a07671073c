// Package auth extracts the caller identity from bearer tokens.
//
// Three token forms are accepted:
//   - the bot token itself, for the trusted alerting bot (service identity);
//   - "<user_id>:<bot token>", the bot acting on behalf of a user (service
//     identity carrying the user id, so target permissions still apply);
//   - an HS256 JWT with a numeric user_id claim (human identity).
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"pgsentry/internal/config"
	"pgsentry/internal/domain"
)

const identityKey = "pgsentry.identity"

// Claims are the JWT claims of an operator token.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens.
type Authenticator struct {
	secret   []byte
	botToken string
}

// NewAuthenticator creates an authenticator from the auth settings.
func NewAuthenticator(cfg *config.AuthConfig) *Authenticator {
	return &Authenticator{
		secret:   []byte(cfg.JWTSecret),
		botToken: cfg.BotToken,
	}
}

// Authenticate resolves the identity for an Authorization header value.
func (a *Authenticator) Authenticate(header string) (domain.Identity, error) {
	token, ok := bearerToken(header)
	if !ok {
		return domain.Identity{}, domain.ErrNoCredentials
	}

	if a.isBotToken(token) {
		return domain.ServiceIdentity(), nil
	}
	if prefix, rest, found := strings.Cut(token, ":"); found && a.isBotToken(rest) {
		if userID, err := strconv.ParseInt(prefix, 10, 64); err == nil {
			identity := domain.HumanIdentity(userID)
			identity.Service = true
			return identity, nil
		}
	}

	userID, err := a.parseJWT(token)
	if err != nil {
		return domain.Identity{}, domain.ErrIncorrectCredentials
	}
	return domain.HumanIdentity(userID), nil
}

func (a *Authenticator) isBotToken(token string) bool {
	return a.botToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.botToken)) == 1
}

func (a *Authenticator) parseJWT(token string) (int64, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}
	if !parsed.Valid || claims.UserID == 0 {
		return 0, errors.New("token has no user_id")
	}
	return claims.UserID, nil
}

// IssueToken signs an operator token for userID. A zero ttl issues a token
// without expiry.
func (a *Authenticator) IssueToken(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   "pgsentry",
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Middleware authenticates every request and stores the identity for
// handlers. Failures are returned to the app's error handler.
func (a *Authenticator) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := a.Authenticate(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return err
		}
		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// RequireService rejects callers that are not the service identity.
func RequireService() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IdentityFrom(c).Service {
			return domain.ErrNotEnoughPermissions
		}
		return c.Next()
	}
}

// IdentityFrom returns the identity stored by Middleware.
func IdentityFrom(c *fiber.Ctx) domain.Identity {
	identity, _ := c.Locals(identityKey).(domain.Identity)
	return identity
}
