package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"pgsentry/internal/config"
	"pgsentry/internal/domain"
)

const (
	testSecret   = "jwt-secret"
	testBotToken = "12345:bot-secret"
)

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(&config.AuthConfig{JWTSecret: testSecret, BotToken: testBotToken})
}

func TestAuthenticate(t *testing.T) {
	a := newTestAuthenticator()

	valid, err := a.IssueToken(42, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	expired, _ := a.IssueToken(42, -time.Hour)
	otherSecret, _ := NewAuthenticator(&config.AuthConfig{JWTSecret: "other"}).IssueToken(42, time.Hour)
	noUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte(testSecret))

	tests := []struct {
		name        string
		header      string
		wantErr     error
		wantService bool
		wantUser    int64
	}{
		{name: "no header", header: "", wantErr: domain.ErrNoCredentials},
		{name: "wrong scheme", header: "Basic abc", wantErr: domain.ErrNoCredentials},
		{name: "empty bearer", header: "Bearer ", wantErr: domain.ErrNoCredentials},
		{name: "bot token", header: "Bearer " + testBotToken, wantService: true},
		{name: "bot on behalf of user", header: "Bearer 7:" + testBotToken, wantService: true, wantUser: 7},
		{name: "bot with bad user prefix", header: "Bearer abc:" + testBotToken, wantErr: domain.ErrIncorrectCredentials},
		{name: "valid jwt", header: "Bearer " + valid, wantUser: 42},
		{name: "lowercase scheme", header: "bearer " + valid, wantUser: 42},
		{name: "expired jwt", header: "Bearer " + expired, wantErr: domain.ErrIncorrectCredentials},
		{name: "jwt with other secret", header: "Bearer " + otherSecret, wantErr: domain.ErrIncorrectCredentials},
		{name: "jwt without user", header: "Bearer " + noUser, wantErr: domain.ErrIncorrectCredentials},
		{name: "garbage", header: "Bearer not-a-token", wantErr: domain.ErrIncorrectCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := a.Authenticate(tt.header)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if identity.Service != tt.wantService {
				t.Errorf("Service = %v, want %v", identity.Service, tt.wantService)
			}
			if tt.wantUser != 0 && (identity.UserID == nil || *identity.UserID != tt.wantUser) {
				t.Errorf("UserID = %v, want %d", identity.UserID, tt.wantUser)
			}
		})
	}
}

func TestAuthenticate_EmptyBotTokenNeverMatches(t *testing.T) {
	a := NewAuthenticator(&config.AuthConfig{JWTSecret: testSecret})
	if _, err := a.Authenticate("Bearer 1:"); !errors.Is(err, domain.ErrIncorrectCredentials) {
		t.Errorf("Authenticate() error = %v, want ErrIncorrectCredentials", err)
	}
}

func TestMiddleware(t *testing.T) {
	a := newTestAuthenticator()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			switch {
			case errors.Is(err, domain.ErrNoCredentials), errors.Is(err, domain.ErrIncorrectCredentials):
				return c.SendStatus(fiber.StatusUnauthorized)
			case errors.Is(err, domain.ErrNotEnoughPermissions):
				return c.SendStatus(fiber.StatusForbidden)
			}
			return c.SendStatus(fiber.StatusInternalServerError)
		},
	})
	app.Use(a.Middleware())
	app.Get("/whoami", func(c *fiber.Ctx) error {
		identity := IdentityFrom(c)
		if identity.IsHuman() {
			return c.JSON(fiber.Map{"user_id": *identity.UserID})
		}
		return c.JSON(fiber.Map{"service": identity.Service})
	})
	app.Get("/bot-only", RequireService(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	human, _ := a.IssueToken(42, time.Hour)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "anonymous", path: "/whoami", want: fiber.StatusUnauthorized},
		{name: "human", path: "/whoami", header: "Bearer " + human, want: fiber.StatusOK},
		{name: "human on bot route", path: "/bot-only", header: "Bearer " + human, want: fiber.StatusForbidden},
		{name: "bot on bot route", path: "/bot-only", header: "Bearer " + testBotToken, want: fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
