package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jwebster45206/party-engine/internal/storage"
	"github.com/jwebster45206/party-engine/pkg/state"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 6
	MaxUsernameLength = 32
)

var (
	ErrUnauthenticated    = errors.New("not logged in")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidInput       = errors.New("invalid input")
)

// Identity is what a verified session token says about its holder.
type Identity struct {
	UserID   string
	Username string
}

// Claims are the JWT claims carried by a session token.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Config holds the session signing settings.
type Config struct {
	Secret []byte
	TTL    time.Duration
	// HashCost is the bcrypt cost. Zero means bcrypt.DefaultCost.
	HashCost int
}

// Service registers users, checks passwords and issues session tokens.
type Service struct {
	store    storage.Storage
	secret   []byte
	ttl      time.Duration
	hashCost int
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store storage.Storage, cfg Config, logger *slog.Logger) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("session secret cannot be empty")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	return &Service{
		store:    store,
		secret:   cfg.Secret,
		ttl:      cfg.TTL,
		hashCost: cfg.HashCost,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// TTL is how long issued tokens stay valid.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Register creates a user and returns a session token for it.
func (s *Service) Register(ctx context.Context, username, password string) (*state.User, string, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	u := state.NewUser(username, string(hash))
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, "", ErrUsernameTaken
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("User registered", "user_id", u.ID, "username", u.Username)
	return u, token, nil
}

// Login checks the password and returns a session token. Unknown users and
// wrong passwords yield the same error.
func (s *Service) Login(ctx context.Context, username, password string) (*state.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}

	u, err := s.store.GetUserByName(ctx, username)
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up user: %w", err)
	}
	if u == nil {
		s.logger.Debug("Login failed: unknown user", "username", username)
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug("Login failed: wrong password", "user_id", u.ID)
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// IssueToken signs an HS256 token for u.
func (s *Service) IssueToken(u *state.User) (string, error) {
	now := s.now()
	claims := Claims{
		Name: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token's signature and expiry.
func (s *Service) ParseToken(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: claims.Subject, Username: claims.Name}, nil
}

// Authenticate verifies a token and confirms its user still exists.
func (s *Service) Authenticate(ctx context.Context, token string) (*state.User, error) {
	id, err := s.ParseToken(token)
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}
	if u == nil {
		return nil, ErrUnauthenticated
	}
	return u, nil
}

func validateCredentials(username, password string) error {
	n := utf8.RuneCountInString(username)
	if n == 0 || n > MaxUsernameLength {
		return fmt.Errorf("%w: username must be 1 to %d characters", ErrInvalidInput, MaxUsernameLength)
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	return nil
}
