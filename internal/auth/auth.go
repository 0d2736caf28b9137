// Package auth guards the daemon API with configured users. Users log in
// with a bcrypt-checked password and receive an HMAC-signed JWT; every other
// request carries that token or basic credentials.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Resources guarded by Allowed.
const (
	ResourceProjects   = "projects"
	ResourceExecutions = "executions"
	ResourceDocker     = "docker"
)

const (
	ActionRead  = "read"
	ActionWrite = "write"
)

const (
	DefaultTokenTTL = 24 * time.Hour
	issuer          = "servcur"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Config is the [server.auth] section.
type Config struct {
	Enabled   bool          `toml:"enabled" mapstructure:"enabled"`
	JWTSecret string        `toml:"jwt_secret" mapstructure:"jwt_secret"` // random per process when empty
	TokenTTL  time.Duration `toml:"token_ttl" mapstructure:"token_ttl"`
	Users     []User        `toml:"users" mapstructure:"users"`
}

// User is a configured API account. PasswordHash is a bcrypt hash, see
// HashPassword.
type User struct {
	Username     string   `toml:"username" mapstructure:"username"`
	PasswordHash string   `toml:"password_hash" mapstructure:"password_hash"`
	Roles        []string `toml:"roles" mapstructure:"roles"`
}

// Token is a signed bearer token.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Result identifies an authenticated caller.
type Result struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Token    *Token   `json:"token,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

type Service struct {
	users  map[string]User
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

var rolePermissions = map[string][]permission{
	RoleAdmin: {{resource: "*", action: "*"}},
	RoleOperator: {
		{resource: ResourceProjects, action: "*"},
		{resource: ResourceExecutions, action: ActionRead},
		{resource: ResourceDocker, action: ActionRead},
	},
	RoleViewer: {{resource: "*", action: ActionRead}},
}

type permission struct {
	resource string
	action   string
}

// New validates the configured users and prepares the signing key.
func New(cfg Config) (*Service, error) {
	s := &Service{
		users:  make(map[string]User, len(cfg.Users)),
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}
	if len(cfg.Users) == 0 {
		return nil, errors.New("auth requires at least one user")
	}
	for _, u := range cfg.Users {
		if u.Username == "" {
			return nil, errors.New("auth user without username")
		}
		if _, dup := s.users[u.Username]; dup {
			return nil, fmt.Errorf("auth user %q defined twice", u.Username)
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("auth user %q: password_hash is not a bcrypt hash: %w", u.Username, err)
		}
		for _, r := range u.Roles {
			if _, ok := rolePermissions[r]; !ok {
				return nil, fmt.Errorf("auth user %q: unknown role %q", u.Username, r)
			}
		}
		s.users[u.Username] = u
	}
	if len(s.secret) == 0 {
		s.secret = make([]byte, 32)
		if _, err := rand.Read(s.secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	return s, nil
}

// HashPassword returns the bcrypt hash to put in a user's password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// Check verifies a username and password without issuing a token.
func (s *Service) Check(username, password string) (Result, error) {
	u, ok := s.users[username]
	if !ok || password == "" {
		return Result{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Result{}, ErrInvalidCredentials
	}
	return Result{Username: u.Username, Roles: u.Roles}, nil
}

// Login checks the password and issues a token.
func (s *Service) Login(username, password string) (Result, error) {
	res, err := s.Check(username, password)
	if err != nil {
		return Result{}, err
	}
	tok, err := s.issue(s.users[username])
	if err != nil {
		return Result{}, err
	}
	res.Token = tok
	return res, nil
}

// Verify validates a token issued by Login. Roles come from the current
// configuration, so a user removed since the token was issued is rejected.
func (s *Service) Verify(tokenString string) (Result, error) {
	if tokenString == "" {
		return Result{}, ErrInvalidCredentials
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return Result{}, ErrInvalidCredentials
	}
	u, ok := s.users[claims.Username]
	if !ok {
		return Result{}, ErrInvalidCredentials
	}
	return Result{Username: u.Username, Roles: u.Roles}, nil
}

func (s *Service) issue(u User) (*Token, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		Username: u.Username,
		Roles:    u.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   u.Username,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Type: "Bearer", Value: signed, ExpiresAt: expiresAt}, nil
}

// Allowed reports whether any of roles grants action on resource.
func Allowed(roles []string, resource, action string) bool {
	for _, role := range roles {
		for _, p := range rolePermissions[role] {
			if (p.resource == "*" || p.resource == resource) && (p.action == "*" || p.action == action) {
				return true
			}
		}
	}
	return false
}
