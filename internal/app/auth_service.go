package app

import (
	"crypto/subtle"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"docchat/internal/pkg/jwtutil"
)

const AdminRole = "admin"

// AuthService signs admin tokens for the operator configured in auth.admin_*.
type AuthService struct {
	username      string
	passwordHash  []byte
	jwtSecret     string
	jwtExpiration time.Duration
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewAuthService(username, passwordHash, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	if jwtExpiration <= 0 {
		jwtExpiration = time.Hour
	}
	return &AuthService{
		username:      username,
		passwordHash:  []byte(passwordHash),
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}
	if s.username == "" || len(s.passwordHash) == 0 || s.jwtSecret == "" {
		return nil, ErrConfiguration
	}

	nameOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(input.Password))
	if !nameOK || passErr != nil {
		return nil, ErrInvalidCredential
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.username, AdminRole, s.jwtExpiration)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Token:     token,
		Username:  s.username,
		ExpiresAt: time.Now().Add(s.jwtExpiration),
	}, nil
}
