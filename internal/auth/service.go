package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"taskchat-gateway/internal/config"
	"taskchat-gateway/internal/database"
	"taskchat-gateway/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNoSigningKey means the server has no JWT secret configured. The
	// authenticator fails closed: every token is refused until one is set.
	ErrNoSigningKey = errors.New("jwt signing key not configured")

	ErrInvalidToken = errors.New("invalid token")
)

type Service struct {
	db  database.Database
	cfg *config.Config
}

func NewService(db database.Database, cfg *config.Config) *Service {
	return &Service{
		db:  db,
		cfg: cfg,
	}
}

func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.LoginResponse, error) {
	if err := s.validateRegistrationRequest(req); err != nil {
		return nil, err
	}

	user, err := s.db.CreateUser(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &models.LoginResponse{
		Token: token,
		User:  *user,
	}, nil
}

func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	user, err := s.db.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	user.PasswordHash = ""

	return &models.LoginResponse{
		Token: token,
		User:  *user,
	}, nil
}

// VerifyToken validates signature and expiry and resolves the subject user
// ID. It is the connection-time gate for the websocket endpoint, so it makes
// no storage round trip.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	if len(s.cfg.JWT.Secret) == 0 {
		return "", ErrNoSigningKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.JWT.Secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	userIDFloat, ok := (*claims)["user_id"].(float64)
	if !ok {
		return "", fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}

	return strconv.Itoa(int(userIDFloat)), nil
}

func (s *Service) GetUserFromToken(ctx context.Context, tokenString string) (*models.User, error) {
	userID, err := s.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}

	id, err := strconv.Atoi(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed user_id claim", ErrInvalidToken)
	}
	return s.db.GetUserByID(ctx, id)
}

func (s *Service) GenerateToken(user *models.User) (string, error) {
	if len(s.cfg.JWT.Secret) == 0 {
		return "", ErrNoSigningKey
	}

	claims := jwt.MapClaims{
		"user_id":   user.ID,
		"full_name": user.FullName,
		"email":     user.Email,
		"exp":       time.Now().Add(s.cfg.JWT.ExpiresIn).Unix(),
		"iat":       time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.JWT.Secret)
}

func (s *Service) validateRegistrationRequest(req *models.RegisterRequest) error {
	if req.FullName == "" || req.Email == "" || req.Password == "" {
		return fmt.Errorf("missing required fields")
	}

	if !isValidEmail(req.Email) {
		return fmt.Errorf("invalid email format")
	}

	if len(req.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	req.FullName = strings.TrimSpace(req.FullName)
	if len(req.FullName) < 3 || len(req.FullName) > 60 {
		return fmt.Errorf("full name must be 3-60 characters long")
	}

	return nil
}

func isValidEmail(email string) bool {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailRegex.MatchString(email)
}
