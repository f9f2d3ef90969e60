package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"reelvault/internal/models"
	"reelvault/internal/utils"
)

const tokenIssuer = "reelvault"

// AuthService handles credential checks and API tokens
type AuthService struct {
	db          *gorm.DB
	users       *Repository
	jwtSecret   string
	tokenExpiry time.Duration
}

// AuthToken is the response of a token exchange
type AuthToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// NewAuthService creates a new auth service
func NewAuthService(db *gorm.DB, jwtSecret string, tokenExpiry time.Duration) *AuthService {
	if tokenExpiry <= 0 {
		tokenExpiry = 24 * time.Hour
	}
	return &AuthService{
		db:          db,
		users:       NewRepository(db),
		jwtSecret:   jwtSecret,
		tokenExpiry: tokenExpiry,
	}
}

// Login verifies the credentials and records the login time
func (a *AuthService) Login(username, password string) (*models.User, error) {
	var user models.User
	if err := a.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := utils.CheckPasswordHash(password, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := a.db.Model(&user).Update("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("failed to update login time: %w", err)
	}
	user.LastLoginAt = &now

	return &user, nil
}

// Register creates a regular (non-admin) account
func (a *AuthService) Register(username, password string) (*models.User, error) {
	return a.users.CreateUser(username, password, false)
}

// IssueToken verifies the credentials and returns a signed access token
func (a *AuthService) IssueToken(username, password string) (*AuthToken, *models.User, error) {
	user, err := a.Login(username, password)
	if err != nil {
		return nil, nil, err
	}

	token, err := a.GenerateToken(user)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &AuthToken{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(a.tokenExpiry.Seconds()),
	}, user, nil
}

// GenerateToken signs an HS256 access token for the user
func (a *AuthService) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.jwtSecret))
}

// ValidateToken parses and validates an access token
func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(a.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// ResolveUser reloads a user so role changes and deletions take effect immediately.
// Soft-deleted users are not found.
func (a *AuthService) ResolveUser(id int64) (*models.User, error) {
	return a.users.GetUserByID(id)
}
