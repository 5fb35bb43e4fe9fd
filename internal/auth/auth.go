package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/blocktank/channel-backend/internal/utils/config"
	"github.com/blocktank/channel-backend/internal/view"
)

var (
	ErrInvalidCredentials = errors.New("invalid admin credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
	ErrInvalidToken       = errors.New("invalid token")
)

// Credentials is the admin login payload.
type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Service issues and validates admin session tokens.
type Service struct {
	jwtSecret     []byte
	adminUsername string
	adminPassword string
}

func NewService(appConfig *config.AppConfig) *Service {
	return &Service{
		jwtSecret:     []byte(appConfig.Auth.JWTSecret),
		adminUsername: appConfig.Auth.AdminUsername,
		adminPassword: appConfig.Auth.AdminPassword,
	}
}

// GenerateToken verifies the admin credentials and issues a 24 hour token.
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	if !s.validateCredentials(creds) {
		return nil, ErrInvalidCredentials
	}

	expiration := time.Now().Add(24 * time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		Username: creds.Username,
		Role:     "admin",
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}
	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

func (s *Service) validateCredentials(creds Credentials) bool {
	if s.adminUsername == "" || s.adminPassword == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(creds.Username), []byte(s.adminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(creds.Password), []byte(s.adminPassword)) == 1
	return userOK && passOK
}

// Middleware rejects requests without a valid bearer token.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				view.CreateResponse[any](nil, ErrInvalidToken, nil, "missing bearer token"))
			return
		}

		claims, err := s.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				view.CreateResponse[any](nil, ErrInvalidToken, nil, "invalid or expired token"))
			return
		}
		c.Set("admin_user", claims.Username)
		c.Next()
	}
}
