// internal/services/auth_service.go
package services

import (
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/idlabstudio/idlab-backend/internal/config"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

// AuthService signs in the administrators listed in configuration.
type AuthService struct {
	cfg       *config.Config
	dummyHash []byte
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // in seconds
}

func NewAuthService(cfg *config.Config) *AuthService {
	// Unknown e-mails are compared against this hash so that both paths cost
	// one bcrypt comparison.
	dummy, _ := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	return &AuthService{cfg: cfg, dummyHash: dummy}
}

func (s *AuthService) Login(req *LoginRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError(err)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	hash, known := s.cfg.Auth.Admins[email]
	if !known {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
		return nil, newError(CodeUnauthenticated, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		logrus.WithField("email", email).Warn("Failed admin login")
		return nil, newError(CodeUnauthenticated, "invalid credentials")
	}

	userID := AdminUserID(email)
	accessToken, err := utils.GenerateJWT(userID, email, utils.RoleAdmin, s.cfg.JWT.AccessTokenTTL)
	if err != nil {
		return nil, internalError("failed to generate access token", err)
	}

	logrus.WithField("email", email).Info("Admin signed in")

	return &AuthResponse{
		UserID:      userID,
		Email:       email,
		Role:        utils.RoleAdmin,
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   s.cfg.JWT.AccessTokenTTL * 3600, // Convert hours to seconds
	}, nil
}

// AdminUserID derives a stable identifier for a configured admin account.
func AdminUserID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+strings.ToLower(email))).String()
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
