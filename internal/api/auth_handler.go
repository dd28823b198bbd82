package api

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"quantforge.com/internal/config"
	"quantforge.com/internal/model"
)

type AuthHandler struct {
	db          *gorm.DB
	jwtSecret   []byte
	tokenExpiry time.Duration
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	expiry := time.Duration(cfg.Auth.TokenExpiryHours) * time.Hour
	if expiry <= 0 {
		expiry = 72 * time.Hour
	}
	return &AuthHandler{
		db:          db,
		jwtSecret:   []byte(cfg.Auth.JWTSecret),
		tokenExpiry: expiry,
	}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token    string `json:"token"`
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Register creates a new user (default role: user)
// POST /auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return Fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Email == "" {
		return Fail(c, fiber.StatusBadRequest, "email is required")
	}
	if len(req.Password) < 6 {
		return Fail(c, fiber.StatusBadRequest, "password must be at least 6 characters")
	}
	if req.Username == "" {
		req.Username = req.Email
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Fail(c, fiber.StatusInternalServerError, "crypto error")
	}

	user := model.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hashedPassword),
		Role:     "user",
		IsActive: true,
	}

	if err := h.db.Create(&user).Error; err != nil {
		return Fail(c, fiber.StatusConflict, "username or email already exists")
	}

	return Created(c, fiber.Map{"id": user.ID, "username": user.Username})
}

// Login authenticates user and returns JWT
// POST /auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return Fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	loginID := req.Email
	if loginID == "" {
		loginID = req.Username
	}
	if loginID == "" {
		return Fail(c, fiber.StatusBadRequest, "email or username is required")
	}

	var user model.User
	if err := h.db.Where("email = ? OR username = ?", loginID, loginID).First(&user).Error; err != nil {
		return Fail(c, fiber.StatusUnauthorized, "invalid credentials")
	}
	if !user.IsActive {
		return Fail(c, fiber.StatusUnauthorized, "account is disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return Fail(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       user.ID,
		"email":    user.Email,
		"username": user.Username,
		"role":     user.Role,
		"exp":      time.Now().Add(h.tokenExpiry).Unix(),
	})

	t, err := token.SignedString(h.jwtSecret)
	if err != nil {
		return Fail(c, fiber.StatusInternalServerError, "failed to sign token")
	}

	return Success(c, AuthResponse{
		Token:    t,
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
		Role:     user.Role,
	})
}

// EnsureAdminUser checks if any user exists, if not creates a default admin
func (h *AuthHandler) EnsureAdminUser() {
	var count int64
	h.db.Model(&model.User{}).Count(&count)
	if count == 0 {
		log.Println("Auth: No users found. Creating default 'admin' user...")
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		admin := model.User{
			Username: "admin",
			Email:    "admin@quantforge.local",
			Password: string(hashedPassword),
			Role:     "admin",
			IsActive: true,
		}
		if err := h.db.Create(&admin).Error; err != nil {
			log.Printf("Failed to create admin user: %v", err)
		} else {
			log.Println("Auth: Created default user: admin / admin123")
		}
	}
}

// GetMe implements the getCurrentUser API
// GET /api/auth/me
func (h *AuthHandler) GetMe(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}

	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return Fail(c, fiber.StatusNotFound, "user not found")
	}

	return Success(c, fiber.Map{
		"id":        user.ID,
		"username":  user.Username,
		"email":     user.Email,
		"role":      user.Role,
		"isActive":  user.IsActive,
		"createdAt": user.CreatedAt,
	})
}

// Logout is a placeholder for client-side token removal
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	return Success(c, fiber.Map{"message": "logged out"})
}
