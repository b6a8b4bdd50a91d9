package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flickpick/pkg/flickpick/apierror"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"gorm.io/gorm"
)

// Handler handles authentication requests
type Handler struct {
	db       *gorm.DB
	resolver *Resolver
}

// NewHandler creates a new auth handler
func NewHandler(db *gorm.DB, resolver *Resolver) *Handler {
	return &Handler{db: db, resolver: resolver}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=32"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is returned by login
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        UserResponse `json:"user"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}

// WhoAmIResponse describes either kind of principal
type WhoAmIResponse struct {
	Kind        SubjectKind `json:"kind"`
	ID          uint        `json:"id"`
	Email       string      `json:"email,omitempty"`
	GroupID     uint        `json:"group_id,omitempty"`
	DisplayName string      `json:"display_name,omitempty"`
	IsHost      *bool       `json:"is_host,omitempty"`
}

var (
	errEmailTaken      = apierror.Conflict("email_taken", "Email already registered")
	errBadCredentials  = apierror.Unauthorized("invalid_credentials", "Invalid email or password")
	errAccountRequired = apierror.Unauthorized("account_required", "An account token is required")
	errUserNotFound    = apierror.NotFound("user_not_found", "User not found")
)

const codeInvalidRequest = "invalid_request"

// Register handles user registration
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.BadRequest(codeInvalidRequest, err.Error()))
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existingUser models.User
	if err := h.db.Where("email = ?", email).First(&existingUser).Error; err == nil {
		apierror.Respond(c, errEmailTaken)
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		apierror.Respond(c, err)
		return
	}

	hashedPassword, err := HashPassword(req.Password)
	if err != nil {
		apierror.Respond(c, err)
		return
	}

	user := models.User{
		Email:        email,
		PasswordHash: hashedPassword,
		SystemRole:   models.SystemRoleUser,
	}
	if err := h.db.Create(&user).Error; err != nil {
		apierror.Respond(c, err)
		return
	}

	slog.Info("account registered", "user_id", user.ID)
	c.JSON(http.StatusCreated, UserResponse{ID: user.ID, Email: user.Email})
}

// Login handles user login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.BadRequest(codeInvalidRequest, err.Error()))
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		apierror.Respond(c, errBadCredentials)
		return
	}

	if !CheckPassword(req.Password, user.PasswordHash) {
		apierror.Respond(c, errBadCredentials)
		return
	}

	token, err := h.resolver.Tokens().IssueAccountToken(user)
	if err != nil {
		apierror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        UserResponse{ID: user.ID, Email: user.Email},
	})
}

// Me returns the current authenticated account
func (h *Handler) Me(c *gin.Context) {
	account, ok := GetAccount(c)
	if !ok {
		apierror.Respond(c, errAccountRequired)
		return
	}

	var user models.User
	if err := h.db.First(&user, account.User.ID).Error; err != nil {
		apierror.Respond(c, errUserNotFound)
		return
	}

	c.JSON(http.StatusOK, UserResponse{ID: user.ID, Email: user.Email})
}

// WhoAmI describes the caller whichever kind of token it holds
func (h *Handler) WhoAmI(c *gin.Context) {
	switch p := GetPrincipal(c).(type) {
	case AccountPrincipal:
		c.JSON(http.StatusOK, WhoAmIResponse{Kind: SubjectAccount, ID: p.User.ID, Email: p.User.Email})
	case ParticipantPrincipal:
		isHost := p.Participant.IsHost
		c.JSON(http.StatusOK, WhoAmIResponse{
			Kind:        SubjectParticipant,
			ID:          p.Participant.ID,
			GroupID:     p.Participant.GroupID,
			DisplayName: p.Participant.DisplayName,
			IsHost:      &isHost,
		})
	default:
		apierror.Respond(c, ErrAuthRequired)
	}
}

// RegisterRoutes registers auth routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.Register)
	rg.POST("/login", h.Login)
	rg.GET("/me", h.resolver.Middleware(), RequirePrincipal(), h.Me)
}

// RegisterIdentityRoutes registers /whoami on the given router group
func (h *Handler) RegisterIdentityRoutes(rg *gin.RouterGroup) {
	rg.GET("/whoami", h.resolver.Middleware(), RequirePrincipal(), h.WhoAmI)
}
