package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flickpick/pkg/flickpick/apierror"
	"github.com/mikepea/flickpick/pkg/flickpick/auth"
	"github.com/mikepea/flickpick/pkg/flickpick/groups"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"gorm.io/gorm"
)

var (
	errInvalidUserID = apierror.BadRequest("invalid_user_id", "Invalid user ID")
	errUserNotFound  = apierror.NotFound("user_not_found", "User not found")
	errInvalidRole   = apierror.BadRequest("invalid_role", "Invalid system role")
	errSelfDemote    = apierror.BadRequest("cannot_demote_self", "Cannot demote yourself")
)

// Handler handles admin requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID         uint   `json:"id"`
	Email      string `json:"email"`
	SystemRole string `json:"system_role"`
	CreatedAt  string `json:"created_at"`
	GroupCount int64  `json:"group_count"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	SystemRole string `json:"system_role" binding:"required"`
}

// GroupSummary is one row of the admin group listing
type GroupSummary struct {
	Code             string       `json:"code"`
	Phase            models.Phase `json:"phase"`
	ParticipantCount int64        `json:"participant_count"`
	VetoEnabled      *bool        `json:"veto_enabled"`
	CreatedAt        string       `json:"created_at"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers        int64                  `json:"total_users"`
	AdminUsers        int64                  `json:"admin_users"`
	TotalGroups       int64                  `json:"total_groups"`
	GroupsByPhase     map[models.Phase]int64 `json:"groups_by_phase"`
	TotalParticipants int64                  `json:"total_participants"`
	GuestParticipants int64                  `json:"guest_participants"`
	TotalCandidates   int64                  `json:"total_candidates"`
}

func (h *Handler) userResponse(user models.User) UserResponse {
	var groupCount int64
	h.db.Model(&models.Participant{}).Where("account_id = ?", user.ID).Count(&groupCount)
	return UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		SystemRole: string(user.SystemRole),
		CreatedAt:  user.CreatedAt.Format("2006-01-02T15:04:05Z"),
		GroupCount: groupCount,
	}
}

// ListUsers returns all users (admin only)
// @Summary List users
// @Tags admin
// @Produce json
// @Param q query string false "Email search"
// @Param role query string false "System role filter"
// @Success 200 {array} UserResponse
// @Security BearerAuth
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User

	query := h.db.Order("created_at DESC")
	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ?", "%"+search+"%")
	}
	if role := c.Query("role"); role != "" {
		query = query.Where("system_role = ?", role)
	}

	if err := query.Find(&users).Error; err != nil {
		apierror.Respond(c, err)
		return
	}

	responses := make([]UserResponse, len(users))
	for i, user := range users {
		responses[i] = h.userResponse(user)
	}
	c.JSON(http.StatusOK, responses)
}

// UpdateUser changes a user's system role (admin only)
// @Summary Update user role
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateUserRequest true "Role"
// @Success 200 {object} UserResponse
// @Failure 400 {object} map[string]string "Invalid role"
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /admin/users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		apierror.Respond(c, errInvalidUserID)
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.BadRequest("invalid_request", err.Error()))
		return
	}
	role := models.SystemRole(req.SystemRole)
	if role != models.SystemRoleAdmin && role != models.SystemRoleUser {
		apierror.Respond(c, errInvalidRole)
		return
	}

	// an admin cannot lock themselves out
	if account, ok := auth.GetAccount(c); ok && account.User.ID == uint(id) && role != models.SystemRoleAdmin {
		apierror.Respond(c, errSelfDemote)
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		apierror.Respond(c, errUserNotFound)
		return
	}
	if err := h.db.Model(&user).Update("system_role", role).Error; err != nil {
		apierror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, h.userResponse(user))
}

// ListGroups returns every group, newest first (admin only)
// @Summary List groups
// @Tags admin
// @Produce json
// @Param phase query string false "Phase filter"
// @Success 200 {array} GroupSummary
// @Security BearerAuth
// @Router /admin/groups [get]
func (h *Handler) ListGroups(c *gin.Context) {
	var all []models.Group
	query := h.db.Order("created_at DESC")
	if phase := c.Query("phase"); phase != "" {
		query = query.Where("phase = ?", phase)
	}
	if err := query.Find(&all).Error; err != nil {
		apierror.Respond(c, err)
		return
	}

	summaries := make([]GroupSummary, len(all))
	for i, group := range all {
		count, err := groups.CountParticipants(h.db, group.ID)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		summaries[i] = GroupSummary{
			Code:             group.Code,
			Phase:            group.Phase,
			ParticipantCount: count,
			VetoEnabled:      group.VetoEnabled,
			CreatedAt:        group.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}
	c.JSON(http.StatusOK, summaries)
}

// DisbandGroup deletes a group and everything in it (admin only)
// @Summary Disband group
// @Tags admin
// @Produce json
// @Param code path string true "Join code"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /admin/groups/{code} [delete]
func (h *Handler) DisbandGroup(c *gin.Context) {
	var code string
	err := h.db.Transaction(func(tx *gorm.DB) error {
		group, err := groups.Find(tx, c.Param("code"))
		if err != nil {
			return err
		}
		code = group.Code
		return groups.Disband(tx, group)
	})
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "action": "disbanded", "group_code": code})
}

// GetStats returns system-wide statistics (admin only)
// @Summary System statistics
// @Tags admin
// @Produce json
// @Success 200 {object} StatsResponse
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats := StatsResponse{GroupsByPhase: map[models.Phase]int64{}}

	h.db.Model(&models.User{}).Count(&stats.TotalUsers)
	h.db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&stats.AdminUsers)
	h.db.Model(&models.Group{}).Count(&stats.TotalGroups)
	h.db.Model(&models.Participant{}).Count(&stats.TotalParticipants)
	h.db.Model(&models.Participant{}).Where("account_id IS NULL").Count(&stats.GuestParticipants)
	h.db.Model(&models.MovieCandidate{}).Count(&stats.TotalCandidates)

	var rows []struct {
		Phase models.Phase
		Count int64
	}
	if err := h.db.Model(&models.Group{}).Select("phase, COUNT(*) AS count").Group("phase").Scan(&rows).Error; err != nil {
		apierror.Respond(c, err)
		return
	}
	for _, row := range rows {
		stats.GroupsByPhase[row.Phase] = row.Count
	}

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers admin routes on the given router group.
// The caller must install the resolver middleware and auth.RequireAdmin.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.GET("/groups", h.ListGroups)
	rg.DELETE("/groups/:code", h.DisbandGroup)
}
