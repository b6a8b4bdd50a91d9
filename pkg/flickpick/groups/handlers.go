package groups

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flickpick/pkg/flickpick/apierror"
	"github.com/mikepea/flickpick/pkg/flickpick/auth"
	"github.com/mikepea/flickpick/pkg/flickpick/catalog"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Handler handles group lifecycle requests
type Handler struct {
	db         *gorm.DB
	resolver   *auth.Resolver
	afterLeave []LeaveHook
}

// LeaveHook runs in the leave transaction after a non-host participant
// has been removed from group
type LeaveHook func(tx *gorm.DB, group *models.Group) error

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB, resolver *auth.Resolver) *Handler {
	return &Handler{db: db, resolver: resolver}
}

// AfterLeave registers hooks that run when a participant leaves a group
// that stays active
func (h *Handler) AfterLeave(hooks ...LeaveHook) *Handler {
	h.afterLeave = append(h.afterLeave, hooks...)
	return h
}

// GuestRequest is the optional body of create and join. Guests must
// supply a display name.
type GuestRequest struct {
	DisplayName       string   `json:"display_name"`
	StreamingServices []string `json:"streaming_services"`
}

// ParticipantResponse represents a participant in API responses
type ParticipantResponse struct {
	ID                uint     `json:"id"`
	DisplayName       string   `json:"display_name"`
	IsHost            bool     `json:"is_host"`
	IsGuest           bool     `json:"is_guest"`
	HasVeto           bool     `json:"has_veto"`
	VetoUsed          bool     `json:"veto_used"`
	StreamingServices []string `json:"streaming_services"`
}

// GroupResponse represents a group in API responses
type GroupResponse struct {
	ID           uint                  `json:"id"`
	Code         string                `json:"code"`
	Phase        models.Phase          `json:"phase"`
	VetoEnabled  *bool                 `json:"veto_enabled"`
	Participants []ParticipantResponse `json:"participants"`
}

// MembershipResponse is returned by create and join. Guests also get a
// participant token.
type MembershipResponse struct {
	Group       GroupResponse `json:"group"`
	AccessToken string        `json:"access_token,omitempty"`
	TokenType   string        `json:"token_type,omitempty"`
}

// LeaveResponse reports whether the caller left or disbanded the group
type LeaveResponse struct {
	OK        bool   `json:"ok"`
	Action    string `json:"action"`
	GroupCode string `json:"group_code"`
}

// ProgressResponse summarizes how far the group has got
type ProgressResponse struct {
	Phase             models.Phase       `json:"phase"`
	TotalParticipants int                `json:"total_participants"`
	NominatedCount    int                `json:"nominated_count"`
	VotedCount        int                `json:"voted_count"`
	AllNominated      bool               `json:"all_nominated"`
	AllVoted          bool               `json:"all_voted"`
	FinalizedGenres   []string           `json:"finalized_genres"`
	WinnerCandidate   *CandidateResponse `json:"winner_candidate"`
	IsHost            bool               `json:"is_host"`
}

const (
	actionLeft      = "left"
	actionDisbanded = "disbanded"
)

var (
	errDisplayNameRequired = apierror.Unprocessable("display_name_required", "display_name is required for guests")
	errAlreadyInGroup      = apierror.Conflict("already_in_active_group", "You are already in another active group. Leave or disband it first.")
	errParticipantInGroup  = apierror.Conflict("participant_in_active_group", "You are already in a group. Leave or disband before creating a new group.")
)

func newGroupResponse(tx *gorm.DB, group *models.Group) (GroupResponse, error) {
	participants, err := Participants(tx, group.ID)
	if err != nil {
		return GroupResponse{}, err
	}
	resp := GroupResponse{
		ID:           group.ID,
		Code:         group.Code,
		Phase:        group.Phase,
		VetoEnabled:  group.VetoEnabled,
		Participants: make([]ParticipantResponse, len(participants)),
	}
	for i, p := range participants {
		services := []string(p.Providers)
		if services == nil {
			services = []string{}
		}
		resp.Participants[i] = ParticipantResponse{
			ID:                p.ID,
			DisplayName:       p.DisplayName,
			IsHost:            p.IsHost,
			IsGuest:           p.IsGuest(),
			HasVeto:           p.HasVeto,
			VetoUsed:          p.VetoUsed,
			StreamingServices: services,
		}
	}
	return resp, nil
}

// bindGuest reads the optional body. An empty body is fine.
func bindGuest(c *gin.Context) (GuestRequest, error) {
	var req GuestRequest
	if c.Request.ContentLength == 0 {
		return req, nil
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, apierror.BadRequest("invalid_request", err.Error())
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	return req, nil
}

func providersFrom(services []string) datatypes.JSONSlice[string] {
	if services == nil {
		return nil
	}
	return datatypes.JSONSlice[string](catalog.NormalizeProviders(services))
}

func roleOf(p *models.Participant) string {
	if p.IsHost {
		return "host"
	}
	return "member"
}

// Create creates a group with the caller as host
// @Summary Create a group
// @Tags groups
// @Accept json
// @Produce json
// @Param request body GuestRequest false "Guest details"
// @Success 201 {object} MembershipResponse
// @Failure 409 {object} map[string]string "Already in an active group"
// @Failure 422 {object} map[string]string "Guest display name missing"
// @Router /groups [post]
func (h *Handler) Create(c *gin.Context) {
	req, err := bindGuest(c)
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	principal := auth.GetPrincipal(c)

	var resp MembershipResponse
	err = h.db.Transaction(func(tx *gorm.DB) error {
		host := models.Participant{IsHost: true}
		group := models.Group{Phase: models.PhaseGenreNomination}

		switch p := principal.(type) {
		case auth.ParticipantPrincipal:
			err := errParticipantInGroup.With("role", roleOf(&p.Participant))
			var current models.Group
			if tx.First(&current, p.Participant.GroupID).Error == nil {
				err = err.With("group_code", current.Code)
			}
			return err
		case auth.AccountPrincipal:
			_, active, err := activeMembership(tx, p.User.ID)
			if err != nil {
				return err
			}
			if active != nil {
				return errAlreadyInGroup.With("group_code", active.Code)
			}
			userID := p.User.ID
			group.HostUserID = &userID
			host.AccountID = &userID
			host.DisplayName = p.User.DisplayName()
			host.Providers = providersFrom(req.StreamingServices)
		default:
			if req.DisplayName == "" {
				return errDisplayNameRequired
			}
			host.DisplayName = req.DisplayName
			host.Providers = providersFrom(req.StreamingServices)
		}

		code, err := generateCode(tx)
		if err != nil {
			return err
		}
		group.Code = code
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		host.GroupID = group.ID
		if err := tx.Create(&host).Error; err != nil {
			return err
		}

		if host.IsGuest() {
			token, err := h.resolver.Tokens().IssueParticipantToken(host)
			if err != nil {
				return err
			}
			resp.AccessToken = token
			resp.TokenType = "bearer"
		}
		resp.Group, err = newGroupResponse(tx, &group)
		return err
	})
	if err != nil {
		apierror.Respond(c, err)
		return
	}

	slog.Info("group created", "group_code", resp.Group.Code, "guest_host", resp.AccessToken != "")
	c.JSON(http.StatusCreated, resp)
}

// Join adds the caller to the group named by :code
// @Summary Join a group
// @Tags groups
// @Accept json
// @Produce json
// @Param code path string true "Join code"
// @Param request body GuestRequest false "Guest details"
// @Success 200 {object} MembershipResponse
// @Failure 403 {object} map[string]string "Token belongs to another group"
// @Failure 404 {object} map[string]string "Group not found"
// @Router /groups/{code}/join [post]
func (h *Handler) Join(c *gin.Context) {
	req, err := bindGuest(c)
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	principal := auth.GetPrincipal(c)

	var resp MembershipResponse
	err = h.db.Transaction(func(tx *gorm.DB) error {
		group, err := Find(tx, c.Param("code"))
		if err != nil {
			return err
		}

		switch p := principal.(type) {
		case auth.ParticipantPrincipal:
			if p.Participant.GroupID != group.ID {
				return auth.ErrWrongGroup
			}
		case auth.AccountPrincipal:
			_, active, err := activeMembership(tx, p.User.ID)
			if err != nil {
				return err
			}
			if active != nil && active.ID != group.ID {
				return errAlreadyInGroup.With("group_code", active.Code)
			}
			var existing models.Participant
			err = tx.Where("group_id = ? AND account_id = ?", group.ID, p.User.ID).First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				userID := p.User.ID
				member := models.Participant{
					GroupID:     group.ID,
					AccountID:   &userID,
					DisplayName: p.User.DisplayName(),
					HasVeto:     group.VetoIsEnabled(),
					Providers:   providersFrom(req.StreamingServices),
				}
				if err := tx.Create(&member).Error; err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
		default:
			if req.DisplayName == "" {
				return errDisplayNameRequired
			}
			guest := models.Participant{
				GroupID:     group.ID,
				DisplayName: req.DisplayName,
				HasVeto:     group.VetoIsEnabled(),
				Providers:   providersFrom(req.StreamingServices),
			}
			if err := tx.Create(&guest).Error; err != nil {
				return err
			}
			token, err := h.resolver.Tokens().IssueParticipantToken(guest)
			if err != nil {
				return err
			}
			resp.AccessToken = token
			resp.TokenType = "bearer"
		}

		resp.Group, err = newGroupResponse(tx, group)
		return err
	})
	if err != nil {
		apierror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Leave removes the caller from their active group. A host leaving
// disbands the group.
// @Summary Leave the current group
// @Tags groups
// @Produce json
// @Success 200 {object} LeaveResponse
// @Failure 409 {object} map[string]string "No active group"
// @Security BearerAuth
// @Router /groups/leave [post]
func (h *Handler) Leave(c *gin.Context) {
	principal := auth.GetPrincipal(c)

	var resp LeaveResponse
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var participant *models.Participant
		var group *models.Group

		switch p := principal.(type) {
		case auth.ParticipantPrincipal:
			var g models.Group
			if err := tx.First(&g, p.Participant.GroupID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNoActiveGroup
				}
				return err
			}
			member, err := auth.RequireMember(tx, &g, principal)
			if err != nil {
				return err
			}
			participant, group = member, &g
		case auth.AccountPrincipal:
			member, g, err := activeMembership(tx, p.User.ID)
			if err != nil {
				return err
			}
			participant, group = member, g
		}
		if participant == nil || group == nil {
			return ErrNoActiveGroup
		}

		resp = LeaveResponse{OK: true, GroupCode: group.Code}
		if participant.IsHost {
			resp.Action = actionDisbanded
			return Disband(tx, group)
		}
		resp.Action = actionLeft
		if err := removeParticipant(tx, participant); err != nil {
			return err
		}
		for _, hook := range h.afterLeave {
			if err := hook(tx, group); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		apierror.Respond(c, err)
		return
	}

	slog.Info("left group", "group_code", resp.GroupCode, "action", resp.Action)
	c.JSON(http.StatusOK, resp)
}

// Get returns the member view of a group
// @Summary Get a group
// @Tags groups
// @Produce json
// @Param code path string true "Join code"
// @Success 200 {object} GroupResponse
// @Security BearerAuth
// @Router /groups/{code} [get]
func (h *Handler) Get(c *gin.Context) {
	group, _, err := Member(c, h.db)
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	resp, err := newGroupResponse(h.db, group)
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Progress returns nomination and voting progress
// @Summary Group progress
// @Tags groups
// @Produce json
// @Param code path string true "Join code"
// @Success 200 {object} ProgressResponse
// @Security BearerAuth
// @Router /groups/{code}/progress [get]
func (h *Handler) Progress(c *gin.Context) {
	group, participant, err := Member(c, h.db)
	if err != nil {
		apierror.Respond(c, err)
		return
	}

	resp, err := progress(h.db, group)
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	resp.IsHost = participant.IsHost
	c.JSON(http.StatusOK, resp)
}

func progress(tx *gorm.DB, group *models.Group) (ProgressResponse, error) {
	total, err := CountParticipants(tx, group.ID)
	if err != nil {
		return ProgressResponse{}, err
	}
	var nominated, voted int64
	if err := tx.Model(&models.GenreNomination{}).Where("group_id = ?", group.ID).
		Distinct("participant_id").Count(&nominated).Error; err != nil {
		return ProgressResponse{}, err
	}
	if err := tx.Model(&models.GenreVote{}).Where("group_id = ?", group.ID).
		Distinct("participant_id").Count(&voted).Error; err != nil {
		return ProgressResponse{}, err
	}
	finalized, err := FinalizedGenres(tx, group.ID)
	if err != nil {
		return ProgressResponse{}, err
	}

	resp := ProgressResponse{
		Phase:             group.Phase,
		TotalParticipants: int(total),
		NominatedCount:    int(nominated),
		VotedCount:        int(voted),
		AllNominated:      total > 0 && nominated >= total,
		AllVoted:          total > 0 && voted >= total,
		FinalizedGenres:   finalized,
	}
	if group.IsFinalized() && group.WinnerCandidateID != nil {
		var winner models.MovieCandidate
		if err := tx.First(&winner, *group.WinnerCandidateID).Error; err == nil {
			view := NewCandidateResponse(&winner)
			resp.WinnerCandidate = &view
		}
	}
	return resp, nil
}

// RegisterRoutes registers group routes. The caller must install the
// resolver middleware on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.POST("/leave", auth.RequirePrincipal(), h.Leave)
	rg.POST("/:code/join", h.Join)
	rg.GET("/:code", auth.RequirePrincipal(), h.Get)
	rg.GET("/:code/progress", auth.RequirePrincipal(), h.Progress)
	rg.POST("/:code/veto/vote", auth.RequirePrincipal(), h.VoteVetoMode)
}
