package selection

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flickpick/pkg/flickpick/apierror"
	"github.com/mikepea/flickpick/pkg/flickpick/auth"
	"github.com/mikepea/flickpick/pkg/flickpick/groups"
	"gorm.io/gorm"
)

// Handler handles movie selection requests
type Handler struct {
	db      *gorm.DB
	machine *Machine
}

// NewHandler creates a new selection handler
func NewHandler(db *gorm.DB, machine *Machine) *Handler {
	return &Handler{db: db, machine: machine}
}

// VoteRequest is an accept or reject on the current candidate
type VoteRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// Response reports the selection state after a request.
// Candidate is set for "current", Winner for "finalized".
type Response struct {
	Status    string                    `json:"status"`
	Candidate *groups.CandidateResponse `json:"candidate,omitempty"`
	Winner    *groups.CandidateResponse `json:"winner,omitempty"`
}

func newResponse(r Result) Response {
	resp := Response{Status: r.Status}
	if r.Candidate == nil {
		return resp
	}
	candidate := groups.NewCandidateResponse(r.Candidate)
	if r.Status == StatusFinalized {
		resp.Winner = &candidate
	} else {
		resp.Candidate = &candidate
	}
	return resp
}

func (h *Handler) run(c *gin.Context, step func(tx *gorm.DB) (Result, error)) {
	var result Result
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = step(tx)
		return err
	})
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, newResponse(result))
}

// Current returns the candidate the group is deciding on
// @Summary Get current candidate
// @Tags movies
// @Produce json
// @Param code path string true "Join code"
// @Success 200 {object} Response
// @Failure 503 {object} map[string]string "No candidates available"
// @Security BearerAuth
// @Router /groups/{code}/movies/current [get]
func (h *Handler) Current(c *gin.Context) {
	h.run(c, func(tx *gorm.DB) (Result, error) {
		group, _, err := groups.Member(c, tx)
		if err != nil {
			return Result{}, err
		}
		return h.machine.Current(c.Request.Context(), tx, group)
	})
}

// Vote records an accept or reject
// @Summary Vote on current candidate
// @Tags movies
// @Accept json
// @Produce json
// @Param code path string true "Join code"
// @Param request body VoteRequest true "Vote"
// @Success 200 {object} Response
// @Failure 409 {object} map[string]string "No active candidate"
// @Security BearerAuth
// @Router /groups/{code}/movies/vote [post]
func (h *Handler) Vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.BadRequest("invalid_request", err.Error()))
		return
	}
	h.run(c, func(tx *gorm.DB) (Result, error) {
		group, participant, err := groups.Member(c, tx)
		if err != nil {
			return Result{}, err
		}
		return h.machine.Vote(c.Request.Context(), tx, group, participant, *req.Accept)
	})
}

// UseVeto spends the caller's veto
// @Summary Veto current candidate
// @Tags movies
// @Produce json
// @Param code path string true "Join code"
// @Success 200 {object} Response
// @Failure 409 {object} map[string]string "Veto disabled or already used"
// @Security BearerAuth
// @Router /groups/{code}/veto/use [post]
func (h *Handler) UseVeto(c *gin.Context) {
	h.run(c, func(tx *gorm.DB) (Result, error) {
		group, participant, err := groups.Member(c, tx)
		if err != nil {
			return Result{}, err
		}
		return h.machine.UseVeto(c.Request.Context(), tx, group, participant)
	})
}

// RegisterRoutes registers selection routes under /groups.
// The caller must install the resolver middleware on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/:code", auth.RequirePrincipal())
	g.GET("/movies/current", h.Current)
	g.POST("/movies/vote", h.Vote)
	g.POST("/veto/use", h.UseVeto)
}
