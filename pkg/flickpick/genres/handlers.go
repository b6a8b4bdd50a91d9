package genres

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flickpick/pkg/flickpick/apierror"
	"github.com/mikepea/flickpick/pkg/flickpick/auth"
	"github.com/mikepea/flickpick/pkg/flickpick/groups"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"gorm.io/gorm"
)

// Handler handles genre nomination and voting requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new genres handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// NominateRequest carries one or two genre names
type NominateRequest struct {
	Genres []string `json:"genres" binding:"required"`
}

// VoteRequest carries a single genre name
type VoteRequest struct {
	Genre string `json:"genre" binding:"required"`
}

// NominateResponse is returned after a nomination
type NominateResponse struct {
	OK          bool         `json:"ok"`
	Created     int          `json:"created"`
	Phase       models.Phase `json:"phase"`
	Nominations []Count      `json:"nominations"`
}

// VoteResponse is returned after a vote
type VoteResponse struct {
	OK    bool         `json:"ok"`
	Voted string       `json:"voted"`
	Phase models.Phase `json:"phase"`
}

// Standing is a genre's vote total
type Standing struct {
	Genre string `json:"genre"`
	Votes int    `json:"votes"`
}

// StandingsResponse reports the vote tally and the current leader
type StandingsResponse struct {
	Standings   []Standing `json:"standings"`
	Leader      *string    `json:"leader"`
	Nominations []Count    `json:"nominations"`
	Allowed     []string   `json:"allowed"`
}

// NominationsResponse lists nomination counts
type NominationsResponse struct {
	Nominations []Count  `json:"nominations"`
	Allowed     []string `json:"allowed"`
}

// ResetResponse is returned after a host reset
type ResetResponse struct {
	OK    bool         `json:"ok"`
	Phase models.Phase `json:"phase"`
}

func emptyIfNil(counts []Count) []Count {
	if counts == nil {
		return []Count{}
	}
	return counts
}

// Nominate handles a genre nomination
// @Summary Nominate genres
// @Tags genres
// @Accept json
// @Produce json
// @Param code path string true "Join code"
// @Param request body NominateRequest true "Genres"
// @Success 200 {object} NominateResponse
// @Failure 400 {object} map[string]string "Invalid genre"
// @Failure 409 {object} map[string]string "Nomination limit exceeded"
// @Security BearerAuth
// @Router /groups/{code}/genres/nominate [post]
func (h *Handler) Nominate(c *gin.Context) {
	var req NominateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.BadRequest("invalid_request", err.Error()))
		return
	}

	var resp NominateResponse
	err := h.db.Transaction(func(tx *gorm.DB) error {
		group, participant, err := groups.Member(c, tx)
		if err != nil {
			return err
		}
		created, err := Nominate(tx, group, participant, req.Genres)
		if err != nil {
			return err
		}
		nominations, err := Nominations(tx, group.ID)
		if err != nil {
			return err
		}
		resp = NominateResponse{OK: true, Created: created, Phase: group.Phase, Nominations: emptyIfNil(nominations)}
		return nil
	})
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Vote handles a genre vote
// @Summary Vote for a genre
// @Tags genres
// @Accept json
// @Produce json
// @Param code path string true "Join code"
// @Param request body VoteRequest true "Genre"
// @Success 200 {object} VoteResponse
// @Failure 409 {object} map[string]string "Vote limit exceeded"
// @Security BearerAuth
// @Router /groups/{code}/genres/vote [post]
func (h *Handler) Vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.BadRequest("invalid_request", err.Error()))
		return
	}

	var resp VoteResponse
	err := h.db.Transaction(func(tx *gorm.DB) error {
		group, participant, err := groups.Member(c, tx)
		if err != nil {
			return err
		}
		genre, err := Vote(tx, group, participant, req.Genre)
		if err != nil {
			return err
		}
		resp = VoteResponse{OK: true, Voted: genre, Phase: group.Phase}
		return nil
	})
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Standings reports vote totals. It never changes the phase.
// @Summary Genre standings
// @Tags genres
// @Produce json
// @Param code path string true "Join code"
// @Success 200 {object} StandingsResponse
// @Security BearerAuth
// @Router /groups/{code}/genres/standings [get]
func (h *Handler) Standings(c *gin.Context) {
	group, _, err := groups.Member(c, h.db)
	if err != nil {
		apierror.Respond(c, err)
		return
	}

	votes, err := Standings(h.db, group.ID)
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	nominations, err := Nominations(h.db, group.ID)
	if err != nil {
		apierror.Respond(c, err)
		return
	}

	resp := StandingsResponse{
		Standings:   make([]Standing, len(votes)),
		Nominations: emptyIfNil(nominations),
		Allowed:     Allowed,
	}
	for i, v := range votes {
		resp.Standings[i] = Standing{Genre: v.Genre, Votes: v.Count}
	}
	if len(votes) > 0 {
		resp.Leader = &votes[0].Genre
	}
	c.JSON(http.StatusOK, resp)
}

// ListNominations returns nomination counts
// @Summary List nominations
// @Tags genres
// @Produce json
// @Param code path string true "Join code"
// @Success 200 {object} NominationsResponse
// @Security BearerAuth
// @Router /groups/{code}/genres/nominations [get]
func (h *Handler) ListNominations(c *gin.Context) {
	group, _, err := groups.Member(c, h.db)
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	nominations, err := Nominations(h.db, group.ID)
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, NominationsResponse{Nominations: emptyIfNil(nominations), Allowed: Allowed})
}

// Reset restarts the group at genre nomination (host only)
// @Summary Reset genres
// @Tags genres
// @Produce json
// @Param code path string true "Join code"
// @Success 200 {object} ResetResponse
// @Failure 403 {object} map[string]string "Host only"
// @Security BearerAuth
// @Router /groups/{code}/genres/reset [post]
func (h *Handler) Reset(c *gin.Context) {
	var resp ResetResponse
	err := h.db.Transaction(func(tx *gorm.DB) error {
		group, participant, err := groups.Member(c, tx)
		if err != nil {
			return err
		}
		if !participant.IsHost {
			return errHostOnly
		}
		if err := Reset(tx, group); err != nil {
			return err
		}
		resp = ResetResponse{OK: true, Phase: group.Phase}
		return nil
	})
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RegisterRoutes registers genre routes under /groups/:code/genres.
// The caller must install the resolver middleware on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Use(auth.RequirePrincipal())
	rg.POST("/nominate", h.Nominate)
	rg.POST("/vote", h.Vote)
	rg.GET("/standings", h.Standings)
	rg.GET("/nominations", h.ListNominations)
	rg.POST("/reset", h.Reset)
}
