package groups

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flickpick/pkg/flickpick/apierror"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"gorm.io/gorm"
)

// VetoModeRequest is a participant's vote on enabling vetoes
type VetoModeRequest struct {
	Enable *bool `json:"enable" binding:"required"`
}

// VetoModeResponse reports the state of the veto-mode vote
type VetoModeResponse struct {
	OK          bool  `json:"ok"`
	Votes       int   `json:"votes"`
	Total       int   `json:"total"`
	Decided     bool  `json:"decided"`
	VetoEnabled *bool `json:"veto_enabled"`
}

var errVetoModeDecided = apierror.Conflict("veto_mode_decided", "Veto mode has already been decided")

// castVetoModeVote records the vote and decides the mode once everyone
// has voted. Enabling needs a strict majority; every participant then
// holds one veto.
func castVetoModeVote(tx *gorm.DB, group *models.Group, participant *models.Participant, enable bool) (VetoModeResponse, error) {
	if group.VetoDecidedAt != nil {
		return VetoModeResponse{}, errVetoModeDecided
	}

	var vote models.SettingVote
	err := tx.Where("group_id = ? AND participant_id = ? AND key = ?", group.ID, participant.ID, models.SettingKeyVetoMode).
		First(&vote).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		vote = models.SettingVote{GroupID: group.ID, ParticipantID: participant.ID, Key: models.SettingKeyVetoMode, Value: enable}
		if err := tx.Create(&vote).Error; err != nil {
			return VetoModeResponse{}, err
		}
	case err != nil:
		return VetoModeResponse{}, err
	default:
		if err := tx.Model(&vote).Update("value", enable).Error; err != nil {
			return VetoModeResponse{}, err
		}
	}

	var votes []models.SettingVote
	if err := tx.Where("group_id = ? AND key = ?", group.ID, models.SettingKeyVetoMode).Find(&votes).Error; err != nil {
		return VetoModeResponse{}, err
	}
	total, err := CountParticipants(tx, group.ID)
	if err != nil {
		return VetoModeResponse{}, err
	}

	resp := VetoModeResponse{OK: true, Votes: len(votes), Total: int(total), VetoEnabled: group.VetoEnabled}
	if int64(len(votes)) < total {
		return resp, nil
	}

	yes := 0
	for _, v := range votes {
		if v.Value {
			yes++
		}
	}
	enabled := int64(yes)*2 > total
	now := time.Now()
	group.VetoEnabled = &enabled
	group.VetoDecidedAt = &now
	if err := tx.Model(group).Updates(map[string]any{"veto_enabled": enabled, "veto_decided_at": now}).Error; err != nil {
		return VetoModeResponse{}, err
	}
	if enabled {
		if err := tx.Model(&models.Participant{}).Where("group_id = ?", group.ID).
			Updates(map[string]any{"has_veto": true, "veto_used": false}).Error; err != nil {
			return VetoModeResponse{}, err
		}
	}

	resp.Decided = true
	resp.VetoEnabled = &enabled
	slog.Info("veto mode decided", "group_code", group.Code, "enabled", enabled, "yes", yes, "total", total)
	return resp, nil
}

// VoteVetoMode records the caller's vote on enabling vetoes
// @Summary Vote on veto mode
// @Tags groups
// @Accept json
// @Produce json
// @Param code path string true "Join code"
// @Param request body VetoModeRequest true "Vote"
// @Success 200 {object} VetoModeResponse
// @Failure 409 {object} map[string]string "Already decided"
// @Security BearerAuth
// @Router /groups/{code}/veto/vote [post]
func (h *Handler) VoteVetoMode(c *gin.Context) {
	var req VetoModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.BadRequest("invalid_request", err.Error()))
		return
	}

	var resp VetoModeResponse
	err := h.db.Transaction(func(tx *gorm.DB) error {
		group, participant, err := Member(c, tx)
		if err != nil {
			return err
		}
		resp, err = castVetoModeVote(tx, group, participant, *req.Enable)
		return err
	})
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
