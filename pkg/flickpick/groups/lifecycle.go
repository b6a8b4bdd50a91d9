// Package groups manages the lifecycle of decision groups: creation with a
// join code, joining, leaving and disbanding, plus the veto-mode vote.
package groups

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/mikepea/flickpick/pkg/flickpick/apierror"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"gorm.io/gorm"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// maxCodeAttempts only matters once the code space is nearly full
	maxCodeAttempts = 50
)

var (
	ErrGroupNotFound = apierror.NotFound("group_not_found", "Group not found")
	ErrNoActiveGroup = apierror.Conflict("no_active_group", "Not in an active group")
	errCodeExhausted = errors.New("could not generate a unique group code")
)

// NormalizeCode upper-cases and trims a join code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func randomCode() (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// generateCode returns a code no existing group uses
func generateCode(tx *gorm.DB) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		var count int64
		if err := tx.Model(&models.Group{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errCodeExhausted
}

// Find loads a group by join code
func Find(tx *gorm.DB, code string) (*models.Group, error) {
	var group models.Group
	if err := tx.Where("code = ?", NormalizeCode(code)).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return &group, nil
}

// ClearSelection removes every movie vote and candidate of the group and
// resets its current and winner pointers.
func ClearSelection(tx *gorm.DB, group *models.Group) error {
	if err := tx.Where("group_id = ?", group.ID).Delete(&models.MovieVote{}).Error; err != nil {
		return fmt.Errorf("delete movie votes: %w", err)
	}
	group.CurrentCandidateID = nil
	group.WinnerCandidateID = nil
	pointers := map[string]any{"current_candidate_id": nil, "winner_candidate_id": nil}
	if err := tx.Model(&models.Group{}).Where("id = ?", group.ID).Updates(pointers).Error; err != nil {
		return fmt.Errorf("clear candidate pointers: %w", err)
	}
	if err := tx.Where("group_id = ?", group.ID).Delete(&models.MovieCandidate{}).Error; err != nil {
		return fmt.Errorf("delete candidates: %w", err)
	}
	return nil
}

// Disband deletes the group and every row that belongs to it, children first
func Disband(tx *gorm.DB, group *models.Group) error {
	if err := ClearSelection(tx, group); err != nil {
		return err
	}
	children := []any{
		&models.SettingVote{},
		&models.GenreVote{},
		&models.GenreNomination{},
		&models.GenreFinalized{},
		&models.Participant{},
	}
	for _, model := range children {
		if err := tx.Where("group_id = ?", group.ID).Delete(model).Error; err != nil {
			return fmt.Errorf("disband group %s: %w", group.Code, err)
		}
	}
	if err := tx.Delete(group).Error; err != nil {
		return fmt.Errorf("disband group %s: %w", group.Code, err)
	}
	return nil
}

// removeParticipant deletes a non-host participant and everything they cast
func removeParticipant(tx *gorm.DB, p *models.Participant) error {
	children := []any{
		&models.MovieVote{},
		&models.SettingVote{},
		&models.GenreVote{},
		&models.GenreNomination{},
	}
	for _, model := range children {
		if err := tx.Where("participant_id = ?", p.ID).Delete(model).Error; err != nil {
			return fmt.Errorf("remove participant %d: %w", p.ID, err)
		}
	}
	return tx.Delete(p).Error
}

// FinalizedGenres returns the group's finalized genres, primary first
func FinalizedGenres(tx *gorm.DB, groupID uint) ([]string, error) {
	var rows []models.GenreFinalized
	if err := tx.Where("group_id = ?", groupID).Order("rank asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	genres := make([]string, len(rows))
	for i, r := range rows {
		genres[i] = r.Genre
	}
	return genres, nil
}
