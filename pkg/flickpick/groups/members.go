package groups

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flickpick/pkg/flickpick/auth"
	"github.com/mikepea/flickpick/pkg/flickpick/catalog"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"gorm.io/gorm"
)

// Member loads the group named by the :code route parameter and the
// caller's participant row in it
func Member(c *gin.Context, tx *gorm.DB) (*models.Group, *models.Participant, error) {
	group, err := Find(tx, c.Param("code"))
	if err != nil {
		return nil, nil, err
	}
	participant, err := auth.RequireMember(tx, group, auth.GetPrincipal(c))
	if err != nil {
		return nil, nil, err
	}
	return group, participant, nil
}

// Participants returns the group's participants in join order
func Participants(tx *gorm.DB, groupID uint) ([]models.Participant, error) {
	var participants []models.Participant
	err := tx.Where("group_id = ?", groupID).Order("id asc").Find(&participants).Error
	return participants, err
}

// CountParticipants returns how many participants the group has
func CountParticipants(tx *gorm.DB, groupID uint) (int64, error) {
	var count int64
	err := tx.Model(&models.Participant{}).Where("group_id = ?", groupID).Count(&count).Error
	return count, err
}

// SharedProviders intersects every participant's declared providers. A nil
// result means unrestricted: someone declared none or nothing is shared.
func SharedProviders(tx *gorm.DB, groupID uint) ([]string, error) {
	participants, err := Participants(tx, groupID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, nil
	}

	shared := []string(participants[0].Providers)
	for _, p := range participants {
		if len(p.Providers) == 0 {
			return nil, nil
		}
		shared = catalog.Intersect(shared, p.Providers)
	}
	if len(shared) == 0 {
		return nil, nil
	}
	return shared, nil
}

// activeMembership finds the account's participant row in a non-finalized group
func activeMembership(tx *gorm.DB, userID uint) (*models.Participant, *models.Group, error) {
	var participants []models.Participant
	if err := tx.Where("account_id = ?", userID).Order("id desc").Find(&participants).Error; err != nil {
		return nil, nil, err
	}
	for i := range participants {
		var group models.Group
		if err := tx.First(&group, participants[i].GroupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, nil, err
		}
		if group.IsActive() {
			return &participants[i], &group, nil
		}
	}
	return nil, nil, nil
}
