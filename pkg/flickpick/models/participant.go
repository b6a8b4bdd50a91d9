package models

import (
	"time"

	"gorm.io/datatypes"
)

// Participant is a member of a group, either account-backed or a guest.
type Participant struct {
	ID          uint                        `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
	GroupID     uint                        `gorm:"not null;index;uniqueIndex:idx_participant_group_account" json:"group_id"`
	AccountID   *uint                       `gorm:"index;uniqueIndex:idx_participant_group_account" json:"account_id,omitempty"`
	DisplayName string                      `gorm:"not null" json:"display_name"`
	IsHost      bool                        `gorm:"index;default:false" json:"is_host"`
	HasVeto     bool                        `gorm:"default:false" json:"has_veto"`
	VetoUsed    bool                        `gorm:"default:false" json:"veto_used"`
	Providers   datatypes.JSONSlice[string] `json:"streaming_services,omitempty"`
}

// IsGuest reports whether the participant has no backing account.
func (p *Participant) IsGuest() bool {
	return p.AccountID == nil
}
