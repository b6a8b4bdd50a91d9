package models

// SettingKeyVetoMode is the setting decided by the veto-mode vote
const SettingKeyVetoMode = "veto_mode"

// SettingVote is a participant's vote on a group-level setting
type SettingVote struct {
	ID            uint   `gorm:"primarykey" json:"id"`
	GroupID       uint   `gorm:"not null;index;uniqueIndex:idx_setting_vote" json:"group_id"`
	ParticipantID uint   `gorm:"not null;index;uniqueIndex:idx_setting_vote" json:"participant_id"`
	Key           string `gorm:"not null;size:32;uniqueIndex:idx_setting_vote" json:"key"`
	Value         bool   `json:"value"`
}
