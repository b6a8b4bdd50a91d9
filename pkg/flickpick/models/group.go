package models

import "time"

// Phase is a group's position in the decision pipeline
type Phase string

const (
	PhaseSetup           Phase = "setup"
	PhaseGenreNomination Phase = "genre_nomination"
	PhaseGenreVoting     Phase = "genre_voting"
	PhaseMovieSelection  Phase = "movie_selection"
	PhaseFinalized       Phase = "finalized"
)

// Group is one decision-making session identified by a join code.
// CurrentCandidateID and WinnerCandidateID are only written by the selection state machine.
type Group struct {
	ID                 uint       `gorm:"primarykey" json:"id"`
	CreatedAt          time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Code               string     `gorm:"uniqueIndex;size:16;not null" json:"code"`
	Phase              Phase      `gorm:"type:varchar(32);index;default:'setup'" json:"phase"`
	HostUserID         *uint      `gorm:"index" json:"host_user_id,omitempty"`
	VetoEnabled        *bool      `json:"veto_enabled"`
	VetoDecidedAt      *time.Time `json:"veto_decided_at,omitempty"`
	CurrentCandidateID *uint      `json:"current_candidate_id,omitempty"`
	WinnerCandidateID  *uint      `json:"winner_candidate_id,omitempty"`
}

// IsActive reports whether the group still counts against the single-active-group rule.
func (g *Group) IsActive() bool {
	return g.Phase != PhaseFinalized
}

func (g *Group) IsFinalized() bool {
	return g.Phase == PhaseFinalized
}

func (g *Group) CanNominate() bool {
	return g.Phase == PhaseGenreNomination
}

func (g *Group) CanVoteGenres() bool {
	return g.Phase == PhaseGenreVoting
}

// VetoIsEnabled is false while the veto mode is still undecided.
func (g *Group) VetoIsEnabled() bool {
	return g.VetoEnabled != nil && *g.VetoEnabled
}
