package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ReasonQueuePrefix marks candidates that came from a prebuilt tiered queue
const ReasonQueuePrefix = "tmdb:queue"

// CandidateMeta is the free-form metadata stored with a candidate
type CandidateMeta struct {
	Year           *int     `json:"year"`
	Description    string   `json:"description"`
	PosterURL      *string  `json:"poster_url"`
	Providers      []string `json:"providers"`
	RottenTomatoes *int     `json:"rotten_tomatoes"`
	Reason         string   `json:"reason"`
}

// MovieCandidate is a title offered to a group. Only Disqualified changes after creation.
type MovieCandidate struct {
	ID           uint                              `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time                         `json:"created_at"`
	GroupID      uint                              `gorm:"not null;index" json:"group_id"`
	Title        string                            `gorm:"not null" json:"title"`
	Source       string                            `gorm:"size:32;index" json:"source"`
	Metadata     datatypes.JSONType[CandidateMeta] `json:"metadata"`
	Disqualified bool                              `gorm:"index;default:false" json:"disqualified"`
}

// FromQueue reports whether the candidate was placed by the tiered queue builder
func (m *MovieCandidate) FromQueue() bool {
	return strings.HasPrefix(m.Metadata.Data().Reason, ReasonQueuePrefix)
}

// MovieVote is a participant's single live vote on the group's current candidate
type MovieVote struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	UpdatedAt     time.Time `json:"updated_at"`
	GroupID       uint      `gorm:"not null;index;uniqueIndex:idx_movie_vote" json:"group_id"`
	ParticipantID uint      `gorm:"not null;uniqueIndex:idx_movie_vote" json:"participant_id"`
	CandidateID   uint      `gorm:"not null;index" json:"candidate_id"`
	Value         int       `gorm:"not null" json:"value"`
}
