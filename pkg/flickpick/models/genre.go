package models

import "time"

// GenreNomination is one genre put forward by a participant. Row id order is nomination order.
type GenreNomination struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	GroupID       uint      `gorm:"not null;index;uniqueIndex:idx_nomination" json:"group_id"`
	ParticipantID uint      `gorm:"not null;index;uniqueIndex:idx_nomination" json:"participant_id"`
	Genre         string    `gorm:"not null;size:32;uniqueIndex:idx_nomination" json:"genre"`
}

// GenreVote is a participant's vote for a nominated genre
type GenreVote struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	GroupID       uint      `gorm:"not null;index;uniqueIndex:idx_genre_vote" json:"group_id"`
	ParticipantID uint      `gorm:"not null;index;uniqueIndex:idx_genre_vote" json:"participant_id"`
	Genre         string    `gorm:"not null;size:32;uniqueIndex:idx_genre_vote" json:"genre"`
	Value         int       `gorm:"not null;default:1" json:"value"`
}

// GenreFinalized is one of the (at most two) genres chosen for movie sourcing.
// Rank 0 is the primary genre.
type GenreFinalized struct {
	ID      uint   `gorm:"primarykey" json:"id"`
	GroupID uint   `gorm:"not null;index;uniqueIndex:idx_genre_finalized" json:"group_id"`
	Genre   string `gorm:"not null;size:32;uniqueIndex:idx_genre_finalized" json:"genre"`
	Rank    int    `gorm:"not null;default:0" json:"rank"`
}

// TableName keeps the singular table name used by the finalized-genre queries
func (GenreFinalized) TableName() string {
	return "genre_finalized"
}
