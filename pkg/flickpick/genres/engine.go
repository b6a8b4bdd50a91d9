// Package genres runs the genre nomination and voting rounds that pick a
// group's one or two finalized genres.
package genres

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mikepea/flickpick/pkg/flickpick/apierror"
	"github.com/mikepea/flickpick/pkg/flickpick/groups"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"gorm.io/gorm"
)

const (
	MaxNominationsPerParticipant = 2
	MaxVotesPerParticipant       = 3
	// FinalizedCount is how many genres movie sourcing works with
	FinalizedCount = 2
)

// Allowed is the fixed genre allow-list, in display order
var Allowed = []string{
	"Action", "Comedy", "Drama", "Thriller", "Horror", "Sci-Fi", "Romance",
	"Animation", "Family", "Adventure", "Documentary", "Fantasy", "Mystery", "Crime",
}

var canonical = func() map[string]string {
	m := make(map[string]string, len(Allowed))
	for _, g := range Allowed {
		m[strings.ToLower(g)] = g
	}
	return m
}()

var (
	ErrInvalidGenre      = apierror.BadRequest("invalid_genre", "Invalid genre")
	ErrGenreNotNominated = apierror.BadRequest("genre_not_nominated", "Genre not nominated")
	ErrNominationLimit   = apierror.Conflict("nomination_limit_exceeded", "Nomination would exceed limit (2)")
	ErrVoteLimit         = apierror.Conflict("vote_limit_exceeded", "Vote limit reached (3)")
	errGenreCount        = apierror.BadRequest("invalid_genre_count", "Nominate one or two genres")
	errNominationsClosed = apierror.Conflict("nominations_closed", "Group is not accepting nominations")
	errVotingClosed      = apierror.Conflict("voting_closed", "Group is not in genre voting")
	errHostOnly          = apierror.Forbidden("host_only", "Only the host can reset genres")
)

// Canonical maps a user-supplied name onto the allow-list
func Canonical(name string) (string, bool) {
	g, ok := canonical[strings.ToLower(strings.TrimSpace(name))]
	return g, ok
}

// Count is a genre with a tally, used for nominations and votes
type Count struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}

func sortCounts(counts []Count) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Genre < counts[j].Genre
	})
}

// Nominate records up to two genres for participant. Genres the
// participant already nominated are skipped. It returns how many
// nominations were created.
func Nominate(tx *gorm.DB, group *models.Group, participant *models.Participant, names []string) (int, error) {
	var requested []string
	seen := make(map[string]bool)
	for _, name := range names {
		g, ok := Canonical(name)
		if !ok {
			return 0, ErrInvalidGenre.With("genre", name)
		}
		if !seen[g] {
			seen[g] = true
			requested = append(requested, g)
		}
	}
	if len(requested) == 0 || len(requested) > MaxNominationsPerParticipant {
		return 0, errGenreCount
	}
	if !group.CanNominate() {
		return 0, errNominationsClosed.With("phase", group.Phase)
	}

	var existing []models.GenreNomination
	if err := tx.Where("group_id = ? AND participant_id = ?", group.ID, participant.ID).Find(&existing).Error; err != nil {
		return 0, err
	}
	already := make(map[string]bool, len(existing))
	for _, n := range existing {
		already[n.Genre] = true
	}
	var fresh []string
	for _, g := range requested {
		if !already[g] {
			fresh = append(fresh, g)
		}
	}
	// Only genres this participant has not nominated yet count toward the cap.
	if len(existing)+len(fresh) > MaxNominationsPerParticipant {
		return 0, ErrNominationLimit
	}

	for _, g := range fresh {
		nomination := models.GenreNomination{GroupID: group.ID, ParticipantID: participant.ID, Genre: g}
		if err := tx.Create(&nomination).Error; err != nil {
			return 0, fmt.Errorf("create nomination: %w", err)
		}
	}
	if err := advanceAfterNominations(tx, group); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// Recheck re-runs the phase transition for group's current genre phase.
// It is needed whenever the participant count drops.
func Recheck(tx *gorm.DB, group *models.Group) error {
	switch group.Phase {
	case models.PhaseGenreNomination:
		return advanceAfterNominations(tx, group)
	case models.PhaseGenreVoting:
		return finalizeAfterVotes(tx, group)
	}
	return nil
}

// advanceAfterNominations finalizes straight away for a single
// participant, otherwise opens voting once everyone has nominated
func advanceAfterNominations(tx *gorm.DB, group *models.Group) error {
	total, err := groups.CountParticipants(tx, group.ID)
	if err != nil || total == 0 {
		return err
	}

	var nominations []models.GenreNomination
	if err := tx.Where("group_id = ?", group.ID).Order("id asc").Find(&nominations).Error; err != nil {
		return err
	}
	if len(nominations) == 0 {
		return nil
	}

	if total == 1 {
		var picked []string
		seen := make(map[string]bool)
		for _, n := range nominations {
			if seen[n.Genre] {
				continue
			}
			seen[n.Genre] = true
			picked = append(picked, n.Genre)
			if len(picked) == FinalizedCount {
				break
			}
		}
		if err := setFinalized(tx, group.ID, picked); err != nil {
			return err
		}
		return setPhase(tx, group, models.PhaseMovieSelection)
	}

	nominees := make(map[uint]bool)
	for _, n := range nominations {
		nominees[n.ParticipantID] = true
	}
	if int64(len(nominees)) >= total {
		return setPhase(tx, group, models.PhaseGenreVoting)
	}
	return nil
}

// Vote records participant's vote for a nominated genre. Repeating a vote
// is a no-op. It returns the canonical genre name.
func Vote(tx *gorm.DB, group *models.Group, participant *models.Participant, name string) (string, error) {
	genre, ok := Canonical(name)
	if !ok {
		return "", ErrInvalidGenre.With("genre", name)
	}
	if !group.CanVoteGenres() {
		return "", errVotingClosed.With("phase", group.Phase)
	}

	var nominated int64
	if err := tx.Model(&models.GenreNomination{}).Where("group_id = ? AND genre = ?", group.ID, genre).Count(&nominated).Error; err != nil {
		return "", err
	}
	if nominated == 0 {
		return "", ErrGenreNotNominated.With("genre", genre)
	}

	var existing []models.GenreVote
	if err := tx.Where("group_id = ? AND participant_id = ?", group.ID, participant.ID).Find(&existing).Error; err != nil {
		return "", err
	}
	for _, v := range existing {
		if v.Genre == genre {
			return genre, finalizeAfterVotes(tx, group)
		}
	}
	if len(existing) >= MaxVotesPerParticipant {
		return "", ErrVoteLimit
	}

	vote := models.GenreVote{GroupID: group.ID, ParticipantID: participant.ID, Genre: genre, Value: 1}
	if err := tx.Create(&vote).Error; err != nil {
		return "", fmt.Errorf("create genre vote: %w", err)
	}
	return genre, finalizeAfterVotes(tx, group)
}

// finalizeAfterVotes picks the top genres once every participant has voted.
// When only one genre got votes the runner-up is the first other nominated
// genre by name.
func finalizeAfterVotes(tx *gorm.DB, group *models.Group) error {
	total, err := groups.CountParticipants(tx, group.ID)
	if err != nil || total == 0 {
		return err
	}
	var voters int64
	if err := tx.Model(&models.GenreVote{}).Where("group_id = ?", group.ID).Distinct("participant_id").Count(&voters).Error; err != nil {
		return err
	}
	if voters < total {
		return nil
	}

	standings, err := Standings(tx, group.ID)
	if err != nil || len(standings) == 0 {
		return err
	}
	var top []string
	for _, s := range standings[:min(FinalizedCount, len(standings))] {
		top = append(top, s.Genre)
	}
	if len(top) < FinalizedCount {
		top, err = fillFromNominations(tx, group.ID, top)
		if err != nil {
			return err
		}
	}
	if err := setFinalized(tx, group.ID, top); err != nil {
		return err
	}
	slog.Info("genres finalized", "group_code", group.Code, "genres", top)
	return setPhase(tx, group, models.PhaseMovieSelection)
}

// fillFromNominations tops up picked with nominated genres nobody voted
// for, by name
func fillFromNominations(tx *gorm.DB, groupID uint, picked []string) ([]string, error) {
	var names []string
	err := tx.Model(&models.GenreNomination{}).
		Where("group_id = ? AND genre NOT IN ?", groupID, picked).
		Distinct("genre").
		Order("genre asc").
		Pluck("genre", &names).Error
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if len(picked) == FinalizedCount {
			break
		}
		picked = append(picked, name)
	}
	return picked, nil
}

func setFinalized(tx *gorm.DB, groupID uint, genres []string) error {
	if err := tx.Where("group_id = ?", groupID).Delete(&models.GenreFinalized{}).Error; err != nil {
		return err
	}
	for rank, g := range genres {
		row := models.GenreFinalized{GroupID: groupID, Genre: g, Rank: rank}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("store finalized genre: %w", err)
		}
	}
	return nil
}

func setPhase(tx *gorm.DB, group *models.Group, phase models.Phase) error {
	if err := tx.Model(group).Update("phase", phase).Error; err != nil {
		return err
	}
	group.Phase = phase
	return nil
}

// Nominations tallies nominations per genre, most nominated first
func Nominations(tx *gorm.DB, groupID uint) ([]Count, error) {
	var counts []Count
	err := tx.Model(&models.GenreNomination{}).
		Select("genre, count(*) as count").
		Where("group_id = ?", groupID).
		Group("genre").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	sortCounts(counts)
	return counts, nil
}

// Standings tallies votes per genre, ties broken by name
func Standings(tx *gorm.DB, groupID uint) ([]Count, error) {
	var counts []Count
	err := tx.Model(&models.GenreVote{}).
		Select("genre, sum(value) as count").
		Where("group_id = ?", groupID).
		Group("genre").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	sortCounts(counts)
	return counts, nil
}

// Reset wipes nominations, votes, finalized genres and the whole movie
// selection, then reopens nominations
func Reset(tx *gorm.DB, group *models.Group) error {
	for _, model := range []any{&models.GenreVote{}, &models.GenreNomination{}, &models.GenreFinalized{}} {
		if err := tx.Where("group_id = ?", group.ID).Delete(model).Error; err != nil {
			return fmt.Errorf("reset genres: %w", err)
		}
	}
	if err := groups.ClearSelection(tx, group); err != nil {
		return err
	}
	return setPhase(tx, group, models.PhaseGenreNomination)
}
