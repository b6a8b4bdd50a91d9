// Package selection walks a group through its movie candidates: one
// current candidate at a time, majority votes, vetoes and the final pick.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mikepea/flickpick/pkg/flickpick/apierror"
	"github.com/mikepea/flickpick/pkg/flickpick/catalog"
	"github.com/mikepea/flickpick/pkg/flickpick/groups"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"github.com/mikepea/flickpick/pkg/flickpick/queue"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status values reported to clients
const (
	StatusCurrent   = "current"
	StatusPending   = "pending"
	StatusFinalized = "finalized"
)

var (
	ErrNoActiveCandidate = apierror.Conflict("no_active_candidate", "No active candidate")
	ErrGroupFinalized    = apierror.Conflict("group_finalized", "Group has already picked a movie")
	ErrVetoDisabled      = apierror.Conflict("veto_disabled", "Veto mode is not enabled")
	ErrVetoAlreadyUsed   = apierror.Conflict("veto_already_used", "Veto already used")
	errNoCandidates      = apierror.Unavailable("no_candidates_available", "No catalog candidates available; please retry or reset genres")
	errNotConfigured     = apierror.Unavailable("catalog_not_configured", "Movie catalog is not configured")
)

// Sourcer produces candidates. queue.Builder is the production implementation.
type Sourcer interface {
	Configured() bool
	BuildQueue(ctx context.Context, genres, shared []string, target int) []queue.Item
	NextCandidate(ctx context.Context, used map[string]bool, shared, genres []string) *queue.Item
}

// Result is the outcome of a selection operation
type Result struct {
	Status    string
	Candidate *models.MovieCandidate
}

// Machine is the movie selection state machine. It keeps no state of its
// own; everything lives in the group's rows.
type Machine struct {
	sourcer   Sourcer
	queueSize int
	logger    *slog.Logger
}

// NewMachine creates a Machine. queueSize is the prebuilt queue target.
func NewMachine(sourcer Sourcer, queueSize int, logger *slog.Logger) *Machine {
	if queueSize <= 0 {
		queueSize = queue.DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{sourcer: sourcer, queueSize: queueSize, logger: logger}
}

// CatalogConfigured reports whether new candidates can be sourced
func (m *Machine) CatalogConfigured() bool {
	return m.sourcer.Configured()
}

func (m *Machine) setCurrent(tx *gorm.DB, group *models.Group, id *uint) error {
	if err := tx.Model(&models.Group{}).Where("id = ?", group.ID).Update("current_candidate_id", id).Error; err != nil {
		return fmt.Errorf("set current candidate: %w", err)
	}
	group.CurrentCandidateID = id
	return nil
}

func (m *Machine) loadCurrent(tx *gorm.DB, group *models.Group) (*models.MovieCandidate, error) {
	if group.CurrentCandidateID == nil {
		return nil, nil
	}
	var current models.MovieCandidate
	if err := tx.First(&current, *group.CurrentCandidateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if current.Disqualified {
		return nil, nil
	}
	return &current, nil
}

// purgeForeign drops candidates that did not come from the catalog, with their votes
func (m *Machine) purgeForeign(tx *gorm.DB, group *models.Group) error {
	var foreign []models.MovieCandidate
	if err := tx.Where("group_id = ? AND source <> ?", group.ID, catalog.SourceTMDb).Find(&foreign).Error; err != nil {
		return err
	}
	if len(foreign) == 0 {
		return nil
	}
	ids := make([]uint, len(foreign))
	for i, c := range foreign {
		ids[i] = c.ID
		if group.CurrentCandidateID != nil && *group.CurrentCandidateID == c.ID {
			if err := m.setCurrent(tx, group, nil); err != nil {
				return err
			}
		}
	}
	if err := tx.Where("candidate_id IN ?", ids).Delete(&models.MovieVote{}).Error; err != nil {
		return err
	}
	m.logger.Info("purged non-catalog candidates", "group_code", group.Code, "count", len(ids))
	return tx.Delete(&models.MovieCandidate{}, ids).Error
}

func (m *Machine) store(tx *gorm.DB, group *models.Group, item queue.Item) (*models.MovieCandidate, error) {
	candidate := models.MovieCandidate{
		GroupID:  group.ID,
		Title:    item.Title,
		Source:   item.Source,
		Metadata: datatypes.NewJSONType(item.Meta),
	}
	if err := tx.Create(&candidate).Error; err != nil {
		return nil, fmt.Errorf("store candidate: %w", err)
	}
	return &candidate, nil
}

func (m *Machine) oldestOpen(tx *gorm.DB, group *models.Group) (*models.MovieCandidate, error) {
	var next models.MovieCandidate
	err := tx.Where("group_id = ? AND disqualified = ?", group.ID, false).Order("id asc").First(&next).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// Current returns the group's current candidate, sourcing one when needed.
// Once genres are finalized and the catalog is available only queued
// candidates count; open candidates picked earlier give way to a fresh queue.
func (m *Machine) Current(ctx context.Context, tx *gorm.DB, group *models.Group) (Result, error) {
	if group.IsFinalized() && group.WinnerCandidateID != nil {
		var winner models.MovieCandidate
		if err := tx.First(&winner, *group.WinnerCandidateID).Error; err == nil {
			return Result{Status: StatusFinalized, Candidate: &winner}, nil
		}
	}

	configured := m.sourcer.Configured()
	if configured {
		if err := m.purgeForeign(tx, group); err != nil {
			return Result{}, err
		}
	}

	genres, err := groups.FinalizedGenres(tx, group.ID)
	if err != nil {
		return Result{}, err
	}
	queueMode := configured && len(genres) > 0

	current, err := m.loadCurrent(tx, group)
	if err != nil {
		return Result{}, err
	}
	if current != nil && (!queueMode || current.FromQueue()) {
		return Result{Status: StatusCurrent, Candidate: current}, nil
	}
	if group.CurrentCandidateID != nil {
		if err := m.setCurrent(tx, group, nil); err != nil {
			return Result{}, err
		}
	}

	if queueMode {
		if err := m.ensureQueue(ctx, tx, group, genres); err != nil {
			return Result{}, err
		}
	}

	next, err := m.oldestOpen(tx, group)
	if err != nil {
		return Result{}, err
	}
	if next != nil {
		if err := m.setCurrent(tx, group, &next.ID); err != nil {
			return Result{}, err
		}
		return Result{Status: StatusCurrent, Candidate: next}, nil
	}

	candidate, err := m.singlePick(ctx, tx, group, genres, queueMode)
	if err != nil {
		return Result{}, err
	}
	if err := m.setCurrent(tx, group, &candidate.ID); err != nil {
		return Result{}, err
	}
	return Result{Status: StatusCurrent, Candidate: candidate}, nil
}

// ensureQueue drops open candidates picked before genres were final and
// prebuilds the queue if the group has none. Disqualified rows are kept
// so their titles stay used.
func (m *Machine) ensureQueue(ctx context.Context, tx *gorm.DB, group *models.Group, genres []string) error {
	var candidates []models.MovieCandidate
	if err := tx.Where("group_id = ?", group.ID).Order("id asc").Find(&candidates).Error; err != nil {
		return err
	}
	queued := false
	var stale []uint
	used := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		switch {
		case c.FromQueue():
			queued = true
		case !c.Disqualified:
			stale = append(stale, c.ID)
			continue
		}
		used[queue.TitleKey(c.Title)] = true
	}

	if len(stale) > 0 {
		m.logger.Info("dropping candidates picked before genres were final", "group_code", group.Code, "count", len(stale))
		if err := tx.Where("group_id = ?", group.ID).Delete(&models.MovieVote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", stale).Delete(&models.MovieCandidate{}).Error; err != nil {
			return err
		}
	}
	if queued {
		return nil
	}
	m.logger.Info("building queue for finalized genres", "group_code", group.Code, "genres", genres)
	return m.prebuild(ctx, tx, group, genres, used)
}

func (m *Machine) prebuild(ctx context.Context, tx *gorm.DB, group *models.Group, genres []string, used map[string]bool) error {
	shared, err := groups.SharedProviders(tx, group.ID)
	if err != nil {
		return err
	}
	stored := 0
	for _, item := range m.sourcer.BuildQueue(ctx, genres, shared, m.queueSize) {
		if used[queue.TitleKey(item.Title)] {
			continue
		}
		if _, err := m.store(tx, group, item); err != nil {
			return err
		}
		stored++
	}
	m.logger.Info("queue prebuilt", "group_code", group.Code, "size", stored)
	return nil
}

// singlePick relaxes filters step by step: tiered genres with providers,
// then no genres, then nothing at all. Picks made while the group is on a
// queue are tagged as queue fallbacks.
func (m *Machine) singlePick(ctx context.Context, tx *gorm.DB, group *models.Group, genres []string, queueMode bool) (*models.MovieCandidate, error) {
	if !m.sourcer.Configured() {
		return nil, errNotConfigured
	}

	var titles []string
	if err := tx.Model(&models.MovieCandidate{}).Where("group_id = ?", group.ID).Pluck("title", &titles).Error; err != nil {
		return nil, err
	}
	used := make(map[string]bool, len(titles))
	for _, t := range titles {
		used[queue.TitleKey(t)] = true
	}
	shared, err := groups.SharedProviders(tx, group.ID)
	if err != nil {
		return nil, err
	}

	item := m.sourcer.NextCandidate(ctx, used, shared, genres)
	if item == nil {
		item = m.sourcer.NextCandidate(ctx, used, shared, nil)
	}
	if item == nil {
		item = m.sourcer.NextCandidate(ctx, nil, nil, nil)
	}
	if item == nil {
		m.logger.Warn("no candidate available", "group_code", group.Code, "genres", genres)
		return nil, errNoCandidates
	}
	if queueMode {
		item.Meta.Reason = queue.FallbackReason(item.Meta.Reason)
	}
	return m.store(tx, group, *item)
}

// activeCandidate is the candidate votes and vetoes apply to
func (m *Machine) activeCandidate(tx *gorm.DB, group *models.Group) (*models.MovieCandidate, error) {
	if group.IsFinalized() {
		return nil, ErrGroupFinalized
	}
	current, err := m.loadCurrent(tx, group)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNoActiveCandidate
	}
	return current, nil
}

// disqualify retires the candidate and moves the group on
func (m *Machine) disqualify(ctx context.Context, tx *gorm.DB, group *models.Group, candidate *models.MovieCandidate) (Result, error) {
	if err := tx.Model(candidate).Update("disqualified", true).Error; err != nil {
		return Result{}, err
	}
	if err := tx.Where("group_id = ? AND candidate_id = ?", group.ID, candidate.ID).Delete(&models.MovieVote{}).Error; err != nil {
		return Result{}, err
	}
	if err := m.setCurrent(tx, group, nil); err != nil {
		return Result{}, err
	}
	return m.Current(ctx, tx, group)
}

// Vote records the participant's accept or reject on the current
// candidate. A strict majority of accepts picks the winner; a strict
// majority of rejects moves to the next candidate.
func (m *Machine) Vote(ctx context.Context, tx *gorm.DB, group *models.Group, participant *models.Participant, accept bool) (Result, error) {
	current, err := m.activeCandidate(tx, group)
	if err != nil {
		return Result{}, err
	}

	value := 0
	if accept {
		value = 1
	}
	var vote models.MovieVote
	err = tx.Where("group_id = ? AND participant_id = ?", group.ID, participant.ID).First(&vote).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		vote = models.MovieVote{GroupID: group.ID, ParticipantID: participant.ID, CandidateID: current.ID, Value: value}
		if err := tx.Create(&vote).Error; err != nil {
			return Result{}, err
		}
	case err != nil:
		return Result{}, err
	default:
		if err := tx.Model(&vote).Updates(map[string]any{"candidate_id": current.ID, "value": value}).Error; err != nil {
			return Result{}, err
		}
	}

	var votes []models.MovieVote
	if err := tx.Where("group_id = ? AND candidate_id = ?", group.ID, current.ID).Find(&votes).Error; err != nil {
		return Result{}, err
	}
	total, err := groups.CountParticipants(tx, group.ID)
	if err != nil {
		return Result{}, err
	}
	var yes, no int64
	for _, v := range votes {
		if v.Value == 1 {
			yes++
		} else {
			no++
		}
	}

	switch {
	case yes*2 > total:
		updates := map[string]any{"winner_candidate_id": current.ID, "phase": models.PhaseFinalized}
		if err := tx.Model(&models.Group{}).Where("id = ?", group.ID).Updates(updates).Error; err != nil {
			return Result{}, err
		}
		group.WinnerCandidateID = &current.ID
		group.Phase = models.PhaseFinalized
		m.logger.Info("movie picked", "group_code", group.Code, "candidate_id", current.ID, "title", current.Title)
		return Result{Status: StatusFinalized, Candidate: current}, nil
	case no*2 > total:
		m.logger.Debug("candidate rejected", "group_code", group.Code, "candidate_id", current.ID)
		return m.disqualify(ctx, tx, group, current)
	}
	return Result{Status: StatusPending}, nil
}

// UseVeto spends the participant's veto on the current candidate
func (m *Machine) UseVeto(ctx context.Context, tx *gorm.DB, group *models.Group, participant *models.Participant) (Result, error) {
	if !group.VetoIsEnabled() {
		return Result{}, ErrVetoDisabled
	}
	if participant.VetoUsed {
		return Result{}, ErrVetoAlreadyUsed
	}
	current, err := m.activeCandidate(tx, group)
	if err != nil {
		return Result{}, err
	}

	if err := tx.Model(participant).Updates(map[string]any{"veto_used": true, "has_veto": true}).Error; err != nil {
		return Result{}, err
	}
	m.logger.Info("veto used", "group_code", group.Code, "candidate_id", current.ID)
	return m.disqualify(ctx, tx, group, current)
}
