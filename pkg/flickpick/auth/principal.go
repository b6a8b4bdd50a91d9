package auth

import (
	"errors"
	"fmt"

	"github.com/mikepea/flickpick/pkg/flickpick/apierror"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"gorm.io/gorm"
)

var (
	ErrAuthRequired      = apierror.Unauthorized("authentication_required", "Authentication required")
	ErrInvalidCredential = apierror.Unauthorized("invalid_credential", "Invalid or expired token")
	ErrWrongGroup        = apierror.Forbidden("wrong_group", "Token belongs to a different group")
	ErrNotAMember        = apierror.Forbidden("not_a_member", "Not a member of this group")
)

// Principal is the authenticated caller: an AccountPrincipal or a
// ParticipantPrincipal. A nil Principal means an anonymous caller.
type Principal interface {
	Kind() SubjectKind
}

// AccountPrincipal is a registered user
type AccountPrincipal struct {
	User models.User
}

func (AccountPrincipal) Kind() SubjectKind { return SubjectAccount }

// ParticipantPrincipal is a guest bound to exactly one group
type ParticipantPrincipal struct {
	Participant models.Participant
}

func (ParticipantPrincipal) Kind() SubjectKind { return SubjectParticipant }

// Resolver turns credentials into principals and principals into group members
type Resolver struct {
	db     *gorm.DB
	tokens *TokenService
}

// NewResolver creates a resolver
func NewResolver(db *gorm.DB, tokens *TokenService) *Resolver {
	return &Resolver{db: db, tokens: tokens}
}

// Tokens returns the token service used for verification
func (r *Resolver) Tokens() *TokenService {
	return r.tokens
}

// Resolve decodes token and loads the entity it names. An empty token
// yields a nil principal and no error.
func (r *Resolver) Resolve(token string) (Principal, error) {
	if token == "" {
		return nil, nil
	}
	_, subject, err := r.tokens.Verify(token)
	if err != nil {
		return nil, ErrInvalidCredential
	}

	switch subject.Kind {
	case SubjectAccount:
		var user models.User
		if err := r.db.First(&user, subject.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrInvalidCredential
			}
			return nil, fmt.Errorf("load account %d: %w", subject.ID, err)
		}
		return AccountPrincipal{User: user}, nil
	case SubjectParticipant:
		var participant models.Participant
		if err := r.db.First(&participant, subject.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrInvalidCredential
			}
			return nil, fmt.Errorf("load participant %d: %w", subject.ID, err)
		}
		return ParticipantPrincipal{Participant: participant}, nil
	}
	return nil, ErrInvalidCredential
}

// RequireMember returns the caller's participant row in group.
// Participants must belong to the group; accounts must have a row in it.
func RequireMember(tx *gorm.DB, group *models.Group, principal Principal) (*models.Participant, error) {
	switch p := principal.(type) {
	case ParticipantPrincipal:
		if p.Participant.GroupID != group.ID {
			return nil, ErrWrongGroup
		}
		// reload so flags changed earlier in this request are visible
		var participant models.Participant
		if err := tx.First(&participant, p.Participant.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrInvalidCredential
			}
			return nil, err
		}
		return &participant, nil
	case AccountPrincipal:
		var participant models.Participant
		err := tx.Where("group_id = ? AND account_id = ?", group.ID, p.User.ID).First(&participant).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotAMember
			}
			return nil, err
		}
		return &participant, nil
	}
	return nil, ErrAuthRequired
}
