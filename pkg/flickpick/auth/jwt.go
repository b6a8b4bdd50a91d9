package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	// DefaultTokenTTL is used when no TTL is configured
	DefaultTokenTTL = 60 * time.Minute
	tokenIssuer     = "flickpick"
	participantTag  = "participant:"
)

// SubjectKind says what a token subject refers to
type SubjectKind string

const (
	SubjectAccount     SubjectKind = "user"
	SubjectParticipant SubjectKind = "participant"
	SubjectUnknown     SubjectKind = "unknown"
)

// Subject is the decoded "sub" claim: "<account id>" or "participant:<id>"
type Subject struct {
	Kind SubjectKind
	ID   uint
}

func (s Subject) String() string {
	switch s.Kind {
	case SubjectAccount:
		return strconv.FormatUint(uint64(s.ID), 10)
	case SubjectParticipant:
		return participantTag + strconv.FormatUint(uint64(s.ID), 10)
	}
	return ""
}

// ParseSubject decodes a subject string. Anything unrecognised has kind SubjectUnknown.
func ParseSubject(sub string) Subject {
	kind := SubjectAccount
	raw := sub
	if rest, ok := strings.CutPrefix(sub, participantTag); ok {
		kind = SubjectParticipant
		raw = rest
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return Subject{Kind: SubjectUnknown}
	}
	return Subject{Kind: kind, ID: uint(id)}
}

// Claims represents the JWT claims
type Claims struct {
	Email      string `json:"email,omitempty"`
	SystemRole string `json:"system_role,omitempty"`
	GroupID    uint   `json:"group_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 tokens
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a token service. A zero ttl means DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// IssueAccountToken creates a token for a registered user
func (s *TokenService) IssueAccountToken(user models.User) (string, error) {
	return s.issue(Subject{Kind: SubjectAccount, ID: user.ID}, &Claims{
		Email:      user.Email,
		SystemRole: string(user.SystemRole),
	})
}

// IssueParticipantToken creates a token bound to one guest participant
func (s *TokenService) IssueParticipantToken(p models.Participant) (string, error) {
	return s.issue(Subject{Kind: SubjectParticipant, ID: p.ID}, &Claims{GroupID: p.GroupID})
}

func (s *TokenService) issue(subject Subject, claims *Claims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    tokenIssuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns its claims and decoded subject
func (s *TokenService) Verify(tokenString string) (*Claims, Subject, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, Subject{}, ErrExpiredToken
		}
		return nil, Subject{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, Subject{}, ErrInvalidToken
	}

	return claims, ParseSubject(claims.Subject), nil
}
