package fingerprint

import (
	"context"

	"pollster/internal/respondent/models"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
)

// Matcher finds a known respondent that is probably the same visitor.
// Implementations return sentinel.ErrNotFound when nothing qualifies.
type Matcher interface {
	Match(ctx context.Context, fingerprint string, userID *id.UserID) (*models.Respondent, error)
}

// Candidates lists respondents sharing a fingerprint, most recently active
// first, excluding merged and deleted ones.
type Candidates interface {
	FindByFingerprint(ctx context.Context, fingerprint string, limit int) ([]*models.Respondent, error)
}

// RecentMatcher adopts the most recently active respondent with the same
// fingerprint. A signed-in user only matches respondents linked to them, so
// signing in never claims a stranger's anonymous history. Anonymous requests
// match unlinked respondents only.
type RecentMatcher struct {
	candidates Candidates
	limit      int
}

func NewRecentMatcher(candidates Candidates) *RecentMatcher {
	return &RecentMatcher{candidates: candidates, limit: 20}
}

func (m *RecentMatcher) Match(ctx context.Context, fp string, userID *id.UserID) (*models.Respondent, error) {
	if fp == "" {
		return nil, sentinel.ErrNotFound
	}
	found, err := m.candidates.FindByFingerprint(ctx, fp, m.limit)
	if err != nil {
		return nil, err
	}
	for _, r := range found {
		if !r.IsLive() {
			continue
		}
		if userID == nil && r.IsUnlinked() {
			return r, nil
		}
		if userID != nil && r.IsLinkedTo(*userID) {
			return r, nil
		}
	}
	return nil, sentinel.ErrNotFound
}
