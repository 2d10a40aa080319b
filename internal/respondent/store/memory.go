// Package store persists respondents and the session tokens that resolve to
// them.
package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"pollster/internal/respondent/models"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
	txcontext "pollster/pkg/platform/tx"
)

type session struct {
	respondentID id.RespondentID
	adopted      bool
	createdAt    time.Time
}

// InMemory is the memory backend. Mutations made inside a tx.Memory
// transaction are undone if the transaction fails.
type InMemory struct {
	mu          sync.RWMutex
	respondents map[id.RespondentID]*models.Respondent
	sessions    map[string]session
}

func NewInMemory() *InMemory {
	return &InMemory{
		respondents: make(map[id.RespondentID]*models.Respondent),
		sessions:    make(map[string]session),
	}
}

// remember registers an undo restoring respondentID to its current state.
// Caller holds s.mu.
func (s *InMemory) remember(ctx context.Context, respondentID id.RespondentID) {
	prev, existed := s.respondents[respondentID]
	prev = prev.Clone()
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.respondents[respondentID] = prev
		} else {
			delete(s.respondents, respondentID)
		}
	})
}

// rememberSession registers an undo for one session alias. Caller holds s.mu.
func (s *InMemory) rememberSession(ctx context.Context, token string) {
	prev, existed := s.sessions[token]
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.sessions[token] = prev
		} else {
			delete(s.sessions, token)
		}
	})
}

// Create inserts the respondent together with its session token. A taken
// token yields sentinel.ErrAlreadyUsed.
func (s *InMemory) Create(ctx context.Context, r *models.Respondent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.sessions[r.SessionToken]; taken {
		return sentinel.ErrAlreadyUsed
	}
	if _, exists := s.respondents[r.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.remember(ctx, r.ID)
	s.rememberSession(ctx, r.SessionToken)
	s.respondents[r.ID] = r.Clone()
	s.sessions[r.SessionToken] = session{respondentID: r.ID, createdAt: r.FirstSeenAt}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, respondentID id.RespondentID) (*models.Respondent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.respondents[respondentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// FindSession returns the alias for token.
func (s *InMemory) FindSession(_ context.Context, token string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &models.Session{
		Token:        token,
		RespondentID: sess.respondentID,
		Adopted:      sess.adopted,
		CreatedAt:    sess.createdAt,
	}, nil
}

// AddSession makes sess.Token resolve to sess.RespondentID. A taken token
// yields sentinel.ErrAlreadyUsed.
func (s *InMemory) AddSession(ctx context.Context, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.sessions[sess.Token]; taken {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.respondents[sess.RespondentID]; !ok {
		return sentinel.ErrNotFound
	}
	s.rememberSession(ctx, sess.Token)
	s.sessions[sess.Token] = session{respondentID: sess.RespondentID, adopted: sess.Adopted, createdAt: sess.CreatedAt}
	return nil
}

// DropSession removes one alias. A missing token is not an error.
func (s *InMemory) DropSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[token]; !ok {
		return nil
	}
	s.rememberSession(ctx, token)
	delete(s.sessions, token)
	return nil
}

func (s *InMemory) ReassignSessions(ctx context.Context, from, to id.RespondentID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, sess := range s.sessions {
		if sess.respondentID != from {
			continue
		}
		s.rememberSession(ctx, token)
		sess.respondentID = to
		s.sessions[token] = sess
		n++
	}
	return n, nil
}

func (s *InMemory) DeleteSessions(ctx context.Context, respondentID id.RespondentID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, sess := range s.sessions {
		if sess.respondentID != respondentID {
			continue
		}
		s.rememberSession(ctx, token)
		delete(s.sessions, token)
		n++
	}
	return n, nil
}

// Touch advances last activity unless the respondent is merged.
func (s *InMemory) Touch(ctx context.Context, respondentID id.RespondentID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.respondents[respondentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if r.IsMerged {
		return nil
	}
	s.remember(ctx, respondentID)
	r.Touch(now)
	return nil
}

// Execute validates and mutates one respondent atomically.
func (s *InMemory) Execute(ctx context.Context, respondentID id.RespondentID, validate func(*models.Respondent) error, mutate func(*models.Respondent)) (*models.Respondent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.respondents[respondentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := r.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.remember(ctx, respondentID)
	s.respondents[respondentID] = working
	return working.Clone(), nil
}

// LockForUpdate loads the given respondents for a read-modify-write cycle.
// The memory backend relies on tx.Memory for isolation.
func (s *InMemory) LockForUpdate(_ context.Context, ids ...id.RespondentID) (map[id.RespondentID]*models.Respondent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.RespondentID]*models.Respondent, len(ids))
	for _, rid := range ids {
		r, ok := s.respondents[rid]
		if !ok {
			return nil, sentinel.ErrNotFound
		}
		out[rid] = r.Clone()
	}
	return out, nil
}

// Update replaces a stored respondent.
func (s *InMemory) Update(ctx context.Context, r *models.Respondent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.respondents[r.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.remember(ctx, r.ID)
	s.respondents[r.ID] = r.Clone()
	return nil
}

// RepointMerged moves every respondent merged into from so it points at to,
// keeping the forwarding pointers one hop deep.
func (s *InMemory) RepointMerged(ctx context.Context, from, to id.RespondentID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for rid, r := range s.respondents {
		if r.MergedIntoID == nil || *r.MergedIntoID != from {
			continue
		}
		s.remember(ctx, rid)
		target := to
		r.MergedIntoID = &target
		n++
	}
	return n, nil
}

// FindByFingerprint lists live respondents with the fingerprint, most recently
// active first.
func (s *InMemory) FindByFingerprint(_ context.Context, fp string, limit int) ([]*models.Respondent, error) {
	return s.filter(func(r *models.Respondent) bool {
		return r.Fingerprint == fp && !r.IsMerged && !r.IsDeleted()
	}, limit), nil
}

func (s *InMemory) ListByUser(_ context.Context, userID id.UserID) ([]*models.Respondent, error) {
	return s.filter(func(r *models.Respondent) bool {
		return r.IsLinkedTo(userID)
	}, 0), nil
}

// FindAnonymousBySignals lists live, unlinked respondents sharing any of the
// fingerprints or IP addresses.
func (s *InMemory) FindAnonymousBySignals(_ context.Context, fingerprints, ips []string) ([]*models.Respondent, error) {
	if len(fingerprints) == 0 && len(ips) == 0 {
		return nil, nil
	}
	return s.filter(func(r *models.Respondent) bool {
		if !r.IsUnlinked() || !r.IsLive() {
			return false
		}
		return (r.Fingerprint != "" && slices.Contains(fingerprints, r.Fingerprint)) ||
			(r.IPAddress != "" && slices.Contains(ips, r.IPAddress))
	}, 0), nil
}

func (s *InMemory) ListMergedInto(_ context.Context, root id.RespondentID) ([]*models.Respondent, error) {
	return s.filter(func(r *models.Respondent) bool {
		return r.MergedIntoID != nil && *r.MergedIntoID == root
	}, 0), nil
}

// List pages through respondents, most recently active first.
func (s *InMemory) List(_ context.Context, page models.Page) ([]*models.Respondent, int, error) {
	all := s.filter(func(*models.Respondent) bool { return true }, 0)
	total := len(all)
	if page.Offset >= total {
		return []*models.Respondent{}, total, nil
	}
	end := min(page.Offset+page.Limit, total)
	return all[page.Offset:end], total, nil
}

func (s *InMemory) filter(keep func(*models.Respondent) bool, limit int) []*models.Respondent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Respondent
	for _, r := range s.respondents {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].ID.Less(out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
