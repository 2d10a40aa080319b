package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pollster/internal/events/models"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
	txcontext "pollster/pkg/platform/tx"
)

type outboxEntry struct {
	record         models.OutboxRecord
	publishedAt    *time.Time
	deadLettered   bool
	claimToken     string
	claimExpiresAt time.Time
	lastError      string
}

// InMemory is the event log and outbox for the memory backend. Writes made
// inside a tx.Memory transaction are undone if the transaction fails.
type InMemory struct {
	mu     sync.RWMutex
	events []*models.Event
	outbox []*outboxEntry
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(ctx context.Context, event *models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	stored := *event
	entry := &outboxEntry{record: models.OutboxRecord{
		OutboxID:  uuid.NewString(),
		EventType: event.Type,
		Key:       event.RespondentID.String(),
		Payload:   payload,
		CreatedAt: event.OccurredAt,
	}}

	s.mu.Lock()
	s.events = append(s.events, &stored)
	s.outbox = append(s.outbox, entry)
	s.mu.Unlock()

	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = slices.DeleteFunc(s.events, func(e *models.Event) bool { return e.ID == stored.ID })
		s.outbox = slices.DeleteFunc(s.outbox, func(o *outboxEntry) bool { return o == entry })
	})
	return nil
}

// ListByRespondents returns copies of all events of the given respondents in
// timestamp order; ties keep append order.
func (s *InMemory) ListByRespondents(_ context.Context, ids []id.RespondentID) ([]*models.Event, error) {
	want := make(map[id.RespondentID]struct{}, len(ids))
	for _, rid := range ids {
		want[rid] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Event
	for _, e := range s.events {
		if _, ok := want[e.RespondentID]; ok {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// Timeline returns the most recent events of one respondent, newest first.
func (s *InMemory) Timeline(ctx context.Context, respondentID id.RespondentID, limit int) ([]*models.Event, error) {
	all, err := s.ListByRespondents(ctx, []id.RespondentID{respondentID})
	if err != nil {
		return nil, err
	}
	slices.Reverse(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *InMemory) ReassignRespondent(ctx context.Context, from, to id.RespondentID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved []*models.Event
	for _, e := range s.events {
		if e.RespondentID == from {
			e.RespondentID = to
			moved = append(moved, e)
		}
	}
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, e := range moved {
			e.RespondentID = from
		}
	})
	return len(moved), nil
}

func (s *InMemory) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.events)
	s.events = slices.DeleteFunc(s.events, func(e *models.Event) bool { return e.OccurredAt.Before(cutoff) })
	return int64(before - len(s.events)), nil
}

// ScrubRespondents clears request metadata from the respondents' events and
// their outbox envelopes.
func (s *InMemory) ScrubRespondents(ctx context.Context, ids []id.RespondentID) (int, error) {
	want := make(map[string]struct{}, len(ids))
	for _, rid := range ids {
		want[rid.String()] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		events  = map[*models.Event]models.Event{}
		entries = map[*outboxEntry][]byte{}
	)
	for _, e := range s.events {
		if _, ok := want[e.RespondentID.String()]; !ok {
			continue
		}
		if e.IPAddress == "" && e.UserAgent == "" && e.SessionToken == "" {
			continue
		}
		events[e] = *e
		e.IPAddress, e.UserAgent, e.SessionToken = "", "", ""
	}
	for _, o := range s.outbox {
		if _, ok := want[o.record.Key]; !ok {
			continue
		}
		var envelope models.Event
		if err := json.Unmarshal(o.record.Payload, &envelope); err != nil {
			return 0, fmt.Errorf("decode outbox envelope: %w", err)
		}
		envelope.IPAddress, envelope.UserAgent, envelope.SessionToken = "", "", ""
		scrubbed, err := json.Marshal(envelope)
		if err != nil {
			return 0, fmt.Errorf("encode outbox envelope: %w", err)
		}
		entries[o] = o.record.Payload
		o.record.Payload = scrubbed
	}

	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for e, prev := range events {
			*e = prev
		}
		for o, prev := range entries {
			o.record.Payload = prev
		}
	})
	return len(events), nil
}

// -----------------------------------------------------------------------------
// Outbox
// -----------------------------------------------------------------------------

func (s *InMemory) ClaimUnpublished(_ context.Context, limit int, claimToken string, claimUntil time.Time) ([]models.OutboxRecord, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OutboxRecord
	for _, o := range s.outbox {
		if len(out) >= limit {
			break
		}
		if o.publishedAt != nil || o.deadLettered {
			continue
		}
		if o.claimToken != "" && o.claimExpiresAt.After(now) {
			continue
		}
		o.claimToken = claimToken
		o.claimExpiresAt = claimUntil
		out = append(out, o.record)
	}
	return out, nil
}

func (s *InMemory) claimed(outboxID, claimToken string) (*outboxEntry, error) {
	for _, o := range s.outbox {
		if o.record.OutboxID == outboxID {
			if o.claimToken != claimToken {
				return nil, sentinel.ErrConflict
			}
			return o, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) MarkPublished(_ context.Context, outboxID, claimToken string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.claimed(outboxID, claimToken)
	if err != nil {
		return err
	}
	o.publishedAt = &now
	o.claimToken = ""
	return nil
}

func (s *InMemory) MarkFailed(_ context.Context, outboxID, claimToken, reason string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.claimed(outboxID, claimToken)
	if err != nil {
		return err
	}
	o.record.RetryCount++
	o.lastError = reason
	o.claimToken = ""
	return nil
}

func (s *InMemory) MarkDeadLettered(_ context.Context, outboxID, claimToken, reason string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.claimed(outboxID, claimToken)
	if err != nil {
		return err
	}
	o.deadLettered = true
	o.lastError = reason
	o.claimToken = ""
	return nil
}

// PruneOutboxBefore drops published and dead-lettered entries created before
// cutoff.
func (s *InMemory) PruneOutboxBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.outbox)
	s.outbox = slices.DeleteFunc(s.outbox, func(o *outboxEntry) bool {
		return (o.publishedAt != nil || o.deadLettered) && o.record.CreatedAt.Before(cutoff)
	})
	return int64(before - len(s.outbox)), nil
}

// PendingCount reports outbox entries not yet published or dead-lettered.
func (s *InMemory) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, o := range s.outbox {
		if o.publishedAt == nil && !o.deadLettered {
			n++
		}
	}
	return n
}
