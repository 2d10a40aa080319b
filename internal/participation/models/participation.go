// Package models holds the participation aggregate: one respondent's
// progress through one survey.
package models

import (
	"math"
	"time"

	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
)

type Status string

const (
	StatusStarted         Status = "started"
	StatusInProgress      Status = "in_progress"
	StatusAlmostCompleted Status = "almost_completed"
	StatusCompleted       Status = "completed"
	StatusAbandoned       Status = "abandoned"
)

// AlmostCompletedThreshold is the percentage from which a participation
// counts as almost completed.
const AlmostCompletedThreshold = 80.0

// maxIncompletePercentage is the highest percentage shown while questions
// remain unanswered.
const maxIncompletePercentage = 99.99

// rank orders the non-terminal statuses; status only moves forward.
var rank = map[Status]int{
	StatusStarted:         0,
	StatusInProgress:      1,
	StatusAlmostCompleted: 2,
	StatusCompleted:       3,
	StatusAbandoned:       3,
}

func (s Status) IsValid() bool {
	_, ok := rank[s]
	return ok
}

// IsTerminal reports completed or abandoned.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

func (s Status) String() string {
	return string(s)
}

// Record tracks one (respondent, survey) pair.
//
// Invariants:
//   - 0 <= ProgressPercentage <= 100, and it never decreases
//   - CompletedAt is set iff Status is completed
//   - terminal records never change again
type Record struct {
	ID                    id.ParticipationID `json:"id"`
	RespondentID          id.RespondentID    `json:"respondent_id"`
	SurveyID              id.SurveyID        `json:"survey_id"`
	Status                Status             `json:"status"`
	ProgressPercentage    float64            `json:"progress_percentage"`
	QuestionsAnswered     int                `json:"questions_answered"`
	TotalQuestions        int                `json:"total_questions"`
	StartedAt             time.Time          `json:"started_at"`
	CompletedAt           *time.Time         `json:"completed_at,omitempty"`
	LastActivityAt        time.Time          `json:"last_activity_at"`
	TimeSpentSeconds      int                `json:"time_spent_seconds"`
	CompletionSource      string             `json:"completion_source,omitempty"`
	AbandonReason         string             `json:"abandon_reason,omitempty"`
	AbandonedAtPercentage *float64           `json:"abandoned_at_percentage,omitempty"`
}

func NewParticipation(participationID id.ParticipationID, respondentID id.RespondentID, surveyID id.SurveyID, totalQuestions int, now time.Time) (*Record, error) {
	if respondentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "participation requires a respondent")
	}
	if surveyID <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "participation requires a survey")
	}
	if totalQuestions < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "total questions cannot be negative")
	}
	return &Record{
		ID:             participationID,
		RespondentID:   respondentID,
		SurveyID:       surveyID,
		Status:         StatusStarted,
		TotalQuestions: totalQuestions,
		StartedAt:      now,
		LastActivityAt: now,
	}, nil
}

// Progress is a progress report from the survey client. TimeSpentSeconds is
// the time spent since the previous report.
type Progress struct {
	Answered         int `json:"answered"`
	Total            int `json:"total"`
	TimeSpentSeconds int `json:"time_spent_seconds"`
}

func (p Progress) Validate() error {
	if p.Answered < 0 {
		return dErrors.New(dErrors.CodeValidation, "answered cannot be negative")
	}
	if p.Total < 0 {
		return dErrors.New(dErrors.CodeValidation, "total cannot be negative")
	}
	if p.Answered > p.Total {
		return dErrors.New(dErrors.CodeValidation, "answered cannot exceed total")
	}
	if p.TimeSpentSeconds < 0 {
		return dErrors.New(dErrors.CodeValidation, "time spent cannot be negative")
	}
	return nil
}

// IsComplete reports whether every question of a non-empty survey is
// answered. Completion is decided on the counts, never on the rounded
// percentage.
func (p Progress) IsComplete() bool {
	return p.Total > 0 && p.Answered >= p.Total
}

// Percentage is answered/total as a percentage in [0, 100], rounded to two
// decimals. An empty survey reports 0. Incomplete progress never rounds up
// to 100.
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	if p.IsComplete() {
		return 100
	}
	pct := float64(p.Answered) / float64(p.Total) * 100
	return math.Min(maxIncompletePercentage, math.Round(pct*100)/100)
}

// Status is the status the progress earns.
func (p Progress) Status() Status {
	if p.IsComplete() {
		return StatusCompleted
	}
	return StatusFor(p.Percentage())
}

// StatusFor maps a percentage to the status it earns.
func StatusFor(pct float64) Status {
	switch {
	case pct >= 100:
		return StatusCompleted
	case pct >= AlmostCompletedThreshold:
		return StatusAlmostCompleted
	case pct > 0:
		return StatusInProgress
	default:
		return StatusStarted
	}
}

func (r *Record) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// CanChange rejects any mutation of a terminal record.
func (r *Record) CanChange() error {
	switch r.Status {
	case StatusCompleted:
		return dErrors.New(dErrors.CodeInvariantViolation, "survey already completed")
	case StatusAbandoned:
		return dErrors.New(dErrors.CodeInvariantViolation, "survey was abandoned")
	}
	return nil
}

// ApplyProgress records a report. A report below the stored percentage only
// accrues time spent; status never moves backwards.
// Must only be called after CanChange returns nil.
func (r *Record) ApplyProgress(p Progress, now time.Time) {
	r.TimeSpentSeconds += p.TimeSpentSeconds
	r.touch(now)

	pct := p.Percentage()
	if pct < r.ProgressPercentage {
		return
	}
	r.ProgressPercentage = pct
	r.QuestionsAnswered = p.Answered
	r.TotalQuestions = p.Total

	next := p.Status()
	if next == StatusCompleted {
		r.complete(now)
		return
	}
	if rank[next] > rank[r.Status] {
		r.Status = next
	}
}

// ApplyCompletion marks the survey completed regardless of the reported
// percentage. Must only be called after CanChange returns nil.
func (r *Record) ApplyCompletion(source string, now time.Time) {
	r.touch(now)
	r.CompletionSource = source
	if r.TotalQuestions > 0 {
		r.QuestionsAnswered = r.TotalQuestions
	}
	r.complete(now)
}

func (r *Record) complete(now time.Time) {
	r.Status = StatusCompleted
	r.ProgressPercentage = 100
	r.CompletedAt = &now
}

// ApplyAbandon records the abandonment and the percentage reached.
// Must only be called after CanChange returns nil.
func (r *Record) ApplyAbandon(reason string, now time.Time) {
	r.touch(now)
	pct := r.ProgressPercentage
	r.Status = StatusAbandoned
	r.AbandonReason = reason
	r.AbandonedAtPercentage = &pct
}

func (r *Record) touch(now time.Time) {
	if now.After(r.LastActivityAt) {
		r.LastActivityAt = now
	}
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.AbandonedAtPercentage != nil {
		p := *r.AbandonedAtPercentage
		c.AbandonedAtPercentage = &p
	}
	return &c
}
