// Package models describes the read-only survey catalog: which surveys exist
// and which regulated data they declare they collect.
package models

import (
	"slices"
	"time"

	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
)

// Flag is a data requirement declared by a survey author.
type Flag string

const (
	FlagLocation  Flag = "location"
	FlagName      Flag = "name"
	FlagEmail     Flag = "email"
	FlagPhone     Flag = "phone"
	FlagDevice    Flag = "device_info"
	FlagBrowser   Flag = "browser_info"
	FlagAnalytics Flag = "analytics"
	FlagMarketing Flag = "marketing"
	FlagCookies   Flag = "cookies"
)

var flagCategories = map[Flag]id.ConsentCategory{
	FlagLocation:  id.ConsentLocation,
	FlagName:      id.ConsentPersonalData,
	FlagEmail:     id.ConsentPersonalData,
	FlagPhone:     id.ConsentPersonalData,
	FlagDevice:    id.ConsentDeviceInfo,
	FlagBrowser:   id.ConsentDeviceInfo,
	FlagAnalytics: id.ConsentAnalytics,
	FlagMarketing: id.ConsentMarketing,
	FlagCookies:   id.ConsentCookies,
}

// Category maps the flag to the consent category that governs it.
func (f Flag) Category() (id.ConsentCategory, bool) {
	c, ok := flagCategories[f]
	return c, ok
}

func (f Flag) IsValid() bool {
	_, ok := flagCategories[f]
	return ok
}

// Requirement is one declared data requirement.
type Requirement struct {
	Flag      Flag `json:"flag" yaml:"flag"`
	Mandatory bool `json:"mandatory" yaml:"mandatory"`
}

// Survey is the catalog entry of a survey.
type Survey struct {
	ID             id.SurveyID   `json:"id" yaml:"id"`
	Title          string        `json:"title" yaml:"title"`
	IsActive       bool          `json:"is_active" yaml:"is_active"`
	TotalQuestions int           `json:"total_questions" yaml:"total_questions"`
	Requirements   []Requirement `json:"requirements" yaml:"requirements"`
	UpdatedAt      time.Time     `json:"updated_at" yaml:"-"`
}

// Validate checks catalog entries before they are stored.
func (s *Survey) Validate() error {
	if s.ID <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "survey id must be positive")
	}
	if s.TotalQuestions < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "total questions cannot be negative")
	}
	for _, r := range s.Requirements {
		if !r.Flag.IsValid() {
			return dErrors.New(dErrors.CodeInvariantViolation, "unknown requirement flag: "+string(r.Flag))
		}
	}
	return nil
}

// RequiredCategories lists the consent categories the survey's mandatory
// requirements map to, deduplicated and in the canonical category order.
func (s *Survey) RequiredCategories() []id.ConsentCategory {
	needed := make(map[id.ConsentCategory]bool)
	for _, r := range s.Requirements {
		if !r.Mandatory {
			continue
		}
		if c, ok := r.Flag.Category(); ok {
			needed[c] = true
		}
	}
	out := make([]id.ConsentCategory, 0, len(needed))
	for _, c := range id.ConsentCategories() {
		if needed[c] {
			out = append(out, c)
		}
	}
	return out
}

func (s *Survey) Clone() *Survey {
	if s == nil {
		return nil
	}
	c := *s
	c.Requirements = slices.Clone(s.Requirements)
	return &c
}
