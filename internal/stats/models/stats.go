// Package models defines the statistics read-model: named sections of
// monotonically adjusted counters projected from the event stream.
package models

import id "pollster/pkg/domain"

// Section is one group of counters, stored as a hash.
type Section string

const (
	SectionRespondents     Section = "respondents"
	SectionEntryPoints     Section = "entry_points"
	SectionDeviceTypes     Section = "device_types"
	SectionBrowsers        Section = "browsers"
	SectionParticipation   Section = "participation"
	SectionConsentsGranted Section = "consents_granted"
	SectionConsentsRevoked Section = "consents_revoked"
)

// Sections lists every section in display order.
var Sections = []Section{
	SectionRespondents,
	SectionEntryPoints,
	SectionDeviceTypes,
	SectionBrowsers,
	SectionParticipation,
	SectionConsentsGranted,
	SectionConsentsRevoked,
}

// Fields of SectionRespondents.
const (
	FieldCreated       = "created"
	FieldAnonymous     = "anonymous"
	FieldAuthenticated = "authenticated"
	FieldMerged        = "merged"
	FieldErased        = "erased"
	FieldExports       = "exports"
)

// Increment adjusts one counter. By may be negative.
type Increment struct {
	Section Section
	Field   string
	By      int64
}

// Counters maps a field to its value.
type Counters map[string]int64

// Snapshot is the whole read-model at one point in time.
type Snapshot struct {
	Respondents    Counters `json:"respondents"`
	EntryPoints    Counters `json:"entry_points"`
	DeviceTypes    Counters `json:"device_types"`
	Browsers       Counters `json:"browsers"`
	Participation  Counters `json:"participation"`
	ActiveConsents Counters `json:"active_consents"`
}

// NewSnapshot assembles a snapshot from raw sections. Active consents are
// grants minus revocations per category, never below zero.
func NewSnapshot(sections map[Section]Counters) *Snapshot {
	get := func(s Section) Counters {
		if c, ok := sections[s]; ok && c != nil {
			return c
		}
		return Counters{}
	}
	active := Counters{}
	revoked := get(SectionConsentsRevoked)
	for _, category := range id.ConsentCategories() {
		key := string(category)
		active[key] = max(get(SectionConsentsGranted)[key]-revoked[key], 0)
	}
	return &Snapshot{
		Respondents:    get(SectionRespondents),
		EntryPoints:    get(SectionEntryPoints),
		DeviceTypes:    get(SectionDeviceTypes),
		Browsers:       get(SectionBrowsers),
		Participation:  get(SectionParticipation),
		ActiveConsents: active,
	}
}
