package domain

import dErrors "pollster/pkg/domain-errors"

// ConsentCategory names a class of regulated data governed independently.
// Invariant: the value must be one of the supported categories.
//
// Usage: construct via ParseConsentCategory at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type ConsentCategory string

const (
	ConsentLocation     ConsentCategory = "location"
	ConsentDeviceInfo   ConsentCategory = "device_info"
	ConsentPersonalData ConsentCategory = "personal_data"
	ConsentMarketing    ConsentCategory = "marketing"
	ConsentAnalytics    ConsentCategory = "analytics"
	ConsentCookies      ConsentCategory = "cookies"
)

// validConsentCategories is the single source of truth for valid categories.
var validConsentCategories = map[ConsentCategory]bool{
	ConsentLocation:     true,
	ConsentDeviceInfo:   true,
	ConsentPersonalData: true,
	ConsentMarketing:    true,
	ConsentAnalytics:    true,
	ConsentCookies:      true,
}

// ConsentCategories lists the closed set in a stable order.
func ConsentCategories() []ConsentCategory {
	return []ConsentCategory{
		ConsentLocation,
		ConsentDeviceInfo,
		ConsentPersonalData,
		ConsentMarketing,
		ConsentAnalytics,
		ConsentCookies,
	}
}

// ParseConsentCategory constructs a ConsentCategory from external input.
//
// Errors: returns CodeValidation when the value is empty or unsupported.
func ParseConsentCategory(s string) (ConsentCategory, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "consent category cannot be empty")
	}
	c := ConsentCategory(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid consent category: "+s)
	}
	return c, nil
}

// IsValid checks if the category is one of the supported enum values.
func (c ConsentCategory) IsValid() bool {
	return validConsentCategories[c]
}

func (c ConsentCategory) String() string {
	return string(c)
}
