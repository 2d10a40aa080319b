package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
)

func TestRequiredCategories(t *testing.T) {
	s := &Survey{
		ID: 7,
		Requirements: []Requirement{
			{Flag: FlagEmail, Mandatory: true},
			{Flag: FlagLocation, Mandatory: true},
			{Flag: FlagName, Mandatory: true},
			{Flag: FlagMarketing, Mandatory: false},
		},
	}

	assert.Equal(t, []id.ConsentCategory{id.ConsentLocation, id.ConsentPersonalData}, s.RequiredCategories())
}

func TestRequiredCategories_None(t *testing.T) {
	s := &Survey{ID: 1}
	assert.Empty(t, s.RequiredCategories())
}

func TestFlagCategory(t *testing.T) {
	tests := []struct {
		flag Flag
		want id.ConsentCategory
	}{
		{FlagLocation, id.ConsentLocation},
		{FlagPhone, id.ConsentPersonalData},
		{FlagBrowser, id.ConsentDeviceInfo},
		{FlagDevice, id.ConsentDeviceInfo},
		{FlagAnalytics, id.ConsentAnalytics},
		{FlagCookies, id.ConsentCookies},
	}
	for _, tt := range tests {
		t.Run(string(tt.flag), func(t *testing.T) {
			got, ok := tt.flag.Category()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := Flag("shoe_size").Category()
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s := &Survey{ID: 3, TotalQuestions: 10, Requirements: []Requirement{{Flag: FlagLocation}}}
		assert.NoError(t, s.Validate())
	})
	t.Run("non-positive id", func(t *testing.T) {
		err := (&Survey{ID: 0}).Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
	t.Run("unknown flag", func(t *testing.T) {
		s := &Survey{ID: 3, Requirements: []Requirement{{Flag: "shoe_size", Mandatory: true}}}
		assert.True(t, dErrors.HasCode(s.Validate(), dErrors.CodeInvariantViolation))
	})
}
