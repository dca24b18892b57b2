package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/projvault/internal/model"
)

func fixedYear(year int) Option {
	return WithClock(func() time.Time {
		return time.Date(year, time.March, 1, 0, 0, 0, 0, time.UTC)
	})
}

func TestPolicy_Validate_DerivesIdentity(t *testing.T) {
	p := NewPolicy("example.edu", "ORG", fixedYear(2025))

	id, err := p.Validate("22-ORG045@students.example.edu")
	require.NoError(t, err)
	assert.Equal(t, "22-ORG045@students.example.edu", id.Email)
	assert.Equal(t, 2022, id.AdmissionYear)
	assert.Equal(t, 45, id.StudentSequence)
}

func TestPolicy_Validate_RejectsSurroundingWhitespace(t *testing.T) {
	p := NewPolicy("example.edu", "ORG", fixedYear(2025))

	for _, email := range []string{
		" 22-ORG045@students.example.edu ",
		"22-ORG045@students.example.edu\n",
		"\t22-ORG045@students.example.edu",
	} {
		_, err := p.Validate(email)
		var apiErr *model.APIError
		require.True(t, errors.As(err, &apiErr), "email %q", email)
		assert.Equal(t, model.ErrCodeFormat, apiErr.Code, "email %q", email)
	}

	id, err := p.Validate("19-ORG999@students.example.edu")
	require.NoError(t, err)
	assert.Equal(t, 2019, id.AdmissionYear)
	assert.Equal(t, 999, id.StudentSequence)
}

func TestPolicy_Validate_Boundaries(t *testing.T) {
	p := NewPolicy("example.edu", "ORG", fixedYear(2025))

	id, err := p.Validate("15-ORG001@students.example.edu")
	require.NoError(t, err)
	assert.Equal(t, 2015, id.AdmissionYear)
	assert.Equal(t, 1, id.StudentSequence)

	id, err = p.Validate("25-ORG100@students.example.edu")
	require.NoError(t, err)
	assert.Equal(t, 2025, id.AdmissionYear)
}

func TestPolicy_Validate_FormatErrors(t *testing.T) {
	p := NewPolicy("example.edu", "ORG", fixedYear(2025))

	inputs := []string{
		"",
		"22-ORG045@example.edu",
		"22-ORG045@students.example.edu.evil.com",
		"22-org045@students.example.edu",
		"22-ORG045@STUDENTS.EXAMPLE.EDU",
		"2-ORG045@students.example.edu",
		"22-ORG45@students.example.edu",
		"22-ORG0450@students.example.edu",
		"22ORG045@students.example.edu",
		"22-XYZ045@students.example.edu",
		"22-ORG045@studentsXexample.edu",
		"x22-ORG045@students.example.edu",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := p.Validate(in)
			var apiErr *model.APIError
			require.True(t, errors.As(err, &apiErr), "expected *model.APIError, got %v", err)
			assert.Equal(t, model.ErrCodeFormat, apiErr.Code)
			assert.Contains(t, apiErr.Message, "YY-ORG001@students.example.edu")
		})
	}
}

func TestPolicy_Validate_RangeErrors(t *testing.T) {
	p := NewPolicy("example.edu", "ORG", fixedYear(2025))

	tests := []struct {
		name  string
		email string
	}{
		{"year before minimum", "14-ORG045@students.example.edu"},
		{"year in the future", "26-ORG045@students.example.edu"},
		{"sequence zero", "22-ORG000@students.example.edu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Validate(tt.email)
			var apiErr *model.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, model.ErrCodeRange, apiErr.Code)
		})
	}
}

func TestPolicy_Validate_DomainIsQuoted(t *testing.T) {
	p := NewPolicy("a.b", "O.G", fixedYear(2025))

	_, err := p.Validate("22-O.G045@students.a.b")
	require.NoError(t, err)

	_, err = p.Validate("22-OXG045@students.aXb")
	require.Error(t, err)
}

func TestPolicy_Validate_CustomMinYear(t *testing.T) {
	p := NewPolicy("example.edu", "ORG", fixedYear(2025), WithMinAdmissionYear(2020))

	_, err := p.Validate("19-ORG045@students.example.edu")
	require.Error(t, err)

	_, err = p.Validate("20-ORG045@students.example.edu")
	require.NoError(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "2********@students.example.edu", Mask("22-ORG045@students.example.edu"))
	assert.Equal(t, "***@x.edu", Mask("ab@x.edu"))
	assert.Equal(t, "***", Mask("no-at-sign"))
}
