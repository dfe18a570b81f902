package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestValidateIdentifier tests names accepted in SQL
func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		value string
		valid bool
	}{
		{"Site", "csw_web", true},
		{"Testing", "kb_couk_test", true},
		{"Underscore", "_private", true},
		{"Digits", "site2", true},
		{"LeadingDigit", "2site", false},
		{"Dot", "hatherleigh.info", false},
		{"Dash", "kb-couk", false},
		{"Quote", "a'b", false},
		{"Injection", "a; DROP DATABASE b", false},
		{"Empty", "", false},
		{"TooLong", strings.Repeat("a", 64), false},
		{"Longest", strings.Repeat("a", 63), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.value)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

// TestLiteral tests SQL string literals
func TestLiteral(t *testing.T) {
	assert.Equal(t, "'myPassword'", Literal("myPassword"))
	assert.Equal(t, "'it''s'", Literal("it's"))
	assert.Equal(t, `'a\\b'`, mysqlLiteral(`a\b`))
}
