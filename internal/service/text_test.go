package service

import (
	"strings"
	"testing"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"only whitespace", " \n\t  ", ""},
		{"collapses runs", "Remote   role.\n\nGreat\tteam.", "Remote role. Great team."},
		{"trims", "  hello  ", "hello"},
		{"unicode space", "a  b", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeText(tt.input))
		})
	}
}

func TestSegmentSentences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "four sentences",
			input:    "Remote frontend role. Requires three years React experience. Competitive salary and benefits. Must collaborate with design team daily.",
			expected: []string{"Remote frontend role", "Requires three years React experience", "Competitive salary and benefits", "Must collaborate with design team daily"},
		},
		{
			name:     "mixed terminators and runs",
			input:    "Really?! Yes... Done!",
			expected: []string{"Really", "Yes", "Done"},
		},
		{
			name:     "no terminal punctuation",
			input:    "a single line without punctuation",
			expected: []string{"a single line without punctuation"},
		},
		{
			name:     "newlines inside sentences",
			input:    "First line\ncontinues here. Second.",
			expected: []string{"First line continues here", "Second"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sentences, err := SegmentSentences(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sentences)
		})
	}
}

func TestSegmentSentences_EmptyContent(t *testing.T) {
	for _, input := range []string{"", "   ", "...", "?! . \n !"} {
		sentences, err := SegmentSentences(input)
		assert.Nil(t, sentences)
		assert.ErrorIs(t, err, domain.ErrEmptyContent, "input %q", input)
	}
}

func TestSegmentSentences_EveryElementNonEmpty(t *testing.T) {
	inputs := []string{
		"One. Two! Three? Four",
		strings.Repeat("Word. ", 50),
		" . a . . b ! ",
	}
	for _, input := range inputs {
		sentences, err := SegmentSentences(input)
		require.NoError(t, err)
		require.NotEmpty(t, sentences)
		for _, s := range sentences {
			assert.NotEmpty(t, strings.TrimSpace(s))
			assert.Equal(t, strings.TrimSpace(s), s)
		}
	}
}
