package service

import (
	"regexp"
	"strings"

	"github.com/cloo-solutions/kbindex/internal/domain"
)

var sentenceTerminators = regexp.MustCompile(`[.!?]+`)

// NormalizeText collapses every whitespace run to a single space and trims the result.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// SegmentSentences splits text into trimmed, non-empty sentences on runs of
// '.', '!' and '?'. It returns domain.ErrEmptyContent when nothing is left.
func SegmentSentences(text string) ([]string, error) {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil, domain.ErrEmptyContent
	}

	parts := sentenceTerminators.Split(normalized, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}

	if len(sentences) == 0 {
		return nil, domain.ErrEmptyContent
	}
	return sentences, nil
}
