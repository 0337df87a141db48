// Package filter decides which submissions are worth relaying.
package filter

import (
	"errors"
	"strings"

	"github.com/JoyBoy1995/cfc-transfer-bot/internal/feed"
)

// FlairFilter accepts posts whose link flair exactly matches one of two
// allow-listed values. Matching is case-sensitive.
type FlairFilter struct {
	first  string
	second string
}

// New builds a filter from exactly two flair values.
func New(first, second string) (FlairFilter, error) {
	if strings.TrimSpace(first) == "" || strings.TrimSpace(second) == "" {
		return FlairFilter{}, errors.New("filter: two non-empty flair values are required")
	}
	return FlairFilter{first: first, second: second}, nil
}

// Accept reports whether the post carries an allow-listed flair.
func (f FlairFilter) Accept(p feed.Post) bool {
	return p.Flair == f.first || p.Flair == f.second
}
