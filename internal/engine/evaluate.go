package engine

import (
	"strings"

	"github.com/DoyleJ11/word-duel-backend/internal/apperr"
)

type Tag string

const (
	TagExact   Tag = "exact"
	TagPresent Tag = "present"
	TagAbsent  Tag = "absent"
)

// Result holds one tag per keyword position.
type Result []Tag

// Win reports whether every position matched exactly.
func (r Result) Win() bool {
	if len(r) == 0 {
		return false
	}
	for _, t := range r {
		if t != TagExact {
			return false
		}
	}
	return true
}

func (r Result) Strings() []string {
	out := make([]string, len(r))
	for i, t := range r {
		out[i] = string(t)
	}
	return out
}

// Normalize trims and upper-cases a word before it is compared.
func Normalize(word string) string {
	return strings.ToUpper(strings.TrimSpace(word))
}

// Evaluate scores guess against secret. Both must already be normalized.
//
// Exact matches are resolved before any Present tag is handed out, so a
// repeated letter is never credited more times than it occurs in secret.
func Evaluate(secret, guess string) (Result, error) {
	s := []rune(secret)
	g := []rune(guess)
	if len(s) != len(g) {
		return nil, ErrInvalidGuessLength
	}

	remaining := make(map[rune]int, len(s))
	for _, ch := range s {
		remaining[ch]++
	}

	res := make(Result, len(g))
	for i := range g {
		if g[i] == s[i] {
			res[i] = TagExact
			remaining[g[i]]--
		}
	}
	for i := range g {
		if res[i] != "" {
			continue
		}
		if remaining[g[i]] > 0 {
			res[i] = TagPresent
			remaining[g[i]]--
		} else {
			res[i] = TagAbsent
		}
	}
	return res, nil
}

var ErrInvalidGuessLength = apperr.ErrInvalidGuessLength
