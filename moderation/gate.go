// Package moderation implements the lexical banned-word filter that every
// user query passes through before it reaches an external service.
//
// Matching is whole-token only: input is lowercased and split on whitespace,
// and a token is blocked when it equals a banned word. Punctuation is not
// stripped, so "darn!" does not match "darn", and banned words embedded in
// longer tokens are not detected.
package moderation

import "strings"

// RedirectMessage is returned to the user instead of an answer when their
// input is blocked.
const RedirectMessage = "I’m here to help, but let’s keep the conversation respectful 🙂"

// Gate is an immutable banned-word set. A nil *Gate blocks nothing.
type Gate struct {
	words map[string]struct{}
}

// New builds a gate from words. Words are lowercased.
func New(words []string) *Gate {
	g := &Gate{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		g.words[w] = struct{}{}
	}
	return g
}

// IsBlocked reports whether any whitespace-separated token of text is banned.
func (g *Gate) IsBlocked(text string) bool {
	if g == nil || len(g.words) == 0 {
		return false
	}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		if _, ok := g.words[tok]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of distinct banned words.
func (g *Gate) Len() int {
	if g == nil {
		return 0
	}
	return len(g.words)
}
