package impl

import (
	"strings"

	"willvault/internal/service"
)

var _ service.NameMatcher = SubstringMatcher{}

// SubstringMatcher is the default similarity rule for the contact-knowledge
// step: case-insensitive containment in either direction, so "Ann Smith"
// matches "ann" and "smith-jones" alike. Swap it out for something stricter
// without touching the unlock protocol.
type SubstringMatcher struct{}

func (SubstringMatcher) Match(claimed, known string) bool {
	claimed = strings.ToLower(strings.TrimSpace(claimed))
	known = strings.ToLower(strings.TrimSpace(known))
	if claimed == "" || known == "" {
		return false
	}
	return strings.Contains(claimed, known) || strings.Contains(known, claimed)
}
