package service

// NameMatcher decides whether a claimed party name refers to a known one.
// Kept behind an interface so the similarity rule can be tightened without
// touching protocol logic. The default is case-insensitive containment in
// either direction, which is known to be gameable with very short names.
type NameMatcher interface {
	Match(claimed, known string) bool
}
