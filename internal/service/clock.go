package service

import "time"

// Clock abstracts time retrieval so escalation and expiry logic is
// deterministic in tests. Every time comparison in the core goes through it.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }
