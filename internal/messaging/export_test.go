package messaging

import "time"

// SetClock replaces the service clock.
func SetClock(s *Service, now func() time.Time) { s.now = now }
