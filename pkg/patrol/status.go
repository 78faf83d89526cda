package patrol

import "time"

// Status is a snapshot of patrol progress. All fields are copied out; callers
// never observe in-place mutation.
type Status struct {
	SiteID              int       `json:"site_id"`
	SiteName            string    `json:"site_name"`
	TotalCheckpoints    int       `json:"total_checkpoints"`
	VerifiedCheckpoints int       `json:"verified_checkpoints"`
	CompletionPercent   float64   `json:"completion_percent"`
	Active              bool      `json:"active"`
	StartedAt           time.Time `json:"started_at"`
	EndedAt             time.Time `json:"ended_at,omitempty"`
}

// Complete reports whether every checkpoint was verified.
func (s Status) Complete() bool {
	return s.TotalCheckpoints > 0 && s.VerifiedCheckpoints == s.TotalCheckpoints
}

func (s *Status) recompute() {
	if s.TotalCheckpoints == 0 {
		s.CompletionPercent = 0
		return
	}
	s.CompletionPercent = float64(s.VerifiedCheckpoints) / float64(s.TotalCheckpoints) * 100
}
