package domain

import "time"

// Session represents one user's working session in a tenant. EndedAt, once
// set, is never cleared.
type Session struct {
	ID           string
	TenantID     string
	UserID       string
	StartedAt    time.Time
	LastBackupAt *time.Time // nil until the first backup
	EndedAt      *time.Time // nil while active
	// Snapshot is the last persisted copy of session-scoped context data,
	// kept for crash recovery.
	Snapshot     map[string]any
	QualityScore float64
}

// Ended reports whether the session has reached its terminal state.
func (s *Session) Ended() bool {
	return s.EndedAt != nil
}
