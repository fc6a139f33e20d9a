package model

import "time"

// Session ist ein Anmelde-Token eines Admin-Kontos.
// Abgelaufene Sessions verleihen keinerlei Berechtigung und werden vom
// stündlichen Sweep gelöscht.
type Session struct {
	ID        string
	Token     string
	AdminID   string
	ExpiresAt time.Time
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// IstAbgelaufen meldet, ob die Session zum Zeitpunkt now abgelaufen ist.
func (s *Session) IstAbgelaufen(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
