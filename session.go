package vault

import "time"

// ExpiresAt - time after which the token is treated as expired, zero when the token does not expire
func (s *Session) ExpiresAt() time.Time {
	return s.expires
}

// valid - a token is usable until its (shortened) lease runs out
func (s *Session) valid(now time.Time) bool {
	if s == nil || len(s.Token) == 0 {
		return false
	}
	return s.expires.IsZero() || now.Before(s.expires)
}

// setExpiry - sets an expiry datetime
func (s *Session) setExpiry() {
	if s.LeaseDuration <= 0 {
		s.expires = time.Time{}
		return
	}

	lease := s.LeaseDuration
	if lease > 20*time.Second {
		lease -= 10 * time.Second // expire 10 seconds early so a login happens before Vault rejects the token
	}
	s.expires = s.IssuedAt.Add(lease)
}

// copy - callers get their own copy, the stored session is never handed out
func (s *Session) copy() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Policies = append([]string(nil), s.Policies...)
	return &c
}
