package dobble

import "time"

// lockout is the per-player penalty after a wrong guess. It is evaluated
// lazily when the next move arrives; nothing runs when it expires.
type lockout struct {
	window time.Duration
}

func (l lockout) IsLocked(p *player, now time.Time) bool {
	return !p.lockedAt.IsZero() && now.Sub(p.lockedAt) < l.window
}

func (l lockout) Lock(p *player, now time.Time) {
	p.lockedAt = now
}

func (l lockout) Clear(p *player) {
	p.lockedAt = time.Time{}
}

// Until returns when p's lockout ends, or false if p is not locked at now.
func (l lockout) Until(p *player, now time.Time) (time.Time, bool) {
	if !l.IsLocked(p, now) {
		return time.Time{}, false
	}
	return p.lockedAt.Add(l.window), true
}
