package models

import "time"

// timestampPrecision matches the resolution of PostgreSQL timestamptz.
const timestampPrecision = time.Microsecond

// Clock stamps creation and update times on users.
type Clock struct {
	Now func() time.Time
}

// NewClock returns a Clock reading the wall clock.
func NewClock() Clock {
	return Clock{Now: time.Now}
}

func (c Clock) now() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return now().UTC().Truncate(timestampPrecision)
}

// Stamp sets CreatedAt and UpdatedAt to the same instant.
func (c Clock) Stamp(u *User) {
	t := c.now()
	u.CreatedAt = t
	u.UpdatedAt = t
}

// Touch refreshes UpdatedAt. The new value is always strictly after the
// previous one, even when the clock has not advanced.
func (c Clock) Touch(u *User) {
	t := c.now()
	if !t.After(u.UpdatedAt) {
		t = u.UpdatedAt.Add(timestampPrecision)
	}
	u.UpdatedAt = t
}
