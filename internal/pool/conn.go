package pool

import (
	"database/sql/driver"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
)

// Conn is a pooled connection handed out by Manager.Acquire.
type Conn struct {
	*sqlx.Conn

	acquiredAt time.Time
	broken     atomic.Bool
	released   atomic.Bool
}

func newConn(c *sqlx.Conn) *Conn {
	return &Conn{Conn: c, acquiredAt: time.Now()}
}

// MarkBroken flags the connection so Release discards it instead of pooling it.
func (c *Conn) MarkBroken() {
	c.broken.Store(true)
}

// Broken reports whether MarkBroken was called.
func (c *Conn) Broken() bool {
	return c.broken.Load()
}

// discard makes database/sql close the physical connection rather than
// returning it to the idle set.
func discard(c *sqlx.Conn) {
	_ = c.Raw(func(any) error {
		return driver.ErrBadConn
	})
	_ = c.Close()
}
