package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/sbilibin2017/user-service/internal/config"
	"github.com/sbilibin2017/user-service/internal/logger"
)

// Pool lifecycle errors
var (
	ErrAlreadyInitialized = errors.New("connection pool already initialized")
	ErrNotInitialized     = errors.New("connection pool not initialized")
	ErrPoolExhausted      = errors.New("connection pool exhausted")
	ErrPoolClosed         = errors.New("connection pool closed")
)

// maxPingAttempts bounds how many stale connections Acquire replaces before giving up.
const maxPingAttempts = 3

// DefaultAcquireTimeout applies when the configured acquire timeout is not positive.
const DefaultAcquireTimeout = 30 * time.Second

// Opener opens the underlying database handle for a DSN.
type Opener func(ctx context.Context, dsn string) (*sqlx.DB, error)

// Option configures a Manager.
type Option func(*Manager)

// WithOpener replaces the default pgx opener.
func WithOpener(open Opener) Option {
	return func(m *Manager) {
		m.open = open
	}
}

// Manager owns the process wide set of physical connections to PostgreSQL.
type Manager struct {
	cfg     config.Database
	open    Opener
	metrics *metrics

	mu     sync.Mutex
	db     *sqlx.DB
	closed bool
	active sync.WaitGroup
}

// New creates an uninitialized Manager. Call Initialize before Acquire.
func New(cfg config.Database, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		open:    openPgx,
		metrics: newMetrics(),
	}
	if m.cfg.AcquireTimeout <= 0 {
		m.cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func openPgx(_ context.Context, dsn string) (*sqlx.DB, error) {
	return sqlx.Open("pgx", dsn)
}

// Initialize opens the pool and verifies the store is reachable.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrPoolClosed
	}
	if m.db != nil {
		return ErrAlreadyInitialized
	}

	dsn, err := DSN(m.cfg)
	if err != nil {
		return err
	}

	db, err := m.open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(m.cfg.MaxOpenConns)
	db.SetMaxIdleConns(m.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(m.cfg.MaxLifetime)

	pingCtx := ctx
	if m.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	m.db = db
	logger.Log.Infow("connection pool initialized",
		"max_open", m.cfg.MaxOpenConns,
		"max_idle", m.cfg.MaxIdleConns,
		"max_lifetime", m.cfg.MaxLifetime,
		"pre_ping", m.cfg.PrePing,
	)
	return nil
}

// Acquire blocks until a connection is available, the acquire timeout
// elapses (ErrPoolExhausted) or ctx is done. The returned connection must be
// handed back with Release.
func (m *Manager) Acquire(ctx context.Context) (*Conn, error) {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		m.metrics.acquired.WithLabelValues(resultClosed).Inc()
		return nil, ErrPoolClosed
	case m.db == nil:
		m.mu.Unlock()
		return nil, ErrNotInitialized
	}
	db := m.db
	m.active.Add(1)
	m.mu.Unlock()

	conn, err := m.acquire(ctx, db)
	if err != nil {
		m.active.Done()
		m.metrics.acquired.WithLabelValues(resultOf(err)).Inc()
		return nil, err
	}
	m.metrics.acquired.WithLabelValues(resultOK).Inc()
	return conn, nil
}

func (m *Manager) acquire(ctx context.Context, db *sqlx.DB) (*Conn, error) {
	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.AcquireTimeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		c, err := db.Connx(waitCtx)
		if err != nil {
			return nil, acquireError(ctx, waitCtx, err)
		}
		if !m.cfg.PrePing {
			return newConn(c), nil
		}

		err = c.PingContext(waitCtx)
		if err == nil {
			return newConn(c), nil
		}

		// Stale connection: drop it and let the pool dial a replacement.
		discard(c)
		m.metrics.discarded.Inc()
		logger.Log.Warnw("discarding connection after failed ping", "attempt", attempt, "error", err)
		if attempt >= maxPingAttempts || waitCtx.Err() != nil {
			return nil, acquireError(ctx, waitCtx, err)
		}
	}
}

func acquireError(ctx, waitCtx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(waitCtx.Err(), context.DeadlineExceeded):
		return ErrPoolExhausted
	default:
		return fmt.Errorf("acquire connection: %w", err)
	}
}

// Release returns c to the pool. Broken connections are closed instead.
// Connections past the configured max lifetime are closed by the pool when
// returned and replaced lazily on the next Acquire.
func (m *Manager) Release(c *Conn) {
	if c == nil || !c.released.CompareAndSwap(false, true) {
		return
	}
	defer m.active.Done()

	if c.Broken() {
		discard(c.Conn)
		m.metrics.discarded.Inc()
		logger.Log.Warnw("discarded broken connection", "held_for", time.Since(c.acquiredAt))
		return
	}
	if err := c.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		logger.Log.Errorw("failed to release connection", "error", err)
	}
}

// Shutdown stops handing out connections, waits for in-flight ones to be
// released (bounded by ctx) and closes everything. It is safe to call more
// than once and before Initialize.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	db := m.db
	m.mu.Unlock()

	if db == nil {
		return nil
	}

	drained := make(chan struct{})
	go func() {
		m.active.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		logger.Log.Warnw("closing pool with connections still in use", "in_use", db.Stats().InUse)
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	logger.Log.Info("connection pool closed")
	return nil
}

// DB exposes the underlying handle for schema bootstrap and health reporting.
func (m *Manager) DB() (*sqlx.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return nil, ErrPoolClosed
	case m.db == nil:
		return nil, ErrNotInitialized
	}
	return m.db, nil
}

// Stats returns a snapshot of the pool statistics.
func (m *Manager) Stats() sql.DBStats {
	m.mu.Lock()
	db := m.db
	m.mu.Unlock()
	if db == nil {
		return sql.DBStats{}
	}
	return db.Stats()
}

// DSN builds the connection string, tagging it with the application name
// and the dial timeout unless the URL already sets them.
func DSN(cfg config.Database) (string, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}

	q := u.Query()
	if cfg.AppName != "" && q.Get("application_name") == "" {
		q.Set("application_name", cfg.AppName)
	}
	if secs := int(cfg.ConnectTimeout / time.Second); secs > 0 && q.Get("connect_timeout") == "" {
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
