package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sbilibin2017/user-service/internal/logger"
	"github.com/sbilibin2017/user-service/internal/models"
	"github.com/sbilibin2017/user-service/internal/pool"
	"github.com/sbilibin2017/user-service/internal/repositories"
)

// ConnProvider hands out pooled connections. *pool.Manager implements it.
type ConnProvider interface {
	Acquire(ctx context.Context) (*pool.Conn, error)
	Release(c *pool.Conn)
}

// Runner opens session scopes on a connection pool.
type Runner struct {
	pool         ConnProvider
	clock        models.Clock
	queryTimeout time.Duration
	txOptions    *sql.TxOptions
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the timestamp policy applied by scopes.
func WithClock(c models.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithQueryTimeout bounds every statement run inside a scope. Zero disables it.
func WithQueryTimeout(d time.Duration) Option {
	return func(r *Runner) { r.queryTimeout = d }
}

// WithTxOptions overrides the transaction options. The default is read committed.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(r *Runner) { r.txOptions = opts }
}

// NewRunner creates a Runner on p.
func NewRunner(p ConnProvider, opts ...Option) *Runner {
	r := &Runner{
		pool:      p,
		clock:     models.NewClock(),
		txOptions: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open acquires a connection and begins a transaction on it. The caller must
// Close the scope; prefer Run, which does so on every path.
func (r *Runner) Open(ctx context.Context) (*Scope, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := conn.BeginTxx(ctx, r.txOptions)
	if err != nil {
		err = classify(err)
		if poisonsConn(err) {
			conn.MarkBroken()
		}
		r.pool.Release(conn)
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	return &Scope{
		pool:         r.pool,
		conn:         conn,
		tx:           tx,
		repo:         repositories.NewUserRepository(tx),
		clock:        r.clock,
		queryTimeout: r.queryTimeout,
	}, nil
}

// Run executes fn inside a new scope. When fn returns nil and has not
// finished the scope itself, the scope is committed. When fn returns an
// error or panics, the scope is rolled back. The connection is released in
// every case.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	scope, err := r.Open(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()

	defer func() {
		if rec := recover(); rec != nil {
			scope.Close()
			panic(rec)
		}
	}()

	if err := fn(ctx, scope); err != nil {
		if rbErr := scope.Rollback(); rbErr != nil && !isFinished(rbErr) {
			logger.Log.Errorw("failed to roll back scope", "error", rbErr)
		}
		return err
	}

	return scope.result()
}
