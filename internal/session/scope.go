package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sbilibin2017/user-service/internal/logger"
	"github.com/sbilibin2017/user-service/internal/models"
	"github.com/sbilibin2017/user-service/internal/pool"
	"github.com/sbilibin2017/user-service/internal/repositories"
)

// Store is the unit of work handed to code running inside a scope.
type Store interface {
	FindOne(ctx context.Context, p repositories.Predicate) (*models.User, error)
	FindMany(ctx context.Context, p repositories.Predicate, offset, limit int) ([]models.User, error)
	Insert(ctx context.Context, u *models.User) error
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, u *models.User) error
	Commit() error
	Rollback() error
}

// Scope binds one transaction to one pooled connection. Operations run one
// at a time; exactly one of Commit or Rollback takes effect.
type Scope struct {
	pool         ConnProvider
	conn         *pool.Conn
	tx           *sqlx.Tx
	repo         *repositories.UserRepository
	clock        models.Clock
	queryTimeout time.Duration

	mu       sync.Mutex
	done     bool
	abortErr error
	release  sync.Once
}

// FindOne returns the first user matching p, or nil when there is none.
func (s *Scope) FindOne(ctx context.Context, p repositories.Predicate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	user, err := s.repo.FindOne(ctx, p)
	if err != nil {
		return nil, s.abort("find user", err)
	}
	return user, nil
}

// FindMany returns at most limit users matching p in insertion order, skipping
// the first offset. A zero limit yields no rows.
func (s *Scope) FindMany(ctx context.Context, p repositories.Predicate, offset, limit int) ([]models.User, error) {
	if offset < 0 || limit < 0 {
		return nil, ErrInvalidPaging
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	users, err := s.repo.FindMany(ctx, p, offset, limit)
	if err != nil {
		return nil, s.abort("list users", err)
	}
	return users, nil
}

// Insert stamps the creation timestamps on u, stores it and assigns its id.
func (s *Scope) Insert(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	s.clock.Stamp(u)
	if err := s.repo.Insert(ctx, u); err != nil {
		return s.abort("insert user", err)
	}
	return nil
}

// Update refreshes updated_at on u and writes it.
func (s *Scope) Update(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	previous := u.UpdatedAt
	s.clock.Touch(u)
	err := s.repo.Update(ctx, u)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		u.UpdatedAt = previous
		return fmt.Errorf("update user %d: %w", u.ID, ErrEntityGone)
	case err != nil:
		u.UpdatedAt = previous
		return s.abort("update user", err)
	}
	return nil
}

// Delete removes u.
func (s *Scope) Delete(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.repo.Delete(ctx, u.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("delete user %d: %w", u.ID, ErrEntityGone)
	case err != nil:
		return s.abort("delete user", err)
	}
	return nil
}

// Commit makes the scope's changes durable.
func (s *Scope) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.done = true

	if err := classify(s.tx.Commit()); err != nil {
		if poisonsConn(err) {
			s.conn.MarkBroken()
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards the scope's changes.
func (s *Scope) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.rollbackLocked()
}

// Close rolls back if the scope is still open and returns the connection to
// the pool. It is safe to call more than once.
func (s *Scope) Close() {
	s.mu.Lock()
	if !s.done {
		if err := s.rollbackLocked(); err != nil {
			logger.Log.Errorw("failed to roll back scope on close", "error", err)
		}
	}
	s.mu.Unlock()

	s.release.Do(func() {
		s.pool.Release(s.conn)
	})
}

func (s *Scope) rollbackLocked() error {
	s.done = true
	err := s.tx.Rollback()
	// database/sql already rolled back when the tx context was cancelled.
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	s.conn.MarkBroken()
	return fmt.Errorf("rollback: %w", classify(err))
}

// abort rolls the scope back after a failed statement and remembers the cause.
func (s *Scope) abort(op string, err error) error {
	err = fmt.Errorf("%s: %w", op, classify(err))
	if poisonsConn(err) {
		s.conn.MarkBroken()
	}

	logger.Log.Warnw("aborting session scope", "op", op, "error", err)
	if rbErr := s.rollbackLocked(); rbErr != nil {
		logger.Log.Errorw("failed to roll back aborted scope", "error", rbErr)
	}
	s.abortErr = err
	return err
}

func (s *Scope) checkOpen() error {
	if s.abortErr != nil {
		return fmt.Errorf("%w: %w", ErrScopeFinished, s.abortErr)
	}
	if s.done {
		return ErrScopeFinished
	}
	return nil
}

// result reports how the scope ended when the caller did not finish it:
// the abort cause, nil after an explicit commit or rollback, or the commit result.
func (s *Scope) result() error {
	s.mu.Lock()
	abortErr, done := s.abortErr, s.done
	s.mu.Unlock()

	switch {
	case abortErr != nil:
		return abortErr
	case done:
		return nil
	}
	return s.Commit()
}

func (s *Scope) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}
