package session

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Scope and store errors
var (
	ErrConstraintViolation = errors.New("constraint violation")
	ErrUniqueViolation     = errors.New("unique constraint violation")
	ErrConnectivityLost    = errors.New("connectivity lost")
	ErrScopeFinished       = errors.New("session scope already finished")
	ErrEntityGone          = errors.New("entity no longer exists")
	ErrInvalidPaging       = errors.New("offset and limit must not be negative")
)

// SQLSTATE classes, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	codeUniqueViolation      = "23505"
	classIntegrityConstraint = "23"
	classConnectionException = "08"
)

// classify wraps store errors with ErrConstraintViolation or
// ErrConnectivityLost. Unique violations also match ErrUniqueViolation.
// Other errors are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return fmt.Errorf("%w: %w: %w", ErrConstraintViolation, ErrUniqueViolation, err)
		case strings.HasPrefix(pgErr.Code, classIntegrityConstraint):
			return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
		case strings.HasPrefix(pgErr.Code, classConnectionException):
			return fmt.Errorf("%w: %w", ErrConnectivityLost, err)
		}
		return err
	}

	if isConnectivity(err) {
		return fmt.Errorf("%w: %w", ErrConnectivityLost, err)
	}
	return err
}

func isConnectivity(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// poisonsConn reports whether the connection that produced err must not be reused.
func poisonsConn(err error) bool {
	return errors.Is(err, ErrConnectivityLost) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func isFinished(err error) bool {
	return errors.Is(err, ErrScopeFinished)
}
