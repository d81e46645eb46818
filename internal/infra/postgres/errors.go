package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"cricket-trivia-service/internal/domain"
	"github.com/uptrace/bun/driver/pgdriver"
)

const uniqueViolation = "23505"

// classify wraps driver failures in the domain error the caller acts on: the backend
// could not be reached, or it answered and refused. Domain errors pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrAccountExists),
		errors.Is(err, domain.ErrQuizNotFound):
		return err
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		code := pgErr.Field('C')
		// Class 08 is connection exception, 57P0x is server shutdown.
		if strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P0") {
			return fmt.Errorf("%s: %w: %v", op, domain.ErrConnectivity, err)
		}
		return fmt.Errorf("%s: %w: %v", op, domain.ErrBackendRejected, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrConnectivity, err)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrBackendRejected, err)
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}
