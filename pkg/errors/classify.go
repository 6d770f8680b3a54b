package errors

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error codes that map onto the taxonomy. Codes are the
// contract; the substring table below is a documented fallback only.
const (
	erConHostError      = 1040 // ER_CON_COUNT_ERROR
	erAccessDeniedDB    = 1044 // ER_DBACCESS_DENIED_ERROR
	erAccessDenied      = 1045 // ER_ACCESS_DENIED_ERROR
	erBadDB             = 1049 // ER_BAD_DB_ERROR
	erHostIsBlocked     = 1129 // ER_HOST_IS_BLOCKED
	erHostNotPrivileged = 1130 // ER_HOST_NOT_PRIVILEGED
	erAccessDeniedNoPwd = 1698 // ER_ACCESS_DENIED_NO_PASSWORD_ERROR
)

// fallbackSubstrings maps message fragments to error types when the driver
// surfaced no structured code. Kept in one place so the fallback list stays
// explicit and reviewable.
var fallbackSubstrings = []struct {
	fragment string
	errType  ErrorType
}{
	{"access denied", ErrorTypeAuthenticationFailed},
	{"unknown database", ErrorTypeDatabaseNotFound},
	{"connection refused", ErrorTypeConnectionRefused},
	{"i/o timeout", ErrorTypeTimeout},
	{"timeout", ErrorTypeTimeout},
}

// Classify converts a raw driver or network error into a taxonomy error,
// preserving the original message for diagnostics. Structured MySQL error
// codes are consulted first, then network error semantics, then the
// substring fallback table. Anything unrecognized becomes the generic
// connection type.
func Classify(err error, message string) *Error {
	if err == nil {
		return nil
	}

	// Already classified: keep the original type.
	var existing *Error
	if errors.As(err, &existing) {
		return Wrap(err, existing.Type, message)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case erAccessDenied, erAccessDeniedDB, erAccessDeniedNoPwd:
			return Wrap(err, ErrorTypeAuthenticationFailed, message)
		case erBadDB:
			return Wrap(err, ErrorTypeDatabaseNotFound, message)
		case erConHostError, erHostIsBlocked, erHostNotPrivileged:
			return Wrap(err, ErrorTypeConnectionRefused, message)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrorTypeTimeout, message)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(err, ErrorTypeTimeout, message)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return Wrap(err, ErrorTypeConnectionRefused, message)
	}

	lowered := strings.ToLower(err.Error())
	for _, rule := range fallbackSubstrings {
		if strings.Contains(lowered, rule.fragment) {
			return Wrap(err, rule.errType, message)
		}
	}

	return Wrap(err, ErrorTypeConnection, message)
}
