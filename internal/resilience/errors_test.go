package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad input"), false},
		{"explicit", NewTransientError(errors.New("x")), true},
		{"wrapped explicit", eris.Wrap(NewTransientError(errors.New("x")), "store: open"), true},
		{"econnreset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"econnrefused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"pg starting up message", errors.New("FATAL: the database system is starting up"), true},
		{"pg cannot connect now", &pgconn.PgError{Code: "57P03"}, true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"wrapped pg transient", eris.Wrap(&pgconn.PgError{Code: "53300"}, "store: ping"), true},
		{"no such host", errors.New("dial tcp: lookup db: no such host"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	te := NewTransientError(inner)
	assert.Equal(t, "inner", te.Error())
	assert.ErrorIs(t, te, inner)
}
