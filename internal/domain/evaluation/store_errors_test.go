package evaluation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertErrClassifiesConstraintFailures(t *testing.T) {
	wrapped := func(code string) error {
		return fmt.Errorf("insert evaluation: %w", &pgconn.PgError{Code: code})
	}

	assert.ErrorIs(t, insertErr(wrapped("23505")), ErrDuplicate)

	for _, code := range []string{"22P02", "23503"} {
		err := insertErr(wrapped(code))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, code)
		assert.Equal(t, "projectId", verr.Issues[0].Field)

		var transient *TransientStoreError
		assert.False(t, errors.As(storeErr("save evaluation", err), &transient), code)
	}

	outage := errors.New("connection reset")
	assert.Same(t, outage, insertErr(outage))
	deadlock := wrapped("40P01")
	assert.Equal(t, deadlock, insertErr(deadlock))
}
