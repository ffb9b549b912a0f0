package procurement

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

func TestMapTxErrorCategorizesSerializationFailures(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		err := mapTxError(&pgconn.PgError{Code: code, Message: "could not serialize access due to concurrent update"})
		require.ErrorIs(t, err, shared.ErrConflict, code)
		require.True(t, db.IsSerializationFailure(err), code)
	}

	require.NoError(t, mapTxError(nil))
	other := errors.New("boom")
	require.Same(t, other, mapTxError(other))
	require.ErrorIs(t, mapTxError(ErrPONotFound), ErrPONotFound)
}
