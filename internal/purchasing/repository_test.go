package purchasing

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/gudang-erp/gudang-erp/internal/shared"
)

func TestDuplicateDocMapsUniqueViolation(t *testing.T) {
	err := duplicateDoc(&pgconn.PgError{Code: "23505", ConstraintName: "purchase_orders_doc_number_key"})
	require.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestDuplicateDocKeepsOtherErrors(t *testing.T) {
	cause := errors.New("connection reset")
	require.Equal(t, cause, duplicateDoc(cause))
	require.NoError(t, duplicateDoc(nil))
}
