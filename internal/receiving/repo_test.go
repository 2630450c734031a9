package receiving

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestUniqueViolationDetection(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "uq_purchase_invoices_company_number"}

	require.True(t, isUniqueViolation(dup, "uq_purchase_invoices_company_number"))
	require.True(t, isUniqueViolation(fmt.Errorf("insert invoice: %w", dup), "uq_purchase_invoices_company_number"))

	require.False(t, isUniqueViolation(dup, "some_other_constraint"))
	require.False(t, isUniqueViolation(fmt.Errorf("plain failure"), "uq_purchase_invoices_company_number"))
	require.False(t, isUniqueViolation(nil, "uq_purchase_invoices_company_number"))
}
