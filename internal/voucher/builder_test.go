package voucher

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordbooks/autopost/internal/catalog"
	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/testutil"
)

func setupBuilder(t *testing.T) *Builder {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return NewBuilder(catalog.New(db.Storage))
}

func TestBuildPurchaseVoucher(t *testing.T) {
	ctx := context.Background()
	builder := setupBuilder(t)

	proposal := testutil.NewProposal()
	settings := model.DefaultTenantSettings(testutil.TestTenant)

	voucher, err := builder.Build(ctx, proposal, settings, nil)
	require.NoError(t, err)

	// Expense debit, input VAT debit, payable credit.
	require.Len(t, voucher.Lines, 3)
	assert.Equal(t, "6300", voucher.Lines[0].Account)
	assert.True(t, voucher.Lines[0].Debit.Equal(decimal.RequireFromString("10000.00")))
	assert.Equal(t, "2740", voucher.Lines[1].Account)
	assert.True(t, voucher.Lines[1].Debit.Equal(decimal.RequireFromString("2500.00")))
	assert.Equal(t, "2400", voucher.Lines[2].Account)
	assert.True(t, voucher.Lines[2].Credit.Equal(decimal.RequireFromString("12500.00")))

	assert.True(t, voucher.Balanced())
	assert.Equal(t, model.CreatorAutomation, voucher.CreatedBy)
	assert.Equal(t, "NOK", voucher.Currency)
	assert.Zero(t, voucher.Number) // the ledger assigns series numbers
}

func TestBuildZeroTaxVoucher(t *testing.T) {
	ctx := context.Background()
	builder := setupBuilder(t)

	proposal := testutil.NewProposal(testutil.WithAmounts("12500.00", "0", "12500.00"))
	proposal.TaxCode = "0"
	settings := model.DefaultTenantSettings(testutil.TestTenant)

	voucher, err := builder.Build(ctx, proposal, settings, nil)
	require.NoError(t, err)

	// No tax line when the tax amount is zero.
	require.Len(t, voucher.Lines, 2)
	assert.Equal(t, "6300", voucher.Lines[0].Account)
	assert.Equal(t, "2400", voucher.Lines[1].Account)
	assert.True(t, voucher.Balanced())
}

func TestBuildSaleVoucher(t *testing.T) {
	ctx := context.Background()
	builder := setupBuilder(t)

	proposal := testutil.NewProposal(
		testutil.WithKind(model.KindSale),
		testutil.WithAccount("3000"),
	)
	proposal.TaxCode = "3"
	settings := model.DefaultTenantSettings(testutil.TestTenant)

	voucher, err := builder.Build(ctx, proposal, settings, nil)
	require.NoError(t, err)

	// A sale inverts every side: revenue and output VAT credit, the
	// receivable carries the debit.
	require.Len(t, voucher.Lines, 3)
	assert.Equal(t, "3000", voucher.Lines[0].Account)
	assert.True(t, voucher.Lines[0].Credit.Equal(decimal.RequireFromString("10000.00")))
	assert.Equal(t, "2700", voucher.Lines[1].Account)
	assert.True(t, voucher.Lines[1].Credit.Equal(decimal.RequireFromString("2500.00")))
	assert.Equal(t, "1500", voucher.Lines[2].Account)
	assert.True(t, voucher.Lines[2].Debit.Equal(decimal.RequireFromString("12500.00")))
	assert.True(t, voucher.Balanced())
}

func TestBuildUnknownAccount(t *testing.T) {
	ctx := context.Background()
	builder := setupBuilder(t)

	proposal := testutil.NewProposal(testutil.WithAccount("9999"))
	settings := model.DefaultTenantSettings(testutil.TestTenant)

	_, err := builder.Build(ctx, proposal, settings, nil)
	require.ErrorIs(t, err, common.ErrAccountNotFound)
}

func TestBuildUnknownTaxCode(t *testing.T) {
	ctx := context.Background()
	builder := setupBuilder(t)

	proposal := testutil.NewProposal()
	proposal.TaxCode = "99"
	settings := model.DefaultTenantSettings(testutil.TestTenant)

	_, err := builder.Build(ctx, proposal, settings, nil)
	require.ErrorIs(t, err, common.ErrTaxCodeNotFound)
}

func TestBuildWithOverrides(t *testing.T) {
	ctx := context.Background()
	builder := setupBuilder(t)
	settings := model.DefaultTenantSettings(testutil.TestTenant)

	t.Run("override replaces the main line account", func(t *testing.T) {
		proposal := testutil.NewProposal()
		overrides := []model.LineOverride{{Account: "6000", TaxCode: "25"}}

		voucher, err := builder.Build(ctx, proposal, settings, overrides)
		require.NoError(t, err)

		assert.Equal(t, "6000", voucher.Lines[0].Account)
		assert.True(t, voucher.Lines[0].Debit.Equal(decimal.RequireFromString("10000.00")))
		assert.True(t, voucher.Balanced())
	})

	t.Run("override without account is rejected", func(t *testing.T) {
		proposal := testutil.NewProposal()
		overrides := []model.LineOverride{{TaxCode: "25"}}

		_, err := builder.Build(ctx, proposal, settings, overrides)
		require.ErrorIs(t, err, common.ErrInvalidProposal)
	})

	t.Run("override with wrong amount is unbalanced", func(t *testing.T) {
		proposal := testutil.NewProposal()
		overrides := []model.LineOverride{{
			Account: "6000",
			Amount:  decimal.RequireFromString("9000.00"),
		}}

		_, err := builder.Build(ctx, proposal, settings, overrides)

		var unbalanced *common.UnbalancedError
		require.ErrorAs(t, err, &unbalanced)
		assert.True(t, unbalanced.Discrepancy().Equal(decimal.RequireFromString("-1000.00")))
	})
}

func TestBuildInvalidProposal(t *testing.T) {
	ctx := context.Background()
	builder := setupBuilder(t)
	settings := model.DefaultTenantSettings(testutil.TestTenant)

	tests := []struct {
		name     string
		proposal *model.Proposal
	}{
		{"nil proposal", nil},
		{"zero total", testutil.NewProposal(testutil.WithAmounts("0", "0", "0"))},
		{"negative tax", testutil.NewProposal(testutil.WithAmounts("13000.00", "-500.00", "12500.00"))},
		{"missing candidate account", testutil.NewProposal(testutil.WithAccount(""))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := builder.Build(ctx, tt.proposal, settings, nil)
			require.ErrorIs(t, err, common.ErrInvalidProposal)
		})
	}
}

func TestBuildMinorUnitPrecision(t *testing.T) {
	ctx := context.Background()
	builder := setupBuilder(t)
	settings := model.DefaultTenantSettings(testutil.TestTenant)

	proposal := testutil.NewProposal(testutil.WithAmounts("10000.005", "2499.995", "12500.00"))

	_, err := builder.Build(ctx, proposal, settings, nil)
	require.ErrorIs(t, err, common.ErrInvalidProposal)
	assert.Contains(t, err.Error(), "decimal places")
}
