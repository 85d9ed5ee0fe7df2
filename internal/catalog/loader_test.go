package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordbooks/autopost/internal/catalog"
	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/testutil"
)

const chartYAML = `accounts:
  - number: "4000"
    name: Purchases
    type: expense
  - number: "2400"
    name: Trade payables
    type: liability
tax_codes:
  - code: "25"
    description: Input VAT, high rate
    account: "2740"
    rate: "0.25"
`

func writeChart(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chart.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadChartFile(t *testing.T) {
	chart, err := catalog.LoadChartFile(writeChart(t, chartYAML))
	require.NoError(t, err)

	require.Len(t, chart.Accounts, 2)
	assert.Equal(t, "4000", chart.Accounts[0].Number)
	assert.Equal(t, "Purchases", chart.Accounts[0].Name)

	require.Len(t, chart.TaxCodes, 1)
	assert.Equal(t, "25", chart.TaxCodes[0].Code)
	assert.Equal(t, "2740", chart.TaxCodes[0].Account)
	assert.Equal(t, "0.25", chart.TaxCodes[0].Rate.String())
}

func TestLoadChartFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := catalog.LoadChartFile(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := catalog.LoadChartFile(writeChart(t, "accounts: [what"))
		require.Error(t, err)
	})

	t.Run("no accounts", func(t *testing.T) {
		_, err := catalog.LoadChartFile(writeChart(t, "tax_codes: []"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no accounts")
	})
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	chart, err := catalog.LoadChartFile(writeChart(t, chartYAML))
	require.NoError(t, err)
	require.NoError(t, catalog.Seed(ctx, db.Storage, "tenant-fresh", chart))

	cat := catalog.New(db.Storage)

	exists, err := cat.AccountExists(ctx, "tenant-fresh", "4000")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = cat.AccountExists(ctx, "tenant-fresh", "9999")
	require.NoError(t, err)
	assert.False(t, exists)

	taxCode, err := cat.GetTaxCode(ctx, "tenant-fresh", "25")
	require.NoError(t, err)
	assert.Equal(t, "2740", taxCode.Account)
	assert.True(t, taxCode.IsActive)

	_, err = cat.GetTaxCode(ctx, "tenant-fresh", "99")
	require.ErrorIs(t, err, common.ErrTaxCodeNotFound)

	// Reseeding the same chart updates in place instead of failing.
	chart.Accounts[0].Name = "Purchases, materials"
	require.NoError(t, catalog.Seed(ctx, db.Storage, "tenant-fresh", chart))

	accounts, err := cat.ListAccounts(ctx, "tenant-fresh")
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}
