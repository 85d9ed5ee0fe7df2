package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
)

// ChartFile is the YAML layout of a chart-of-accounts seed file.
type ChartFile struct {
	Accounts []model.Account `yaml:"accounts"`
	TaxCodes []model.TaxCode `yaml:"tax_codes"`
}

// LoadChartFile parses a YAML chart-of-accounts file.
func LoadChartFile(path string) (*ChartFile, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied seed file
	if err != nil {
		return nil, fmt.Errorf("failed to read chart file: %w", err)
	}

	var chart ChartFile
	if err := yaml.Unmarshal(data, &chart); err != nil {
		return nil, fmt.Errorf("failed to parse chart file: %w", err)
	}
	if len(chart.Accounts) == 0 {
		return nil, fmt.Errorf("chart file %s contains no accounts", path)
	}
	return &chart, nil
}

// Seed stores a chart file's accounts and tax codes for a tenant. Existing
// entries with the same number/code are updated.
func Seed(ctx context.Context, store service.Storage, tenantID string, chart *ChartFile) error {
	for i := range chart.Accounts {
		account := chart.Accounts[i]
		account.TenantID = tenantID
		account.IsActive = true
		if err := store.SaveAccount(ctx, &account); err != nil {
			return fmt.Errorf("failed to seed account %s: %w", account.Number, err)
		}
	}
	for i := range chart.TaxCodes {
		taxCode := chart.TaxCodes[i]
		taxCode.TenantID = tenantID
		taxCode.IsActive = true
		if err := store.SaveTaxCode(ctx, &taxCode); err != nil {
			return fmt.Errorf("failed to seed tax code %s: %w", taxCode.Code, err)
		}
	}
	return nil
}
