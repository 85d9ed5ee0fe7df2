// Package catalog provides the read-only chart-of-accounts lookup consumed
// by the voucher builder, plus a YAML seed loader for tenant charts.
package catalog

import (
	"context"
	"errors"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
)

// Catalog is the storage-backed account and tax code lookup.
type Catalog struct {
	store service.Storage
}

// New creates a catalog over the given storage.
func New(store service.Storage) *Catalog {
	return &Catalog{store: store}
}

// AccountExists reports whether an active account with the number exists
// for the tenant.
func (c *Catalog) AccountExists(ctx context.Context, tenantID, number string) (bool, error) {
	_, err := c.store.GetAccount(ctx, tenantID, number)
	if errors.Is(err, common.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetTaxCode returns an active tax code for the tenant.
func (c *Catalog) GetTaxCode(ctx context.Context, tenantID, code string) (*model.TaxCode, error) {
	return c.store.GetTaxCode(ctx, tenantID, code)
}

// ListAccounts returns the tenant's active chart of accounts.
func (c *Catalog) ListAccounts(ctx context.Context, tenantID string) ([]model.Account, error) {
	return c.store.ListAccounts(ctx, tenantID)
}
