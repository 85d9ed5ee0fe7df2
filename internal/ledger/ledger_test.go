package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordbooks/autopost/internal/catalog"
	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
	"github.com/nordbooks/autopost/internal/testutil"
	"github.com/nordbooks/autopost/internal/voucher"
)

func setupLedger(t *testing.T) (*Ledger, service.Storage, *voucher.Builder) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	builder := voucher.NewBuilder(catalog.New(db.Storage))
	return New(db.Storage), db.Storage, builder
}

func buildVoucher(t *testing.T, builder *voucher.Builder, opts ...testutil.ProposalOption) *model.Voucher {
	t.Helper()
	proposal := testutil.NewProposal(opts...)
	settings := model.DefaultTenantSettings(testutil.TestTenant)
	built, err := builder.Build(context.Background(), proposal, settings, nil)
	require.NoError(t, err)
	return built
}

func logEntry(subjectID string) *model.DecisionLogEntry {
	return &model.DecisionLogEntry{
		ID:          uuid.NewString(),
		TenantID:    testutil.TestTenant,
		SubjectType: "proposal",
		SubjectID:   subjectID,
		Action:      model.ActionAutoPosted,
		ActorType:   model.ActorAutomation,
		ActorID:     model.CreatorAutomation,
	}
}

func TestPostAssignsSequentialNumbers(t *testing.T) {
	ctx := context.Background()
	led, _, builder := setupLedger(t)

	first, err := led.Post(ctx, buildVoucher(t, builder), logEntry("p1"))
	require.NoError(t, err)
	second, err := led.Post(ctx, buildVoucher(t, builder), logEntry("p2"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Number)
	assert.Equal(t, int64(2), second.Number)
	assert.Equal(t, "A", first.Series)
}

func TestPostWritesDecisionLog(t *testing.T) {
	ctx := context.Background()
	led, store, builder := setupLedger(t)

	posted, err := led.Post(ctx, buildVoucher(t, builder), logEntry("p1"))
	require.NoError(t, err)

	entries, err := store.ListDecisionLog(ctx, service.DecisionLogFilter{TenantID: testutil.TestTenant})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionAutoPosted, entries[0].Action)

	stored, err := store.GetVoucher(ctx, testutil.TestTenant, posted.ID)
	require.NoError(t, err)
	assert.True(t, stored.Balanced())
	require.Len(t, stored.Lines, 3)
}

func TestPostDuplicateSourceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	led, store, builder := setupLedger(t)

	first := buildVoucher(t, builder, testutil.WithSourceID("invoice-42"))
	posted, err := led.Post(ctx, first, logEntry("p1"))
	require.NoError(t, err)

	// A retried proposal with the same source reference returns the
	// existing voucher instead of posting again.
	retry := buildVoucher(t, builder, testutil.WithSourceID("invoice-42"))
	again, err := led.Post(ctx, retry, logEntry("p1"))
	require.NoError(t, err)
	assert.Equal(t, posted.ID, again.ID)

	vouchers, err := store.ListVouchers(ctx, service.VoucherFilter{TenantID: testutil.TestTenant})
	require.NoError(t, err)
	assert.Len(t, vouchers, 1)
}

// blindStore hides an existing voucher from the first source lookups,
// reproducing the window where a concurrent writer commits between the
// duplicate pre-check and the insert.
type blindStore struct {
	service.Storage
	misses int
}

func (s *blindStore) GetVoucherBySource(ctx context.Context, tenantID string, source model.SourceType, sourceID string) (*model.Voucher, error) {
	if s.misses > 0 {
		s.misses--
		return nil, common.ErrVoucherNotFound
	}
	return s.Storage.GetVoucherBySource(ctx, tenantID, source, sourceID)
}

func TestPostDuplicateSourceRaceLoser(t *testing.T) {
	ctx := context.Background()
	led, store, builder := setupLedger(t)

	winner := buildVoucher(t, builder, testutil.WithSourceID("invoice-42"))
	posted, err := led.Post(ctx, winner, logEntry("p1"))
	require.NoError(t, err)

	// The loser's pre-check misses, its insert hits the unique source
	// index, and the conflict resolves to the winner's voucher.
	racing := New(&blindStore{Storage: store, misses: 1})
	loser := buildVoucher(t, builder, testutil.WithSourceID("invoice-42"))
	again, err := racing.Post(ctx, loser, logEntry("p1-retry"))
	require.NoError(t, err)
	assert.Equal(t, posted.ID, again.ID)

	vouchers, err := store.ListVouchers(ctx, service.VoucherFilter{TenantID: testutil.TestTenant})
	require.NoError(t, err)
	assert.Len(t, vouchers, 1)
}

func TestReverseSwapsSides(t *testing.T) {
	ctx := context.Background()
	led, store, builder := setupLedger(t)

	posted, err := led.Post(ctx, buildVoucher(t, builder), logEntry("p1"))
	require.NoError(t, err)

	reversal, err := led.Reverse(ctx, testutil.TestTenant, posted.ID, "reviewer-1", "wrong account")
	require.NoError(t, err)

	require.Len(t, reversal.Lines, 3)
	for i, line := range reversal.Lines {
		assert.True(t, line.Debit.Equal(posted.Lines[i].Credit), "line %d debit", i)
		assert.True(t, line.Credit.Equal(posted.Lines[i].Debit), "line %d credit", i)
		assert.Equal(t, posted.Lines[i].Account, line.Account)
	}
	assert.True(t, reversal.Balanced())
	assert.Equal(t, posted.ID, reversal.Reverses)
	assert.Equal(t, model.SourceCorrection, reversal.SourceType)

	// The original row gains the reversed flag and nothing else changes.
	original, err := store.GetVoucher(ctx, testutil.TestTenant, posted.ID)
	require.NoError(t, err)
	assert.True(t, original.IsReversed)
	assert.Equal(t, reversal.ID, original.ReversedBy)
	require.Len(t, original.Lines, 3)
	assert.True(t, original.Lines[0].Debit.Equal(decimal.RequireFromString("10000.00")))
}

func TestReverseTwiceFails(t *testing.T) {
	ctx := context.Background()
	led, _, builder := setupLedger(t)

	posted, err := led.Post(ctx, buildVoucher(t, builder), logEntry("p1"))
	require.NoError(t, err)

	_, err = led.Reverse(ctx, testutil.TestTenant, posted.ID, "reviewer-1", "wrong account")
	require.NoError(t, err)

	_, err = led.Reverse(ctx, testutil.TestTenant, posted.ID, "reviewer-1", "again")
	require.ErrorIs(t, err, common.ErrAlreadyReversed)
}

func TestReverseRequiresReason(t *testing.T) {
	ctx := context.Background()
	led, _, builder := setupLedger(t)

	posted, err := led.Post(ctx, buildVoucher(t, builder), logEntry("p1"))
	require.NoError(t, err)

	_, err = led.Reverse(ctx, testutil.TestTenant, posted.ID, "reviewer-1", "")
	require.Error(t, err)

	var userErr *common.UserError
	assert.ErrorAs(t, err, &userErr)
}

func TestReverseUnknownVoucher(t *testing.T) {
	ctx := context.Background()
	led, _, _ := setupLedger(t)

	_, err := led.Reverse(ctx, testutil.TestTenant, "no-such-voucher", "reviewer-1", "typo")
	require.ErrorIs(t, err, common.ErrVoucherNotFound)
}
