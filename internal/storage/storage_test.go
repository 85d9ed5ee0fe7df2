package storage_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
	"github.com/nordbooks/autopost/internal/testutil"
)

func pendingItem() *model.ReviewQueueItem {
	return &model.ReviewQueueItem{
		ID:       uuid.NewString(),
		TenantID: testutil.TestTenant,
		Status:   model.ReviewStatusPending,
		Proposal: *testutil.NewProposal(),
		Score:    60,
		Priority: 40,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	// SetupTestDB already migrated once.
	require.NoError(t, db.Storage.Migrate(ctx))
}

func TestResolveReviewItemRace(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	item := pendingItem()
	require.NoError(t, db.Storage.CreateReviewItem(ctx, item))

	item.Status = model.ReviewStatusApproved
	item.ResolverID = "reviewer-1"
	require.NoError(t, db.Storage.ResolveReviewItem(ctx, item))
	require.NotNil(t, item.ResolvedAt)

	// The second resolution attempt hits the status guard.
	loser := *item
	loser.Status = model.ReviewStatusRejected
	loser.ResolverID = "reviewer-2"
	err := db.Storage.ResolveReviewItem(ctx, &loser)
	require.ErrorIs(t, err, common.ErrAlreadyResolved)

	stored, err := db.Storage.GetReviewItem(ctx, testutil.TestTenant, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewStatusApproved, stored.Status)
	assert.Equal(t, "reviewer-1", stored.ResolverID)
}

func TestResolveReviewItemRejectsPendingStatus(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	item := pendingItem()
	require.NoError(t, db.Storage.CreateReviewItem(ctx, item))

	err := db.Storage.ResolveReviewItem(ctx, item)
	require.Error(t, err)
}

func TestReviewItemSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	item := pendingItem()
	item.Breakdown = model.FactorBreakdown{ExtractionQuality: 95, ClassifierConfidence: 90}
	require.NoError(t, db.Storage.CreateReviewItem(ctx, item))

	stored, err := db.Storage.GetReviewItem(ctx, testutil.TestTenant, item.ID)
	require.NoError(t, err)

	assert.Equal(t, item.Proposal.Counterparty, stored.Proposal.Counterparty)
	assert.True(t, item.Proposal.TotalAmount.Equal(stored.Proposal.TotalAmount))
	assert.Equal(t, 95, stored.Breakdown.ExtractionQuality)
	require.NotNil(t, stored.Proposal.ClassifierConfidence)
	assert.InDelta(t, 0.90, *stored.Proposal.ClassifierConfidence, 0.001)
}

func TestListPendingReviewItemsOrdering(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	low := pendingItem()
	low.Priority = 10
	high := pendingItem()
	high.Priority = 90
	require.NoError(t, db.Storage.CreateReviewItem(ctx, low))
	require.NoError(t, db.Storage.CreateReviewItem(ctx, high))

	items, err := db.Storage.ListPendingReviewItems(ctx, service.ReviewFilter{TenantID: testutil.TestTenant})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, high.ID, items[0].ID)
	assert.Equal(t, low.ID, items[1].ID)
}

func TestUpdateLearnedPatternStaleWrite(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	pattern := testutil.NewPattern(1, 2)
	require.NoError(t, db.Storage.CreateLearnedPattern(ctx, pattern))

	copy1, err := db.Storage.GetLearnedPattern(ctx, pattern.ID)
	require.NoError(t, err)
	copy2, err := db.Storage.GetLearnedPattern(ctx, pattern.ID)
	require.NoError(t, err)

	copy1.Hits++
	require.NoError(t, db.Storage.UpdateLearnedPattern(ctx, copy1))
	assert.Equal(t, int64(2), copy1.Version)

	// The second writer still holds version 1 and must lose.
	copy2.Applications++
	err = db.Storage.UpdateLearnedPattern(ctx, copy2)
	require.ErrorIs(t, err, common.ErrStaleWrite)
}

func TestCreateLearnedPatternDuplicateTrigger(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	require.NoError(t, db.Storage.CreateLearnedPattern(ctx, testutil.NewPattern(1, 2)))

	err := db.Storage.CreateLearnedPattern(ctx, testutil.NewPattern(1, 2))
	require.ErrorIs(t, err, common.ErrDuplicateEntry)
}

func TestFindPatternByTriggerCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	pattern := testutil.NewPattern(1, 2)
	require.NoError(t, db.Storage.CreateLearnedPattern(ctx, pattern))

	found, err := db.Storage.FindPatternByTrigger(ctx, testutil.TestTenant, "OSLO EIENDOM AS", "6300")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, pattern.ID, found.ID)

	missing, err := db.Storage.FindPatternByTrigger(ctx, testutil.TestTenant, "Oslo Eiendom AS", "6540")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetActivePatternsIncludesGlobalScope(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	tenantPattern := testutil.NewPattern(1, 2)
	require.NoError(t, db.Storage.CreateLearnedPattern(ctx, tenantPattern))

	global := testutil.NewPattern(1, 2)
	global.TenantID = ""
	global.Counterparty = "Global Vendor"
	require.NoError(t, db.Storage.CreateLearnedPattern(ctx, global))

	foreign := testutil.NewPattern(1, 2)
	foreign.TenantID = "tenant-2"
	foreign.Counterparty = "Other Vendor"
	require.NoError(t, db.Storage.CreateLearnedPattern(ctx, foreign))

	patterns, err := db.Storage.GetActivePatterns(ctx, testutil.TestTenant)
	require.NoError(t, err)
	assert.Len(t, patterns, 2)
}

func TestDeactivateLearnedPattern(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	pattern := testutil.NewPattern(1, 2)
	require.NoError(t, db.Storage.CreateLearnedPattern(ctx, pattern))
	require.NoError(t, db.Storage.DeactivateLearnedPattern(ctx, pattern.ID))

	patterns, err := db.Storage.GetActivePatterns(ctx, testutil.TestTenant)
	require.NoError(t, err)
	assert.Empty(t, patterns)

	// The row itself survives deactivation.
	stored, err := db.Storage.GetLearnedPattern(ctx, pattern.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestGetTenantSettingsDefaults(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	settings, err := db.Storage.GetTenantSettings(ctx, "unconfigured-tenant")
	require.NoError(t, err)

	assert.Equal(t, model.DefaultConfidenceThreshold, settings.ConfidenceThreshold)
	assert.Equal(t, "A", settings.VoucherSeries)
	assert.Equal(t, "NOK", settings.Currency)
	assert.Equal(t, "2400", settings.Rules.TradePayables)
}

func TestSaveTenantSettings(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	settings := model.DefaultTenantSettings(testutil.TestTenant)
	settings.ConfidenceThreshold = 92
	require.NoError(t, db.Storage.SaveTenantSettings(ctx, settings))

	stored, err := db.Storage.GetTenantSettings(ctx, testutil.TestTenant)
	require.NoError(t, err)
	assert.Equal(t, 92, stored.ConfidenceThreshold)

	t.Run("rejects out-of-range threshold", func(t *testing.T) {
		settings.ConfidenceThreshold = 120
		require.Error(t, db.Storage.SaveTenantSettings(ctx, settings))
	})
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	tx, err := db.Storage.BeginTx(ctx)
	require.NoError(t, err)

	item := pendingItem()
	require.NoError(t, tx.CreateReviewItem(ctx, item))
	require.NoError(t, tx.Rollback())

	_, err = db.Storage.GetReviewItem(ctx, testutil.TestTenant, item.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestTransactionCommit(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	tx, err := db.Storage.BeginTx(ctx)
	require.NoError(t, err)

	item := pendingItem()
	require.NoError(t, tx.CreateReviewItem(ctx, item))
	require.NoError(t, tx.Commit())

	stored, err := db.Storage.GetReviewItem(ctx, testutil.TestTenant, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, stored.ID)
}

func TestAppendDecisionLogIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	entry := &model.DecisionLogEntry{
		ID:          uuid.NewString(),
		TenantID:    testutil.TestTenant,
		SubjectType: "proposal",
		SubjectID:   "p1",
		Action:      model.ActionScored,
		ActorType:   model.ActorAutomation,
		ActorID:     model.CreatorAutomation,
	}
	require.NoError(t, db.Storage.AppendDecisionLog(ctx, entry))

	err := db.Storage.AppendDecisionLog(ctx, entry)
	require.ErrorIs(t, err, common.ErrDuplicateEntry)
}
