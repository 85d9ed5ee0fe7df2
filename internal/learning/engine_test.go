package learning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
	"github.com/nordbooks/autopost/internal/testutil"
)

func setupEngine(t *testing.T) (*Engine, service.Storage) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return New(db.Storage), db.Storage
}

func reviewItem(status model.ReviewStatus) *model.ReviewQueueItem {
	return &model.ReviewQueueItem{
		ID:       "item-1",
		TenantID: testutil.TestTenant,
		Status:   status,
		Proposal: *testutil.NewProposal(),
	}
}

func TestCorrectionCreatesPatternWithNeutralPrior(t *testing.T) {
	ctx := context.Background()
	engine, store := setupEngine(t)

	pattern, err := engine.RecordFeedback(ctx, reviewItem(model.ReviewStatusCorrected), Resolution{
		ResolverID: "reviewer-1",
		Status:     model.ReviewStatusCorrected,
		Overrides:  []model.LineOverride{{Account: "6000", TaxCode: "25"}},
	})
	require.NoError(t, err)
	require.NotNil(t, pattern)

	assert.Equal(t, "Oslo Eiendom AS", pattern.Counterparty)
	assert.Equal(t, "6300", pattern.TriggerAccount)
	assert.Equal(t, "6000", pattern.Action.Account)
	assert.Equal(t, int64(1), pattern.Hits)
	assert.Equal(t, int64(2), pattern.Applications)
	assert.InDelta(t, 0.5, pattern.SuccessRate(), 0.001)

	stored, err := store.GetLearnedPattern(ctx, pattern.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestRepeatedCorrectionStrengthensPattern(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)

	resolution := Resolution{
		ResolverID: "reviewer-1",
		Status:     model.ReviewStatusCorrected,
		Overrides:  []model.LineOverride{{Account: "6000"}},
	}

	first, err := engine.RecordFeedback(ctx, reviewItem(model.ReviewStatusCorrected), resolution)
	require.NoError(t, err)

	second, err := engine.RecordFeedback(ctx, reviewItem(model.ReviewStatusCorrected), resolution)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(2), second.Hits)
	assert.Equal(t, int64(3), second.Applications)
	assert.Greater(t, second.SuccessRate(), first.SuccessRate())
}

func TestCorrectionToDifferentAccountFollowsNewest(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)

	// Two corrections to 6000 first, so the pattern carries earned hits
	// before the redirect.
	toOld := Resolution{
		Status:    model.ReviewStatusCorrected,
		Overrides: []model.LineOverride{{Account: "6000"}},
	}
	_, err := engine.RecordFeedback(ctx, reviewItem(model.ReviewStatusCorrected), toOld)
	require.NoError(t, err)
	strengthened, err := engine.RecordFeedback(ctx, reviewItem(model.ReviewStatusCorrected), toOld)
	require.NoError(t, err)
	require.Equal(t, int64(2), strengthened.Hits)

	updated, err := engine.RecordFeedback(ctx, reviewItem(model.ReviewStatusCorrected), Resolution{
		Status:    model.ReviewStatusCorrected,
		Overrides: []model.LineOverride{{Account: "6540"}},
	})
	require.NoError(t, err)

	// The action follows the latest correction, and hits earned by the
	// abandoned mapping do not carry over: the redirected pattern must
	// climb back above the boost gate on its own.
	assert.Equal(t, "6540", updated.Action.Account)
	assert.Equal(t, int64(1), updated.Hits)
	assert.Equal(t, int64(4), updated.Applications)
	assert.InDelta(t, 0.25, updated.SuccessRate(), 0.001)
}

func TestRejectionDecaysExistingPattern(t *testing.T) {
	ctx := context.Background()
	engine, store := setupEngine(t)

	created, err := engine.RecordFeedback(ctx, reviewItem(model.ReviewStatusCorrected), Resolution{
		Status:    model.ReviewStatusCorrected,
		Overrides: []model.LineOverride{{Account: "6000"}},
	})
	require.NoError(t, err)

	_, err = engine.RecordFeedback(ctx, reviewItem(model.ReviewStatusRejected), Resolution{
		Status: model.ReviewStatusRejected,
	})
	require.NoError(t, err)

	decayed, err := store.GetLearnedPattern(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), decayed.Hits)
	assert.Equal(t, int64(3), decayed.Applications)
	assert.Less(t, decayed.SuccessRate(), created.SuccessRate())
	assert.True(t, decayed.IsActive) // decay never deletes or deactivates
}

func TestRejectionWithoutPatternIsNoOp(t *testing.T) {
	ctx := context.Background()
	engine, store := setupEngine(t)

	_, err := engine.RecordFeedback(ctx, reviewItem(model.ReviewStatusRejected), Resolution{
		Status: model.ReviewStatusRejected,
	})
	require.NoError(t, err)

	patterns, err := store.GetActivePatterns(ctx, testutil.TestTenant)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestApprovalLearnsNothing(t *testing.T) {
	ctx := context.Background()
	engine, store := setupEngine(t)

	pattern, err := engine.RecordFeedback(ctx, reviewItem(model.ReviewStatusApproved), Resolution{
		Status: model.ReviewStatusApproved,
	})
	require.NoError(t, err)
	assert.Nil(t, pattern)

	patterns, err := store.GetActivePatterns(ctx, testutil.TestTenant)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestRecordApplication(t *testing.T) {
	ctx := context.Background()
	engine, store := setupEngine(t)

	created, err := engine.RecordFeedback(ctx, reviewItem(model.ReviewStatusCorrected), Resolution{
		Status:    model.ReviewStatusCorrected,
		Overrides: []model.LineOverride{{Account: "6000"}},
	})
	require.NoError(t, err)

	require.NoError(t, engine.RecordApplication(ctx, created.ID))

	applied, err := store.GetLearnedPattern(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), applied.Hits)
	assert.Equal(t, int64(3), applied.Applications)
}
