package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
)

func approvedTestItem() *model.ReviewQueueItem {
	return &model.ReviewQueueItem{
		ID:       "item-1",
		TenantID: "tenant-1",
		Status:   model.ReviewStatusApproved,
	}
}

// Driver-level failures are hard to provoke against a real SQLite file, so
// these paths are exercised with a mocked database handle.

func mockStorage(t *testing.T) (*SQLiteStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &SQLiteStorage{db: db, dbPath: "mock"}, mock
}

func TestNextVoucherNumberQueryError(t *testing.T) {
	store, mock := mockStorage(t)

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(number\), 0\)`).
		WithArgs("tenant-1", "A").
		WillReturnError(errors.New("disk I/O error"))

	_, err := store.NextVoucherNumber(context.Background(), "tenant-1", "A")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to allocate voucher number")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkVoucherReversedExecError(t *testing.T) {
	store, mock := mockStorage(t)

	mock.ExpectExec(`UPDATE vouchers SET is_reversed = 1`).
		WillReturnError(errors.New("database is locked"))

	err := store.MarkVoucherReversed(context.Background(), "tenant-1", "v1", "v2")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to mark voucher reversed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkVoucherReversedNoRows(t *testing.T) {
	store, mock := mockStorage(t)

	mock.ExpectExec(`UPDATE vouchers SET is_reversed = 1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkVoucherReversed(context.Background(), "tenant-1", "v1", "v2")
	require.ErrorIs(t, err, common.ErrAlreadyReversed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveReviewItemResultError(t *testing.T) {
	store, mock := mockStorage(t)

	mock.ExpectExec(`UPDATE review_queue_items`).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows affected unavailable")))

	item := approvedTestItem()
	err := store.ResolveReviewItem(context.Background(), item)
	require.Error(t, err)
	require.Contains(t, err.Error(), "rows affected")
	require.NoError(t, mock.ExpectationsWereMet())
}
