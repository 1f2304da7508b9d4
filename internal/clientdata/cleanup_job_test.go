package clientdata

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJob_Name(t *testing.T) {
	job := NewCleanupJob(NewRepository(setupTestDB(t)), zerolog.Nop())
	assert.Equal(t, "cache_cleanup", job.Name())
	assert.Nil(t, job.LastReport())
}

func TestCleanupJob_EvictsExpiredOnly(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	job := NewCleanupJob(repo, zerolog.Nop())

	now := time.Now()
	for _, table := range AllTables {
		insertRaw(t, db, table, "expired", now.Add(-time.Hour).Unix())
		insertRaw(t, db, table, "fresh", now.Add(time.Hour).Unix())
	}
	insertRaw(t, db, TableHistory, "expired-2", now.Add(-2*time.Hour).Unix())

	require.NoError(t, job.Run())

	report := job.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, int64(2), report.Deleted[TableHistory])
	assert.Equal(t, int64(1), report.Deleted[TableQuote])
	for _, table := range AllTables {
		assert.Equal(t, int64(1), report.Remaining[table], table)
	}
	assert.False(t, report.RanAt.IsZero())
}

func TestCleanupJob_EmptyTables(t *testing.T) {
	job := NewCleanupJob(NewRepository(setupTestDB(t)), zerolog.Nop())

	require.NoError(t, job.Run())
	require.NotNil(t, job.LastReport())
	assert.Equal(t, int64(0), job.LastReport().Deleted[TableSearch])
}

func TestCleanupJob_MissingTableKeepsPreviousReport(t *testing.T) {
	db := setupTestDB(t)
	job := NewCleanupJob(NewRepository(db), zerolog.Nop())
	require.NoError(t, job.Run())
	first := job.LastReport()

	_, err := db.Exec("DROP TABLE yahoo_quote")
	require.NoError(t, err)

	assert.Error(t, job.Run())
	assert.Same(t, first, job.LastReport())
}
