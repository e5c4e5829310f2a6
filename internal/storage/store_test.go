package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/casefile/internal/models"
)

var kane = models.CaseFile{
	Detective: "Kane",
	Threat:    "drowned choir",
	Location:  "Saltmarsh Abbey",
	Objective: "recover the reliquary",
}

func openStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err := New(db)
	require.NoError(t, err)
	return store, db
}

func TestMigrateIsIdempotent(t *testing.T) {
	_, db := openStore(t)
	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))

	var current int
	require.NoError(t, db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current))
	assert.Equal(t, SchemaVersion, current)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestCaseLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)
	start := time.Date(2024, 10, 31, 22, 0, 0, 0, time.UTC)

	require.NoError(t, store.OpenCase(ctx, "case-1", kane, 8, start))
	recs := []models.TurnRecord{
		{Index: 1, Narrative: "Fog.", Choice: models.Choice{Label: "B", Text: "Listen", Points: 2, Outcome: "A hymn"}, ScoreBefore: 0, ScoreAfter: 2, At: start.Add(time.Minute)},
		{Index: 2, Narrative: "Water.", Illustration: "https://images.example/2.png", Choice: models.Choice{Label: "D", Text: "Wade in", Points: -2, Outcome: "Cold"}, ScoreBefore: 2, ScoreAfter: 0, At: start.Add(2 * time.Minute)},
	}
	for _, rec := range recs {
		require.NoError(t, store.AppendTurn(ctx, "case-1", rec))
	}
	assert.Error(t, store.AppendTurn(ctx, "case-1", recs[0]), "turns are never rewritten")

	end := start.Add(3 * time.Minute)
	require.NoError(t, store.CloseCase(ctx, "case-1", models.StatusLost, 0, models.Ending{Text: "The choir sings on.", Fallback: true}, end))
	require.NoError(t, store.CloseCase(ctx, "case-1", models.StatusWon, 8, models.Ending{Text: "late"}, end))

	cases, err := store.ListCases(ctx, 10)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	got := cases[0]
	assert.Equal(t, kane, got.Case)
	assert.Equal(t, models.StatusLost, got.Status)
	assert.Equal(t, 2, got.Turns)
	assert.Equal(t, "The choir sings on.", got.Ending)
	assert.True(t, got.Fallback)
	assert.True(t, start.Equal(got.StartedAt))
	require.NotNil(t, got.FinishedAt)
	assert.True(t, end.Equal(*got.FinishedAt))

	turns, err := store.CaseTurns(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, recs[1].Choice, turns[1].Choice)
	assert.Equal(t, "https://images.example/2.png", turns[1].Illustration)
	assert.Empty(t, turns[0].Illustration)
	assert.True(t, recs[0].At.Equal(turns[0].At))
}

func TestUnknownCase(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)

	err := store.AppendTurn(ctx, "nope", models.TurnRecord{Index: 1})
	assert.Error(t, err)
	err = store.CloseCase(ctx, "nope", models.StatusWon, 8, models.Ending{}, time.Now())
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestListCasesNewestFirst(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, store.OpenCase(ctx, id, kane, 8, base.Add(time.Duration(i)*time.Hour)))
	}

	cases, err := store.ListCases(ctx, 2)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "new", cases[0].ID)
	assert.Equal(t, "mid", cases[1].ID)
	assert.Equal(t, models.StatusPlaying, cases[0].Status)
	assert.Nil(t, cases[0].FinishedAt)
}
