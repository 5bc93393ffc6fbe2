package gamestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/luzhin-io/luzhin/game"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	os.Exit(m.Run())
}

func memStore(t *testing.T) *Store {
	st, err := Open(":memory:")
	if err != nil {
		panic(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRecord(id, white, black, result string) Record {
	return Record{
		ID:          id,
		White:       white,
		Black:       black,
		Result:      result,
		Termination: game.Checkmate.String(),
		Plies:       57,
		StartFen:    game.StartposFEN,
		PGN:         `[Event "test"]` + "\n\n1. e4 e5 " + result + "\n",
		CreatedAt:   time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

func TestInsertAndFetch(t *testing.T) {
	is := is.New(t)
	st := memStore(t)
	ctx := context.Background()

	rec := sampleRecord("g-1", "luzhin", "rival", "1-0")
	is.NoErr(st.InsertGame(ctx, rec))

	got, err := st.Game(ctx, "g-1")
	is.NoErr(err)
	is.Equal(got.White, "luzhin")
	is.Equal(got.Black, "rival")
	is.Equal(got.Result, "1-0")
	is.Equal(got.Termination, "checkmate")
	is.Equal(got.Plies, 57)
	is.Equal(got.StartFen, game.StartposFEN)
	is.Equal(got.PGN, rec.PGN)
	is.True(got.CreatedAt.Equal(rec.CreatedAt))
}

func TestInsertDuplicateIDFails(t *testing.T) {
	is := is.New(t)
	st := memStore(t)
	ctx := context.Background()

	rec := sampleRecord("dup", "a", "b", "1-0")
	is.NoErr(st.InsertGame(ctx, rec))
	is.True(st.InsertGame(ctx, rec) != nil)
}

func TestEngineResults(t *testing.T) {
	is := is.New(t)
	st := memStore(t)
	ctx := context.Background()

	inserts := []Record{
		sampleRecord("g-1", "luzhin", "rival", "1-0"),
		sampleRecord("g-2", "rival", "luzhin", "0-1"),
		sampleRecord("g-3", "luzhin", "rival", "0-1"),
		sampleRecord("g-4", "rival", "luzhin", "1/2-1/2"),
		sampleRecord("g-5", "other1", "other2", "1-0"),
	}
	for _, rec := range inserts {
		is.NoErr(st.InsertGame(ctx, rec))
	}

	luzhin, err := st.EngineResults(ctx, "luzhin")
	is.NoErr(err)
	is.Equal(luzhin, Results{Wins: 2, Losses: 1, Draws: 1})

	rival, err := st.EngineResults(ctx, "rival")
	is.NoErr(err)
	is.Equal(rival, Results{Wins: 1, Losses: 2, Draws: 1})

	ghost, err := st.EngineResults(ctx, "ghost")
	is.NoErr(err)
	is.Equal(ghost, Results{})
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	is := is.New(t)
	st := memStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	old := sampleRecord("g-old", "a", "b", "1-0")
	old.CreatedAt = base
	mid := sampleRecord("g-mid", "a", "b", "0-1")
	mid.CreatedAt = base.Add(time.Hour)
	newest := sampleRecord("g-new", "a", "b", "1/2-1/2")
	newest.CreatedAt = base.Add(2 * time.Hour)

	for _, rec := range []Record{mid, newest, old} {
		is.NoErr(st.InsertGame(ctx, rec))
	}

	recent, err := st.Recent(ctx, 2)
	is.NoErr(err)
	is.Equal(len(recent), 2)
	is.Equal(recent[0].ID, "g-new")
	is.Equal(recent[1].ID, "g-mid")
}

func TestOpenOnDiskPersistsAcrossReopen(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "games.db")

	st, err := Open(path)
	is.NoErr(err)
	is.NoErr(st.InsertGame(ctx, sampleRecord("g-disk", "a", "b", "1-0")))
	is.NoErr(st.Close())

	st, err = Open(path)
	is.NoErr(err)
	defer st.Close()
	got, err := st.Game(ctx, "g-disk")
	is.NoErr(err)
	is.Equal(got.White, "a")
}
