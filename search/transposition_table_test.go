package search

import (
	"testing"

	"github.com/dylhunn/dragontoothmg"
	"github.com/matryer/is"
)

func TestTTableEntry(t *testing.T) {
	is := is.New(t)
	tt := &TranspositionTable{}
	tt.SetSingleThreadedMode()
	// Assure minimum size of 2^24 elems
	tt.Reset(0)
	is.True(tt.sizePowerOf2 >= 24)

	tentry := TableEntry{
		score:        12,
		flagAndDepth: TTUpper<<6 + 23,
		play:         0x1a2b,
	}
	tt.store(0x1122334455667788, tentry)

	te := tt.lookup(0x1122334455667788)
	is.True(te.valid())
	is.Equal(te.depth(), uint8(23))
	is.Equal(te.flag(), uint8(TTUpper))
	is.Equal(te.score, int16(12))
	is.Equal(te.move(), dragontoothmg.Move(0x1a2b))
	is.Equal(te.top4bytes, uint32(0x11223344))
	is.Equal(te.fifthbyte, uint8(0x55))

	is.Equal(tt.t2collisions.Load(), uint64(0))
	// create a collision: same bottom three bytes, different fifth byte.
	te = tt.lookup(0x1122334455667788 ^ (1 << 24))
	is.Equal(te, TableEntry{})
	is.Equal(tt.t2collisions.Load(), uint64(1))

	// another lookup, but this isn't a collision. collision count should
	// not go up.
	te = tt.lookup(0x1122334455667788 ^ 1)
	is.Equal(te, TableEntry{})
	is.Equal(tt.lookups.Load(), uint64(3))
	is.Equal(tt.t2collisions.Load(), uint64(1))
}

func TestTTableReplacement(t *testing.T) {
	is := is.New(t)
	tt := &TranspositionTable{}
	tt.SetSingleThreadedMode()
	tt.Reset(0)

	key := uint64(0xdeadbeefcafe1234)

	deep := TableEntry{score: 40, flagAndDepth: TTExact<<6 + 9}
	tt.store(key, deep)

	// a shallower entry from the same search loses to the deeper one.
	shallow := TableEntry{score: -5, flagAndDepth: TTLower<<6 + 3}
	tt.store(key, shallow)
	te := tt.lookup(key)
	is.Equal(te.depth(), uint8(9))
	is.Equal(te.score, int16(40))

	// equal depth prefers the fresher data.
	equal := TableEntry{score: 17, flagAndDepth: TTUpper<<6 + 9}
	tt.store(key, equal)
	te = tt.lookup(key)
	is.Equal(te.score, int16(17))
	is.Equal(te.flag(), uint8(TTUpper))

	// a deeper entry always wins.
	deeper := TableEntry{score: 60, flagAndDepth: TTExact<<6 + 12}
	tt.store(key, deeper)
	te = tt.lookup(key)
	is.Equal(te.depth(), uint8(12))

	// after a generation bump, even a depth-1 entry replaces the stale
	// deep one.
	tt.nextGeneration()
	fresh := TableEntry{score: 2, flagAndDepth: TTExact<<6 + 1}
	tt.store(key, fresh)
	te = tt.lookup(key)
	is.Equal(te.depth(), uint8(1))
	is.Equal(te.score, int16(2))
	is.Equal(te.gen, uint8(1))
}

func TestTTableResetClears(t *testing.T) {
	is := is.New(t)
	tt := &TranspositionTable{}
	tt.SetSingleThreadedMode()
	tt.Reset(0)

	key := uint64(0x0102030405060708)
	tt.store(key, TableEntry{score: 1, flagAndDepth: TTExact<<6 + 4})
	tt.nextGeneration()
	tt.Reset(0)

	te := tt.lookup(key)
	is.Equal(te, TableEntry{})
	is.Equal(tt.generation, uint8(0))
	is.Equal(tt.created.Load(), uint64(0))
}

func TestMateScoreTableAdjustment(t *testing.T) {
	is := is.New(t)

	// mate in two found at ply 3 from the root
	score := CheckmateScore - 3

	// stored at a node two plies in, the entry encodes the distance from
	// that node...
	stored := scoreToTable(score, 2)
	is.Equal(stored, CheckmateScore-1)

	// ...and probing the same position four plies from a different root
	// rebuilds the distance from that root.
	is.Equal(scoreFromTable(stored, 2), score)
	is.Equal(scoreFromTable(stored, 4), CheckmateScore-5)

	// mated-side scores mirror.
	mated := -(CheckmateScore - 3)
	is.Equal(scoreToTable(mated, 2), -(CheckmateScore - 1))
	is.Equal(scoreFromTable(scoreToTable(mated, 2), 2), mated)

	// ordinary evaluations pass through untouched.
	is.Equal(scoreToTable(120, 9), int16(120))
	is.Equal(scoreFromTable(-340, 9), int16(-340))
}
