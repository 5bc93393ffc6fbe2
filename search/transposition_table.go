package search

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/dylhunn/dragontoothmg"
	"github.com/pbnjay/memory"
	"github.com/rs/zerolog/log"
)

const (
	TTExact = 0x01
	TTLower = 0x02
	TTUpper = 0x03
)

const entrySize = 16

const bottom3ByteMask = (1 << 24) - 1
const depthMask = (1 << 6) - 1

// 16 bytes (entrySize)
type TableEntry struct {
	// Only the top five bytes of the hash are stored; the bottom three
	// are implied by the entry's slot in the table.
	top4bytes    uint32
	play         dragontoothmg.Move
	score        int16
	fifthbyte    uint8
	flagAndDepth uint8
	gen          uint8
}

// fullHash reconstructs the 64-bit hash from the entry's stored high
// bytes and the slot index it lives at.
func (t TableEntry) fullHash(idx uint64) uint64 {
	return uint64(t.top4bytes)<<32 + uint64(t.fifthbyte)<<24 + (idx & bottom3ByteMask)
}

func (t TableEntry) flag() uint8 {
	return t.flagAndDepth >> 6
}

func (t TableEntry) depth() uint8 {
	return t.flagAndDepth & depthMask
}

func (t TableEntry) valid() bool {
	// flags are 1, 2 or 3; a zero flag is an empty slot.
	return t.flag() != 0
}

func (t TableEntry) move() dragontoothmg.Move {
	return t.play
}

type TableLock interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

type FakeLock struct{}

func (f FakeLock) Lock()    {}
func (f FakeLock) Unlock()  {}
func (f FakeLock) RLock()   {}
func (f FakeLock) RUnlock() {}

// TranspositionTable caches search results keyed by position hash. It is
// sized as a power of two and indexed by the low bits of the hash; the
// high five bytes live in the entry itself so a probe can verify the full
// key. A table smaller than 2^24 slots would make that reconstruction
// lossy, so Reset never goes below it.
type TranspositionTable struct {
	TableLock
	table        []TableEntry
	created      atomic.Uint64
	lookups      atomic.Uint64
	hits         atomic.Uint64
	sizePowerOf2 int
	sizeMask     uint64
	// t2collisions counts probes that found an unrelated position whose
	// low hash bytes match ("type 2"). Two positions sharing the whole
	// 64-bit hash ("type 1") can't be told apart here, but that should
	// be far rarer.
	t2collisions atomic.Uint64

	// generation ages entries between searches. It wraps; only equality
	// with the current value matters.
	generation uint8
}

func (t *TranspositionTable) SetSingleThreadedMode() {
	t.TableLock = &FakeLock{}
}

func (t *TranspositionTable) SetMultiThreadedMode() {
	t.TableLock = &sync.RWMutex{}
}

// nextGeneration marks the beginning of a new search. Entries written by
// earlier searches become fair game for replacement.
func (t *TranspositionTable) nextGeneration() {
	t.generation++
}

func (t *TranspositionTable) lookup(zval uint64) TableEntry {
	t.RLock()
	defer t.RUnlock()
	t.lookups.Add(1)
	idx := zval & t.sizeMask
	fullHash := t.table[idx].fullHash(idx)
	if fullHash != zval {
		if t.table[idx].valid() {
			// another position occupies this slot.
			t.t2collisions.Add(1)
		}
		return TableEntry{}
	}
	t.hits.Add(1)
	// A matching full hash is taken to be the same position. False
	// matches are possible, just vanishingly rare.
	return t.table[idx]
}

func (t *TranspositionTable) store(zval uint64, tentry TableEntry) {
	t.Lock()
	defer t.Unlock()
	idx := zval & t.sizeMask
	old := t.table[idx]
	// Keep the deeper entry if it came from this same search; anything
	// older always gets replaced.
	if old.valid() && old.gen == t.generation && old.depth() > tentry.depth() {
		return
	}
	tentry.top4bytes = uint32(zval >> 32)
	tentry.fifthbyte = uint8(zval >> 24)
	tentry.gen = t.generation
	t.table[idx] = tentry
	t.created.Add(1)
}

// Reset sizes the table to a fraction of total system memory and clears
// it. The slot count is the biggest power of two that fits, floored at
// 2^24 so the five stored key bytes plus the slot index always
// reconstruct the full hash.
func (t *TranspositionTable) Reset(fractionOfMemory float64) {
	totalMem := memory.TotalMemory()
	desiredNElems := fractionOfMemory * (float64(totalMem) / float64(entrySize))
	t.resetToElems(desiredNElems, totalMem)
}

// ResetToMegabytes sizes the table from an explicit memory budget, for
// protocol options that are expressed in MB.
func (t *TranspositionTable) ResetToMegabytes(mb int) {
	desiredNElems := float64(mb) * (1 << 20) / float64(entrySize)
	t.resetToElems(desiredNElems, memory.TotalMemory())
}

func (t *TranspositionTable) resetToElems(desiredNElems float64, totalMem uint64) {
	if t.TableLock == nil {
		t.TableLock = &FakeLock{}
	}
	t.Lock()
	defer t.Unlock()
	// round down to a power of two.
	t.sizePowerOf2 = int(math.Log2(desiredNElems))
	// Never go below 2^24 slots; with fewer, the five stored bytes plus
	// the slot index no longer cover the whole hash.
	if t.sizePowerOf2 < 24 {
		t.sizePowerOf2 = 24
	}

	numElems := 1 << t.sizePowerOf2
	t.sizeMask = uint64(numElems - 1)
	reset := false
	if t.table != nil && len(t.table) == numElems {
		reset = true
		clear(t.table)
	} else {
		t.table = make([]TableEntry, numElems)
	}

	log.Info().Int("num-elems", numElems).
		Float64("desired-num-elems", desiredNElems).
		Int("estimated-total-memory-bytes", numElems*entrySize).
		Uint64("total-system-memory-bytes", totalMem).
		Bool("reset", reset).
		Msg("transposition-table-size")

	t.generation = 0
	t.created.Store(0)
	t.lookups.Store(0)
	t.hits.Store(0)
	t.t2collisions.Store(0)
}

func (t *TranspositionTable) allocated() bool {
	return len(t.table) > 0
}
