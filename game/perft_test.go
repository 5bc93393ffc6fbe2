package game

import (
	"testing"

	"github.com/matryer/is"
)

func TestPerftStartpos(t *testing.T) {
	is := is.New(t)
	pos := NewPosition()
	is.Equal(pos.Perft(1), uint64(20))
	is.Equal(pos.Perft(2), uint64(400))
	is.Equal(pos.Perft(3), uint64(8902))
}

// Kiwipete, the classic castling/en-passant/promotion stress position.
func TestPerftKiwipete(t *testing.T) {
	is := is.New(t)
	pos := mustPosition("r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1")
	is.Equal(pos.Perft(1), uint64(48))
	is.Equal(pos.Perft(2), uint64(2039))
}

func TestPerftDivideSumsToPerft(t *testing.T) {
	is := is.New(t)
	pos := NewPosition()
	div := pos.PerftDivide(2)
	is.Equal(len(div), 20)
	var total uint64
	for _, n := range div {
		total += n
	}
	is.Equal(total, pos.Perft(2))
}
