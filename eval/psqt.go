package eval

import (
	"math/bits"

	"github.com/dylhunn/dragontoothmg"

	"github.com/luzhin-io/luzhin/game"
)

// PSQT is a material plus piece-square-table evaluator. Tables are
// written visually, first row = rank 8, so a white piece on square sq
// indexes sq^56 (rank-flipped) and a black piece indexes sq directly.
// The king switches from the midgame to the endgame table once both
// queens have left the board.
type PSQT struct{}

func (PSQT) Evaluate(pos *game.Position) int16 {
	b := pos.Board()
	endgame := b.White.Queens|b.Black.Queens == 0

	score := sideScore(&b.White, true, endgame) - sideScore(&b.Black, false, endgame)
	if !b.Wtomove {
		score = -score
	}
	return int16(score)
}

func sideScore(bb *dragontoothmg.Bitboards, white bool, endgame bool) int32 {
	kingTable := &kingTableMid
	if endgame {
		kingTable = &kingTableEnd
	}
	var s int32
	s += tableScore(bb.Pawns, &pawnTable, Pawn, white)
	s += tableScore(bb.Knights, &knightTable, Knight, white)
	s += tableScore(bb.Bishops, &bishopTable, Bishop, white)
	s += tableScore(bb.Rooks, &rookTable, Rook, white)
	s += tableScore(bb.Queens, &queenTable, Queen, white)
	s += tableScore(bb.Kings, kingTable, 0, white)
	return s
}

func tableScore(pieces uint64, table *[64]int16, value int16, white bool) int32 {
	var s int32
	for pieces != 0 {
		sq := bits.TrailingZeros64(pieces)
		pieces &= pieces - 1
		idx := sq
		if white {
			idx = sq ^ 56
		}
		s += int32(value) + int32(table[idx])
	}
	return s
}

var pawnTable = [64]int16{
	0, 0, 0, 0, 0, 0, 0, 0,
	50, 50, 50, 50, 50, 50, 50, 50,
	10, 10, 20, 30, 30, 20, 10, 10,
	5, 5, 10, 25, 25, 10, 5, 5,
	0, 0, 0, 20, 20, 0, 0, 0,
	5, -5, -10, 0, 0, -10, -5, 5,
	5, 10, 10, -20, -20, 10, 10, 5,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var knightTable = [64]int16{
	-50, -40, -30, -30, -30, -30, -40, -50,
	-40, -20, 0, 0, 0, 0, -20, -40,
	-30, 0, 10, 15, 15, 10, 0, -30,
	-30, 5, 15, 20, 20, 15, 5, -30,
	-30, 0, 15, 20, 20, 15, 0, -30,
	-30, 5, 10, 15, 15, 10, 5, -30,
	-40, -20, 0, 5, 5, 0, -20, -40,
	-50, -40, -30, -30, -30, -30, -40, -50,
}

var bishopTable = [64]int16{
	-20, -10, -10, -10, -10, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 10, 10, 5, 0, -10,
	-10, 5, 5, 10, 10, 5, 5, -10,
	-10, 0, 10, 10, 10, 10, 0, -10,
	-10, 10, 10, 10, 10, 10, 10, -10,
	-10, 5, 0, 0, 0, 0, 5, -10,
	-20, -10, -10, -10, -10, -10, -10, -20,
}

var rookTable = [64]int16{
	0, 0, 0, 0, 0, 0, 0, 0,
	5, 10, 10, 10, 10, 10, 10, 5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	0, 0, 0, 5, 5, 0, 0, 0,
}

var queenTable = [64]int16{
	-20, -10, -10, -5, -5, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 5, 5, 5, 0, -10,
	-5, 0, 5, 5, 5, 5, 0, -5,
	0, 0, 5, 5, 5, 5, 0, -5,
	-10, 5, 5, 5, 5, 5, 0, -10,
	-10, 0, 5, 0, 0, 0, 0, -10,
	-20, -10, -10, -5, -5, -10, -10, -20,
}

var kingTableMid = [64]int16{
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-20, -30, -30, -40, -40, -30, -30, -20,
	-10, -20, -20, -20, -20, -20, -20, -10,
	20, 20, 0, 0, 0, 0, 20, 20,
	20, 30, 10, 0, 0, 10, 30, 20,
}

var kingTableEnd = [64]int16{
	-50, -40, -30, -20, -20, -30, -40, -50,
	-30, -20, -10, 0, 0, -10, -20, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -30, 0, 0, 0, 0, -30, -30,
	-50, -30, -30, -30, -30, -30, -30, -50,
}
