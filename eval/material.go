package eval

import (
	"math/bits"

	"github.com/dylhunn/dragontoothmg"

	"github.com/luzhin-io/luzhin/game"
)

// Material counts piece values only. It is the baseline opponent in
// self-play matches and keeps search tests independent of table
// tuning.
type Material struct{}

func (Material) Evaluate(pos *game.Position) int16 {
	b := pos.Board()
	score := materialFor(&b.White) - materialFor(&b.Black)
	if !b.Wtomove {
		score = -score
	}
	return int16(score)
}

func materialFor(bb *dragontoothmg.Bitboards) int32 {
	var s int32
	s += int32(bits.OnesCount64(bb.Pawns)) * int32(Pawn)
	s += int32(bits.OnesCount64(bb.Knights)) * int32(Knight)
	s += int32(bits.OnesCount64(bb.Bishops)) * int32(Bishop)
	s += int32(bits.OnesCount64(bb.Rooks)) * int32(Rook)
	s += int32(bits.OnesCount64(bb.Queens)) * int32(Queen)
	return s
}
