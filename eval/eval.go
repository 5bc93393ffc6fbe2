// Package eval scores chess positions. The search core is polymorphic
// over the Evaluator interface; the implementations here are content,
// not part of the search algorithm.
package eval

import (
	"github.com/dylhunn/dragontoothmg"

	"github.com/luzhin-io/luzhin/game"
)

// Evaluator returns a centipawn score from the perspective of the side
// to move. Implementations must be pure (no side effects, no state
// mutated by Evaluate) and must keep results within (-Ceiling,
// +Ceiling) so mate scores remain distinguishable from material ones.
type Evaluator interface {
	Evaluate(pos *game.Position) int16
}

// Ceiling bounds every evaluator's output magnitude.
const Ceiling = int16(20000)

// Basic piece values.
const (
	Pawn   = int16(100)
	Knight = int16(320)
	Bishop = int16(330)
	Rook   = int16(500)
	Queen  = int16(900)
	King   = int16(20000)
)

// PieceValue maps a board piece to its basic value.
func PieceValue(pc dragontoothmg.Piece) int16 {
	switch pc {
	case dragontoothmg.Pawn:
		return Pawn
	case dragontoothmg.Knight:
		return Knight
	case dragontoothmg.Bishop:
		return Bishop
	case dragontoothmg.Rook:
		return Rook
	case dragontoothmg.Queen:
		return Queen
	case dragontoothmg.King:
		return King
	}
	return 0
}

// ForName returns the evaluator selected by a config or UCI option
// string. Unknown names fall back to the piece-square evaluator.
func ForName(name string) Evaluator {
	switch name {
	case "material":
		return Material{}
	default:
		return PSQT{}
	}
}
