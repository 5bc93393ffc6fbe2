package search

import (
	"testing"

	"github.com/dylhunn/dragontoothmg"
	"github.com/matryer/is"

	"github.com/luzhin-io/luzhin/game"
)

func TestAssignEstimatesPrecedence(t *testing.T) {
	is := is.New(t)
	// after 1. e4 d5 white has exactly one capture, exd5
	s := setUpSolver("rnbqkbnr/ppp1pppp/8/3p4/4P3/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 2", nil)
	pos := s.Position()

	hashMove, err := pos.MoveFromUCI("g1f3")
	is.NoErr(err)
	killer, err := pos.MoveFromUCI("b1c3")
	is.NoErr(err)
	quietCutoff, err := pos.MoveFromUCI("h2h3")
	is.NoErr(err)
	capture, err := pos.MoveFromUCI("e4d5")
	is.NoErr(err)

	s.storeKiller(5, killer)
	s.updateHistory(0, quietCutoff, 4)

	ranked := s.assignEstimates(pos.LegalMoves(), 5, hashMove)
	is.Equal(ranked[0].move, hashMove)
	is.Equal(ranked[1].move, capture)
	is.Equal(ranked[2].move, killer)
	is.Equal(ranked[3].move, quietCutoff)
}

func TestMVVLVAOrdersCaptures(t *testing.T) {
	is := is.New(t)
	// the e4 pawn can take either the queen or the rook
	s := setUpSolver("k7/8/8/3q1r2/4P3/8/8/K7 w - - 0 1", nil)

	ranked := s.assignEstimates(s.Position().LegalMoves(), 0, 0)
	is.Equal(ranked[0].move.String(), "e4d5")
	is.Equal(ranked[1].move.String(), "e4f5")
	is.True(ranked[0].estimate > ranked[1].estimate)
	is.True(ranked[1].estimate >= CaptureOffset)
}

func TestTacticalMovesArePromotionsAndCaptures(t *testing.T) {
	is := is.New(t)
	s := setUpSolver("k7/4P3/8/8/8/8/8/K7 w - - 0 1", nil)

	tactical := s.tacticalMoves()
	is.Equal(len(tactical), 4) // four promotion pieces, no captures
	is.Equal(tactical[0].move.String(), "e7e8q")
	for _, rm := range tactical {
		is.True(rm.move.Promote() != game.NoPiece)
	}
}

func TestStoreKillerShifts(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(game.StartposFEN, nil)
	pos := s.Position()

	m1, err := pos.MoveFromUCI("e2e4")
	is.NoErr(err)
	m2, err := pos.MoveFromUCI("d2d4")
	is.NoErr(err)

	s.storeKiller(3, m1)
	is.Equal(s.killers[3][0], m1)
	s.storeKiller(3, m2)
	is.Equal(s.killers[3][0], m2)
	is.Equal(s.killers[3][1], m1)
	// re-storing the current killer must not duplicate it into slot 1
	s.storeKiller(3, m2)
	is.Equal(s.killers[3][0], m2)
	is.Equal(s.killers[3][1], m1)

	s.ClearKillers()
	is.Equal(s.killers[3][0], dragontoothmg.Move(0))
	is.Equal(s.killers[3][1], dragontoothmg.Move(0))
}

func TestHistoryAging(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(game.StartposFEN, nil)
	pos := s.Position()
	m, err := pos.MoveFromUCI("b1c3")
	is.NoErr(err)

	s.updateHistory(0, m, 10)
	is.Equal(s.history[0][m.From()][m.To()], int32(100))

	// crossing the cap halves every counter
	s.history[0][m.From()][m.To()] = historyCap - 1
	s.updateHistory(0, m, 10)
	is.Equal(s.history[0][m.From()][m.To()], (historyCap-1+100)/2)

	s.ageHistory(2)
	is.Equal(s.history[0][m.From()][m.To()], (historyCap-1+100)/4)
}

func TestEstimateKeepsCapturesAheadOfKillers(t *testing.T) {
	is := is.New(t)
	s := setUpSolver("rnbqkbnr/ppp1pppp/8/3p4/4P3/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 2", nil)
	pos := s.Position()

	capture, err := pos.MoveFromUCI("e4d5")
	is.NoErr(err)
	// even if a capture somehow lands in a killer slot, it stays ranked
	// as a capture
	s.storeKiller(2, capture)
	is.True(s.estimateMove(capture, 2, 0) >= CaptureOffset)
}
