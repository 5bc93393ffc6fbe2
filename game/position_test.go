package game

import (
	"errors"
	"testing"

	"github.com/dylhunn/dragontoothmg"
	"github.com/matryer/is"
)

const (
	foolsMateFen = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	stalemateFen = "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
	bareKingsFen = "8/8/8/4k3/8/8/4K3/8 w - - 0 1"
	enPassantFen = "rnbqkbnr/ppp1pppp/8/3pP3/8/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 3"
)

func mustPosition(fen string) *Position {
	p, err := ParseFen(fen)
	if err != nil {
		panic(err)
	}
	return p
}

func TestParseFenInvalid(t *testing.T) {
	is := is.New(t)
	_, err := ParseFen("this is not a fen")
	is.True(err != nil)
	is.True(errors.Is(err, ErrInvalidPosition))

	// no kings on the board
	_, err = ParseFen("8/8/8/8/8/8/8/8 w - - 0 1")
	is.True(errors.Is(err, ErrInvalidPosition))
}

func TestStartposMoves(t *testing.T) {
	is := is.New(t)
	p := NewPosition()
	is.Equal(len(p.LegalMoves()), 20)
	is.True(!p.InCheck())
	is.Equal(p.Fen(), StartposFEN)
}

func TestMakeMoveUndo(t *testing.T) {
	is := is.New(t)
	p := NewPosition()
	before := p.Hash()
	fenBefore := p.Fen()

	m, err := p.MoveFromUCI("e2e4")
	is.NoErr(err)
	undo := p.MakeMove(m)
	is.True(p.Hash() != before)
	is.Equal(len(p.history), 2)

	undo()
	is.Equal(p.Hash(), before)
	is.Equal(p.Fen(), fenBefore)
	is.Equal(len(p.history), 1)
}

func TestMoveFromUCI(t *testing.T) {
	is := is.New(t)
	p := NewPosition()
	_, err := p.MoveFromUCI("e2e4")
	is.NoErr(err)

	_, err = p.MoveFromUCI("e2e5")
	is.True(errors.Is(err, ErrIllegalMove))

	promo := mustPosition("8/P7/8/8/8/8/4k3/4K3 w - - 0 1")
	m, err := promo.MoveFromUCI("a7a8q")
	is.NoErr(err)
	is.Equal(m.Promote(), dragontoothmg.Queen)
}

func TestCaptureClassification(t *testing.T) {
	is := is.New(t)

	// 1. e4 d5: exd5 is a pawn-takes-pawn capture.
	p := mustPosition("rnbqkbnr/ppp1pppp/8/3p4/4P3/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 2")
	m, err := p.MoveFromUCI("e4d5")
	is.NoErr(err)
	is.Equal(p.MovedPiece(m), dragontoothmg.Pawn)
	is.Equal(p.CaptureVictim(m), dragontoothmg.Pawn)
	is.True(p.IsCapture(m))
	is.True(!p.IsQuiet(m))

	quiet, err := p.MoveFromUCI("g1f3")
	is.NoErr(err)
	is.Equal(p.CaptureVictim(quiet), NoPiece)
	is.True(p.IsQuiet(quiet))
}

func TestEnPassantVictim(t *testing.T) {
	is := is.New(t)
	p := mustPosition(enPassantFen)
	m, err := p.MoveFromUCI("e5d6")
	is.NoErr(err)
	// the target square is empty but the move still captures a pawn
	_, _, occupied := p.PieceAt(43) // d6
	is.True(!occupied)
	is.Equal(p.CaptureVictim(m), dragontoothmg.Pawn)
	is.True(p.IsCapture(m))
}

func TestRepetitionDetection(t *testing.T) {
	is := is.New(t)
	p := NewPosition()
	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}

	for _, mv := range shuffle {
		m, err := p.MoveFromUCI(mv)
		is.NoErr(err)
		p.MakeMove(m)
	}
	is.Equal(p.RepetitionCount(), 1)
	is.True(p.Repeated())
	is.True(!p.ThreefoldRepetition())

	for _, mv := range shuffle {
		m, err := p.MoveFromUCI(mv)
		is.NoErr(err)
		p.MakeMove(m)
	}
	is.Equal(p.RepetitionCount(), 2)
	is.True(p.ThreefoldRepetition())
}

func TestInsufficientMaterial(t *testing.T) {
	is := is.New(t)
	is.True(mustPosition(bareKingsFen).InsufficientMaterial())
	is.True(mustPosition("8/8/3b4/4k3/8/8/4K3/8 w - - 0 1").InsufficientMaterial())
	is.True(!mustPosition("8/8/3q4/4k3/8/8/4K3/8 w - - 0 1").InsufficientMaterial())
	is.True(!NewPosition().InsufficientMaterial())
}

func TestClone(t *testing.T) {
	is := is.New(t)
	p := NewPosition()
	m, err := p.MoveFromUCI("d2d4")
	is.NoErr(err)
	p.MakeMove(m)

	c := p.Clone()
	is.Equal(c.Fen(), p.Fen())

	// mutating the clone leaves the original alone
	cm, err := c.MoveFromUCI("d7d5")
	is.NoErr(err)
	c.MakeMove(cm)
	is.True(c.Hash() != p.Hash())
	is.Equal(len(p.history), 2)
	is.Equal(len(c.history), 3)
}

func TestSquareHelpers(t *testing.T) {
	is := is.New(t)
	is.Equal(SquareName(0), "a1")
	is.Equal(SquareName(63), "h8")
	is.Equal(SquareName(28), "e4")

	p := NewPosition()
	pc, white, ok := p.PieceAt(4) // e1
	is.True(ok)
	is.True(white)
	is.Equal(pc, dragontoothmg.King)
}

func TestDisplay(t *testing.T) {
	is := is.New(t)
	out := NewPosition().Display()
	is.True(len(out) > 0)
	is.True(out[0] == '8')
}
