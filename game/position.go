package game

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/dylhunn/dragontoothmg"
)

// StartposFEN is the standard chess starting position.
const StartposFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// NoPiece is the zero Piece value; dragontoothmg uses it for "no promotion".
const NoPiece = dragontoothmg.Piece(0)

var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrIllegalMove     = errors.New("move is not legal in this position")
)

// Position wraps a dragontoothmg board together with the hash history
// needed for repetition detection. The board library maintains its
// 64-bit zobrist hash incrementally across Apply/unapply; the hash
// covers side to move, castling rights, and the en-passant target, so
// two positions differing in any game-relevant attribute hash
// differently with high probability.
type Position struct {
	board   dragontoothmg.Board
	history []uint64
}

// NewPosition returns the starting position.
func NewPosition() *Position {
	p, err := ParseFen(StartposFEN)
	if err != nil {
		// the startpos FEN is a constant; this cannot happen.
		panic(err)
	}
	return p
}

// ParseFen builds a Position from a FEN string. Errors wrap
// ErrInvalidPosition and are fatal to any search using the position.
func ParseFen(fen string) (*Position, error) {
	board, err := parseBoard(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	if bits.OnesCount64(board.White.Kings) != 1 || bits.OnesCount64(board.Black.Kings) != 1 {
		return nil, fmt.Errorf("%w: each side must have exactly one king", ErrInvalidPosition)
	}
	p := &Position{board: board}
	p.history = append(p.history, p.board.Hash())
	return p, nil
}

// parseBoard adapts dragontoothmg.ParseFen, which returns no error and
// panics on malformed input, to the (Board, error) form the contract
// above requires.
func parseBoard(fen string) (board dragontoothmg.Board, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed fen %q: %v", fen, r)
		}
	}()
	return dragontoothmg.ParseFen(fen), nil
}

// Board exposes the underlying board. Callers must not mutate it
// directly; use MakeMove so the repetition history stays consistent.
func (p *Position) Board() *dragontoothmg.Board {
	return &p.board
}

// Hash returns the position's 64-bit zobrist hash.
func (p *Position) Hash() uint64 {
	return p.board.Hash()
}

// Fen serializes the position.
func (p *Position) Fen() string {
	return p.board.ToFen()
}

func (p *Position) WhiteToMove() bool {
	return p.board.Wtomove
}

// HalfmoveClock is the number of half-moves since the last capture or
// pawn move.
func (p *Position) HalfmoveClock() int {
	return int(p.board.Halfmoveclock)
}

func (p *Position) FullmoveNumber() int {
	return int(p.board.Fullmoveno)
}

// LegalMoves enumerates all legal moves for the side to move.
func (p *Position) LegalMoves() []dragontoothmg.Move {
	return p.board.GenerateLegalMoves()
}

// InCheck reports whether the side to move is in check.
func (p *Position) InCheck() bool {
	return p.board.OurKingInCheck()
}

// MakeMove applies a move and returns an undo function. The pair is
// the reversible make/unmake used during recursion; the new position's
// hash is pushed onto the repetition history and popped by the undo.
func (p *Position) MakeMove(m dragontoothmg.Move) func() {
	unapply := p.board.Apply(m)
	p.history = append(p.history, p.board.Hash())
	return func() {
		p.history = p.history[:len(p.history)-1]
		unapply()
	}
}

// MoveFromUCI resolves coordinate notation ("e2e4", "a7a8q") against
// the legal moves of the current position.
func (p *Position) MoveFromUCI(s string) (dragontoothmg.Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range p.LegalMoves() {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrIllegalMove, s)
}

// Clone deep-copies the position, including its repetition history.
func (p *Position) Clone() *Position {
	return &Position{
		board:   p.board,
		history: append([]uint64(nil), p.history...),
	}
}

// RepetitionCount counts how many times the current position occurred
// before in the history. The scan is bounded by the halfmove clock
// since a capture or pawn move makes earlier repeats unreachable.
func (p *Position) RepetitionCount() int {
	cur := p.history[len(p.history)-1]
	limit := len(p.history) - 1 - p.HalfmoveClock()
	if limit < 0 {
		limit = 0
	}
	count := 0
	for i := len(p.history) - 2; i >= limit; i-- {
		if p.history[i] == cur {
			count++
		}
	}
	return count
}

// Repeated reports whether the current position occurred at least once
// before. During search one prior occurrence is scored as a draw: a
// repeat that can be forced once can be forced again.
func (p *Position) Repeated() bool {
	return p.RepetitionCount() >= 1
}

// ThreefoldRepetition reports the strict game-level draw condition.
func (p *Position) ThreefoldRepetition() bool {
	return p.RepetitionCount() >= 2
}

func (p *Position) FiftyMoveDraw() bool {
	return p.HalfmoveClock() >= 100
}

// InsufficientMaterial reports positions where neither side retains
// mating material: no pawns, rooks or queens, and at most one minor
// piece per side.
func (p *Position) InsufficientMaterial() bool {
	w, b := &p.board.White, &p.board.Black
	if w.Pawns|b.Pawns|w.Rooks|b.Rooks|w.Queens|b.Queens != 0 {
		return false
	}
	wMinors := bits.OnesCount64(w.Knights | w.Bishops)
	bMinors := bits.OnesCount64(b.Knights | b.Bishops)
	return wMinors <= 1 && bMinors <= 1
}

// PieceAt returns the piece on a square and whether it is white.
// ok is false for an empty square.
func (p *Position) PieceAt(sq uint8) (piece dragontoothmg.Piece, white bool, ok bool) {
	if pc := pieceOn(&p.board.White, sq); pc != NoPiece {
		return pc, true, true
	}
	if pc := pieceOn(&p.board.Black, sq); pc != NoPiece {
		return pc, false, true
	}
	return NoPiece, false, false
}

// MovedPiece returns the piece the side to move would move.
func (p *Position) MovedPiece(m dragontoothmg.Move) dragontoothmg.Piece {
	return pieceOn(p.ours(), m.From())
}

// CaptureVictim returns the piece a move captures, or NoPiece for a
// quiet move. An en-passant capture reports a pawn victim even though
// the target square is empty.
func (p *Position) CaptureVictim(m dragontoothmg.Move) dragontoothmg.Piece {
	if v := pieceOn(p.theirs(), m.To()); v != NoPiece {
		return v
	}
	if pieceOn(p.ours(), m.From()) == dragontoothmg.Pawn && fileOf(m.From()) != fileOf(m.To()) {
		return dragontoothmg.Pawn
	}
	return NoPiece
}

// IsCapture reports whether a move captures, including en passant.
func (p *Position) IsCapture(m dragontoothmg.Move) bool {
	return p.CaptureVictim(m) != NoPiece
}

// IsQuiet reports a non-capturing, non-promoting move. Killer slots
// and the history table track quiet moves only.
func (p *Position) IsQuiet(m dragontoothmg.Move) bool {
	return !p.IsCapture(m) && m.Promote() == NoPiece
}

func (p *Position) ours() *dragontoothmg.Bitboards {
	if p.board.Wtomove {
		return &p.board.White
	}
	return &p.board.Black
}

func (p *Position) theirs() *dragontoothmg.Bitboards {
	if p.board.Wtomove {
		return &p.board.Black
	}
	return &p.board.White
}

func pieceOn(bb *dragontoothmg.Bitboards, sq uint8) dragontoothmg.Piece {
	mask := uint64(1) << sq
	switch {
	case bb.Pawns&mask != 0:
		return dragontoothmg.Pawn
	case bb.Knights&mask != 0:
		return dragontoothmg.Knight
	case bb.Bishops&mask != 0:
		return dragontoothmg.Bishop
	case bb.Rooks&mask != 0:
		return dragontoothmg.Rook
	case bb.Queens&mask != 0:
		return dragontoothmg.Queen
	case bb.Kings&mask != 0:
		return dragontoothmg.King
	}
	return NoPiece
}

func fileOf(sq uint8) uint8 {
	return sq % 8
}

func rankOf(sq uint8) uint8 {
	return sq / 8
}

var pieceLetters = map[dragontoothmg.Piece]string{
	dragontoothmg.Pawn:   "P",
	dragontoothmg.Knight: "N",
	dragontoothmg.Bishop: "B",
	dragontoothmg.Rook:   "R",
	dragontoothmg.Queen:  "Q",
	dragontoothmg.King:   "K",
}

// PieceLetter returns the English piece letter ("N", "K", ...).
func PieceLetter(pc dragontoothmg.Piece) string {
	return pieceLetters[pc]
}

// SquareName converts a square index to coordinates ("e4").
func SquareName(sq uint8) string {
	return string([]byte{'a' + fileOf(sq), '1' + rankOf(sq)})
}

// Display renders the board for the shell, rank 8 at the top.
func (p *Position) Display() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&sb, "%d ", rank+1)
		for file := 0; file <= 7; file++ {
			sq := uint8(rank*8 + file)
			pc, white, ok := p.PieceAt(sq)
			switch {
			case !ok:
				sb.WriteString(" .")
			case white:
				sb.WriteString(" " + pieceLetters[pc])
			default:
				sb.WriteString(" " + strings.ToLower(pieceLetters[pc]))
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("   a b c d e f g h\n")
	return sb.String()
}
