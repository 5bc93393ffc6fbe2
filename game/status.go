package game

// Status is the terminal state of a position. NoLegalMoves is not an
// error; it resolves to Checkmate or Stalemate by check status.
type Status int

const (
	Playing Status = iota
	// Checkmate means the side to move is mated (it is the loser).
	Checkmate
	Stalemate
	DrawRepetition
	DrawFiftyMove
	DrawInsufficient
)

func (s Status) String() string {
	switch s {
	case Playing:
		return "playing"
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	case DrawRepetition:
		return "draw-repetition"
	case DrawFiftyMove:
		return "draw-fifty-move"
	case DrawInsufficient:
		return "draw-insufficient-material"
	}
	return "unknown"
}

func (s Status) GameOver() bool {
	return s != Playing
}

func (s Status) Draw() bool {
	switch s {
	case Stalemate, DrawRepetition, DrawFiftyMove, DrawInsufficient:
		return true
	}
	return false
}

// Result renders the PGN outcome token for a finished game, from the
// perspective of the side to move in the final position.
func (s Status) Result(whiteToMove bool) string {
	switch {
	case s == Playing:
		return "*"
	case s == Checkmate && whiteToMove:
		return "0-1"
	case s == Checkmate:
		return "1-0"
	default:
		return "1/2-1/2"
	}
}

// Status adjudicates the current position. Mate and stalemate take
// precedence; a move that delivers mate on the hundredth half-move
// still ends the game as mate.
func (p *Position) Status() Status {
	if len(p.LegalMoves()) == 0 {
		if p.InCheck() {
			return Checkmate
		}
		return Stalemate
	}
	switch {
	case p.ThreefoldRepetition():
		return DrawRepetition
	case p.FiftyMoveDraw():
		return DrawFiftyMove
	case p.InsufficientMaterial():
		return DrawInsufficient
	}
	return Playing
}
