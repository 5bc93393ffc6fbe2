package pgnio

import (
	"fmt"
	"strings"

	"github.com/dylhunn/dragontoothmg"

	"github.com/luzhin-io/luzhin/game"
)

func fileChar(sq uint8) byte { return 'a' + sq%8 }
func rankChar(sq uint8) byte { return '1' + sq/8 }

func fileDistance(a, b uint8) int {
	d := int(a%8) - int(b%8)
	if d < 0 {
		d = -d
	}
	return d
}

// SAN renders a legal move in standard algebraic notation relative to
// pos, the position before the move. pos is left unchanged.
func SAN(pos *game.Position, m dragontoothmg.Move) (string, error) {
	if _, err := pos.MoveFromUCI(m.String()); err != nil {
		return "", err
	}
	piece := pos.MovedPiece(m)
	var sb strings.Builder

	switch {
	case piece == dragontoothmg.King && fileDistance(m.From(), m.To()) > 1:
		if fileChar(m.To()) == 'g' {
			sb.WriteString("O-O")
		} else {
			sb.WriteString("O-O-O")
		}
	case piece == dragontoothmg.Pawn:
		if pos.IsCapture(m) {
			sb.WriteByte(fileChar(m.From()))
			sb.WriteByte('x')
		}
		sb.WriteString(game.SquareName(m.To()))
		if m.Promote() != game.NoPiece {
			sb.WriteByte('=')
			sb.WriteString(game.PieceLetter(m.Promote()))
		}
	default:
		sb.WriteString(game.PieceLetter(piece))
		sb.WriteString(disambiguator(pos, m, piece))
		if pos.IsCapture(m) {
			sb.WriteByte('x')
		}
		sb.WriteString(game.SquareName(m.To()))
	}

	undo := pos.MakeMove(m)
	switch {
	case pos.Status() == game.Checkmate:
		sb.WriteByte('#')
	case pos.InCheck():
		sb.WriteByte('+')
	}
	undo()
	return sb.String(), nil
}

// disambiguator returns the minimal origin hint SAN requires when
// another piece of the same kind could reach the same destination:
// file if that settles it, else rank, else the full square.
func disambiguator(pos *game.Position, m dragontoothmg.Move, piece dragontoothmg.Piece) string {
	shareFile, shareRank, contested := false, false, false
	for _, other := range pos.LegalMoves() {
		if other.To() != m.To() || other.From() == m.From() {
			continue
		}
		if pos.MovedPiece(other) != piece {
			continue
		}
		contested = true
		if other.From()%8 == m.From()%8 {
			shareFile = true
		}
		if other.From()/8 == m.From()/8 {
			shareRank = true
		}
	}
	switch {
	case !contested:
		return ""
	case !shareFile:
		return string(fileChar(m.From()))
	case !shareRank:
		return string(rankChar(m.From()))
	default:
		return game.SquareName(m.From())
	}
}

// MoveFromSAN resolves a SAN token ("Nf3", "exd8=Q+", "O-O") against
// the legal moves of pos.
func MoveFromSAN(pos *game.Position, san string) (dragontoothmg.Move, error) {
	want := normalizeSAN(san)
	if want == "" {
		return 0, fmt.Errorf("%w: empty san", game.ErrIllegalMove)
	}
	for _, m := range pos.LegalMoves() {
		got, err := SAN(pos, m)
		if err != nil {
			return 0, err
		}
		if normalizeSAN(got) == want {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", game.ErrIllegalMove, san)
}

// normalizeSAN drops check marks and annotation glyphs and unifies the
// zero-style castling spelling, so "Nf3!?" and "0-0+" still resolve.
func normalizeSAN(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), "+#!?")
	s = strings.ReplaceAll(s, "0-0-0", "O-O-O")
	if s == "0-0" {
		s = "O-O"
	}
	return s
}
