package search

import (
	"sort"

	"github.com/dylhunn/dragontoothmg"
	"github.com/samber/lo"

	"github.com/luzhin-io/luzhin/game"
)

// Ordering estimate offsets. The bands don't overlap: the hash move is
// always searched first, then captures and promotions by MVV-LVA, then
// the two killer slots, then quiet moves by their history counters.
const (
	HashMoveOffset = int32(30000)
	CaptureOffset  = int32(20000)
	Killer0Offset  = int32(18000)
	Killer1Offset  = int32(17000)
	// historyCap keeps quiet-move counters below the killer band.
	historyCap = int32(16000)
)

// rankedMove pairs a move with its ordering estimate. At the root the
// estimates are overwritten with searched values between deepening
// rounds.
type rankedMove struct {
	move     dragontoothmg.Move
	estimate int32
}

// classOf ranks piece types for MVV-LVA, cheapest first.
func classOf(pc dragontoothmg.Piece) int32 {
	switch pc {
	case dragontoothmg.Pawn:
		return 1
	case dragontoothmg.Knight:
		return 2
	case dragontoothmg.Bishop:
		return 3
	case dragontoothmg.Rook:
		return 4
	case dragontoothmg.Queen:
		return 5
	case dragontoothmg.King:
		return 6
	}
	return 0
}

func (s *Solver) estimateMove(m dragontoothmg.Move, ply int, ttMove dragontoothmg.Move) int32 {
	if ttMove != 0 && m == ttMove {
		return HashMoveOffset
	}
	victim := s.pos.CaptureVictim(m)
	promo := m.Promote()
	if victim != game.NoPiece || promo != game.NoPiece {
		estimate := CaptureOffset
		if victim != game.NoPiece {
			estimate += 10*classOf(victim) - classOf(s.pos.MovedPiece(m))
		}
		if promo != game.NoPiece {
			estimate += 10 * classOf(promo)
		}
		return estimate
	}
	if s.killerPlayOptim {
		if m == s.killers[ply][0] {
			return Killer0Offset
		}
		if m == s.killers[ply][1] {
			return Killer1Offset
		}
	}
	return s.history[s.stmIndex()][m.From()][m.To()]
}

// assignEstimates orders candidate moves to maximize the cutoff rate:
// hash move, captures by most-valuable-victim/least-valuable-attacker,
// killers recorded for this ply, then quiets by history score.
func (s *Solver) assignEstimates(moves []dragontoothmg.Move, ply int, ttMove dragontoothmg.Move) []rankedMove {
	ranked := make([]rankedMove, len(moves))
	for i, m := range moves {
		ranked[i] = rankedMove{move: m, estimate: s.estimateMove(m, ply, ttMove)}
	}
	sortRanked(ranked)
	return ranked
}

func sortRanked(ranked []rankedMove) {
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].estimate > ranked[j].estimate
	})
}

// tacticalMoves returns the captures and promotions of the current
// position, MVV-LVA ordered. Quiescence searches only these.
func (s *Solver) tacticalMoves() []rankedMove {
	moves := lo.Filter(s.pos.LegalMoves(), func(m dragontoothmg.Move, _ int) bool {
		return s.pos.IsCapture(m) || m.Promote() != game.NoPiece
	})
	ranked := make([]rankedMove, len(moves))
	for i, m := range moves {
		ranked[i] = rankedMove{move: m, estimate: s.estimateMove(m, 0, 0)}
	}
	sortRanked(ranked)
	return ranked
}

// storeKiller records a quiet move that caused a beta cutoff at this
// ply. Slot 0 holds the most recent distinct killer.
func (s *Solver) storeKiller(ply int, m dragontoothmg.Move) {
	if s.killers[ply][0] != m {
		s.killers[ply][1] = s.killers[ply][0]
		s.killers[ply][0] = m
	}
}

// ClearKillers resets the killer move table.
func (s *Solver) ClearKillers() {
	for ply := 0; ply < MaxVariantLength; ply++ {
		s.killers[ply][0] = 0
		s.killers[ply][1] = 0
	}
}

// updateHistory credits a quiet cutoff move with depth squared, so
// cutoffs found far from the horizon weigh more. When any counter
// crosses the cap the whole table is halved, which keeps quiet
// estimates below the killer band and lets stale counters fade.
func (s *Solver) updateHistory(side int, m dragontoothmg.Move, depth int) {
	v := s.history[side][m.From()][m.To()] + int32(depth*depth)
	s.history[side][m.From()][m.To()] = v
	if v > historyCap {
		s.ageHistory(2)
	}
}

func (s *Solver) ageHistory(divisor int32) {
	for side := range s.history {
		for from := range s.history[side] {
			for to := range s.history[side][from] {
				s.history[side][from][to] /= divisor
			}
		}
	}
}

func (s *Solver) stmIndex() int {
	if s.pos.WhiteToMove() {
		return 0
	}
	return 1
}
