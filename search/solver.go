package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dylhunn/dragontoothmg"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/luzhin-io/luzhin/eval"
	"github.com/luzhin-io/luzhin/game"
)

// thanks Wikipedia:
/*
function negamax(node, depth, α, β, color) is
    if depth = 0 or node is a terminal node then
        return color × the heuristic value of node

    childNodes := generateMoves(node)
    childNodes := orderMoves(childNodes)
    value := −∞
    foreach child in childNodes do
        value := max(value, −negamax(child, depth − 1, −β, −α, −color))
        α := max(α, value)
        if α ≥ β then
            break (* cut-off *)
    return value
(* Initial call for Player A's root node *)
negamax(rootNode, depth, −∞, +∞, 1)
**/

const (
	// HugeNumber initializes alpha-beta windows; no reachable score
	// equals it, so the first searched child always raises bestValue.
	HugeNumber = int16(32767)
	// CheckmateScore anchors mate scores. A side mated at ply p from the
	// root scores p-CheckmateScore, so shorter mates score higher for
	// the winner.
	CheckmateScore = int16(30000)
	DrawScore      = int16(0)
	// MaxVariantLength bounds the search depth. It sizes the killer
	// table, and depth must also fit in the six depth bits of a table
	// entry.
	MaxVariantLength = 64
	MaxKillers       = 2
	// MateThreshold divides mate scores from evaluator output.
	// Evaluators stay within ±eval.Ceiling, far below it.
	MateThreshold = CheckmateScore - 2*MaxVariantLength
)

// The search polls its limits every terminationCheckInterval nodes;
// cancellation latency is bounded by that interval, not instantaneous.
// Must be a power of two.
const terminationCheckInterval = 2048

// DefaultTTFraction is how much of system memory the transposition
// table takes when the caller doesn't size it explicitly.
const DefaultTTFraction = 0.25

var (
	// ErrBadConfig rejects a search config with no limit at all.
	ErrBadConfig = errors.New("search config needs a depth, time, or node limit, or the infinite flag")
	// errStopped unwinds the recursion on cooperative termination. It
	// never escapes Solve.
	errStopped = errors.New("search stopped")
)

// Credit: MIT-licensed https://github.com/algerbrex/blunder/blob/main/engine/search.go
type PVLine struct {
	Moves []dragontoothmg.Move
	score int16
}

// Clear the principal variation line.
func (pvLine *PVLine) Clear() {
	pvLine.Moves = nil
}

// Update the principal variation line with a new best move,
// and a new line of best play after the best move.
func (pvLine *PVLine) Update(m dragontoothmg.Move, newPVLine PVLine, score int16) {
	pvLine.Clear()
	pvLine.Moves = append(pvLine.Moves, m)
	pvLine.Moves = append(pvLine.Moves, newPVLine.Moves...)
	pvLine.score = score
}

// Get the best move from the principal variation line.
func (pvLine *PVLine) GetPVMove() dragontoothmg.Move {
	return pvLine.Moves[0]
}

func (pvLine PVLine) NumMoves() int {
	return len(pvLine.Moves)
}

// String renders the line in coordinate notation, root move first.
func (pvLine PVLine) String() string {
	return strings.Join(lo.Map(pvLine.Moves, func(m dragontoothmg.Move, _ int) string {
		return m.String()
	}), " ")
}

// SearchConfig bounds one Solve call; it is immutable for the call's
// duration. At least one limit must be set unless Infinite is; when
// several are set, the first one hit terminates the search.
type SearchConfig struct {
	MaxDepth  int
	MaxTimeMs int64
	MaxNodes  uint64
	Infinite  bool
}

func (cfg SearchConfig) validate() error {
	if cfg.Infinite {
		return nil
	}
	if cfg.MaxDepth <= 0 && cfg.MaxTimeMs <= 0 && cfg.MaxNodes == 0 {
		return ErrBadConfig
	}
	return nil
}

// SearchResult reports one fully completed deepening round. Solve
// returns the final one; earlier instances stream progress. A terminal
// root position yields a result whose Status is the terminal state and
// whose Move is zero.
type SearchResult struct {
	Move    dragontoothmg.Move
	Score   int16
	PV      []dragontoothmg.Move
	Nodes   uint64
	Depth   int
	Elapsed time.Duration
	Status  game.Status
}

// Solver searches a position for the best move: fail-soft alpha-beta
// negamax with quiescence, a transposition table, killer/history move
// ordering, and iterative deepening on top. One Solver searches on one
// goroutine; its tables have exactly one writer.
type Solver struct {
	pos  *game.Position
	eval eval.Evaluator

	rootMoves []rankedMove

	iterativeDeepeningOptim bool
	transpositionTableOptim bool
	killerPlayOptim         bool
	quiescenceOptim         bool

	principalVariation PVLine
	bestPVValue        int16

	killers [MaxVariantLength][MaxKillers]dragontoothmg.Move
	history [2][64][64]int32

	ttable     *TranspositionTable
	ttFraction float64

	nodes     atomic.Uint64
	nodeLimit uint64

	lastResult SearchResult
	haveResult bool
	resultChan chan<- SearchResult

	logStream io.Writer
}

// max returns the larger of x or y.
func max(x, y int16) int16 {
	if x < y {
		return y
	}
	return x
}

func min(x, y int16) int16 {
	if x < y {
		return x
	}
	return y
}

// Init initializes the solver. A nil evaluator defaults to the
// piece-square-table evaluator.
func (s *Solver) Init(pos *game.Position, evaluator eval.Evaluator) error {
	s.pos = pos
	s.eval = evaluator
	if s.eval == nil {
		s.eval = eval.PSQT{}
	}
	s.iterativeDeepeningOptim = true
	s.transpositionTableOptim = true
	s.killerPlayOptim = true
	s.quiescenceOptim = true
	s.ttFraction = DefaultTTFraction
	s.ttable = &TranspositionTable{}
	s.ttable.SetSingleThreadedMode()
	return nil
}

// IsMateScore reports whether a score encodes a forced mate rather than
// evaluator output.
func IsMateScore(score int16) bool {
	return score >= MateThreshold || score <= -MateThreshold
}

// MovesToMate converts a mate score to full moves until mate, negative
// when the side to move is the one getting mated.
func MovesToMate(score int16) int {
	if score > 0 {
		return int(CheckmateScore-score+1) / 2
	}
	return -int(CheckmateScore+score+1) / 2
}

// scoreToTable converts a mate score from distance-from-root to
// distance-from-node before storing, so the entry stays correct when
// the same position turns up at a different ply.
func scoreToTable(score int16, ply int) int16 {
	if score >= MateThreshold {
		return score + int16(ply)
	}
	if score <= -MateThreshold {
		return score - int16(ply)
	}
	return score
}

// scoreFromTable is the inverse adjustment, applied at probe time.
func scoreFromTable(score int16, ply int) int16 {
	if score >= MateThreshold {
		return score - int16(ply)
	}
	if score <= -MateThreshold {
		return score + int16(ply)
	}
	return score
}

func (s *Solver) checkLimits(ctx context.Context) error {
	if ctx.Err() != nil {
		return errStopped
	}
	if s.nodeLimit > 0 && s.nodes.Load() >= s.nodeLimit {
		return errStopped
	}
	return nil
}

func (s *Solver) negamax(ctx context.Context, depth, ply int, α, β int16, pv *PVLine) (int16, error) {
	if n := s.nodes.Add(1); n&(terminationCheckInterval-1) == 0 {
		if err := s.checkLimits(ctx); err != nil {
			return 0, err
		}
	}

	// Draw rules come before the table probe: the hash knows nothing
	// about the path that led here, so repetition draws must never come
	// out of the table.
	if ply > 0 && (s.pos.Repeated() || s.pos.FiftyMoveDraw() || s.pos.InsufficientMaterial()) {
		return DrawScore, nil
	}

	// A table cutoff below returns before the PV is filled in, so the
	// line can come up short even when the value is right.
	alphaOrig := α
	nodeKey := s.pos.Hash()
	var ttMove dragontoothmg.Move

	if s.transpositionTableOptim && ply > 0 {
		ttEntry := s.ttable.lookup(nodeKey)
		if ttEntry.valid() {
			// search hash move first, whatever the entry's depth.
			ttMove = ttEntry.move()
			if ttEntry.depth() >= uint8(depth) {
				score := scoreFromTable(ttEntry.score, ply)
				flag := ttEntry.flag()
				if flag == TTExact {
					return score, nil
				} else if flag == TTLower {
					α = max(α, score)
				} else if flag == TTUpper {
					β = min(β, score)
				}
				if α >= β {
					return score, nil
				}
			}
		}
	}

	if depth == 0 {
		if !s.quiescenceOptim {
			return s.eval.Evaluate(s.pos), nil
		}
		return s.quiescence(ctx, α, β)
	}

	var children []rankedMove
	if ply == 0 {
		// The root list persists across deepening rounds; Solve re-sorts
		// it by searched values in between.
		children = s.rootMoves
	} else {
		moves := s.pos.LegalMoves()
		if len(moves) == 0 {
			if s.pos.InCheck() {
				// mated here; encode the distance from the root.
				return int16(ply) - CheckmateScore, nil
			}
			return DrawScore, nil
		}
		children = s.assignEstimates(moves, ply, ttMove)
	}

	childPV := PVLine{}
	bestValue := -HugeNumber
	var bestMove dragontoothmg.Move
	stm := s.stmIndex()
	indent := 2 * ply
	if s.logStream != nil {
		fmt.Fprintf(s.logStream, "  %vplays:\n", strings.Repeat(" ", indent))
	}
	for i := range children {
		child := children[i].move
		if s.logStream != nil {
			fmt.Fprintf(s.logStream, "  %v- play: %v\n", strings.Repeat(" ", indent), child.String())
		}
		undo := s.pos.MakeMove(child)
		value, err := s.negamax(ctx, depth-1, ply+1, -β, -α, &childPV)
		undo()
		if err != nil {
			return value, err
		}
		if s.logStream != nil {
			fmt.Fprintf(s.logStream, "  %v  value: %v\n", strings.Repeat(" ", indent), value)
		}
		if -value > bestValue {
			bestValue = -value
			bestMove = child
			pv.Update(child, childPV, bestValue)
		}
		if ply == 0 {
			// feed searched values back into the root ordering for the
			// next deepening round.
			children[i].estimate = int32(-value)
		}
		α = max(α, bestValue)
		if bestValue >= β {
			if s.killerPlayOptim && s.pos.IsQuiet(child) {
				s.storeKiller(ply, child)
				s.updateHistory(stm, child, depth)
			}
			break // beta cut-off
		}
		childPV.Clear() // clear the child node's pv for the next child node
	}

	if s.transpositionTableOptim {
		var flag uint8
		if bestValue <= alphaOrig {
			flag = TTUpper
		} else if bestValue >= β {
			flag = TTLower
		} else {
			flag = TTExact
		}
		entryToStore := TableEntry{
			score: scoreToTable(bestValue, ply),
			play:  bestMove,
		}
		entryToStore.flagAndDepth = flag<<6 + uint8(depth)
		s.ttable.store(nodeKey, entryToStore)
	}
	return bestValue, nil
}

// quiescence extends the search past the depth horizon through captures
// and promotions until the position goes quiet, so the static
// evaluation is never taken in the middle of an exchange.
func (s *Solver) quiescence(ctx context.Context, α, β int16) (int16, error) {
	if n := s.nodes.Add(1); n&(terminationCheckInterval-1) == 0 {
		if err := s.checkLimits(ctx); err != nil {
			return 0, err
		}
	}
	// Stand pat: the side to move can usually do at least as well as
	// declining every tactical continuation.
	standPat := s.eval.Evaluate(s.pos)
	if standPat >= β {
		return standPat, nil
	}
	bestValue := standPat
	α = max(α, standPat)
	for _, rm := range s.tacticalMoves() {
		undo := s.pos.MakeMove(rm.move)
		value, err := s.quiescence(ctx, -β, -α)
		undo()
		if err != nil {
			return value, err
		}
		if -value > bestValue {
			bestValue = -value
		}
		α = max(α, bestValue)
		if bestValue >= β {
			break // beta cut-off
		}
	}
	return bestValue, nil
}

// iterativelyDeepen runs full-window searches of increasing depth,
// re-sorting the root moves by searched values in between. Every
// completed round records one SearchResult; an interrupted round is
// discarded and the previous one stands.
func (s *Solver) iterativelyDeepen(ctx context.Context, plies int, tstart time.Time) error {
	α := -HugeNumber
	β := HugeNumber

	// Generate and order the first layer of moves.
	s.rootMoves = s.assignEstimates(s.pos.LegalMoves(), 0, 0)

	start := 1
	if !s.iterativeDeepeningOptim {
		start = plies
	}

	for p := start; p <= plies; p++ {
		log.Debug().Int("plies", p).Msg("deepening-iteratively")
		if s.logStream != nil {
			fmt.Fprintf(s.logStream, "- ply: %d\n", p)
		}
		pv := PVLine{}
		val, err := s.negamax(ctx, p, 0, α, β, &pv)
		if err != nil {
			return err
		}
		// Sort the top layer of moves by value for the next time around.
		sortRanked(s.rootMoves)
		s.principalVariation = pv
		s.bestPVValue = val

		result := SearchResult{
			Move:    pv.GetPVMove(),
			Score:   val,
			PV:      append([]dragontoothmg.Move(nil), pv.Moves...),
			Nodes:   s.nodes.Load(),
			Depth:   p,
			Elapsed: time.Since(tstart),
			Status:  game.Playing,
		}
		s.lastResult = result
		s.haveResult = true
		if s.resultChan != nil {
			select {
			case s.resultChan <- result:
			default:
			}
		}
		log.Debug().Int16("score", val).Int("ply", p).Str("pv", pv.String()).Msg("best-val")

		if err := s.checkLimits(ctx); err != nil {
			// budget ran out right at a round boundary; the round that
			// just finished still counts.
			return err
		}
	}
	return nil
}

// Solve picks the best move for the current position within the
// config's budget. It returns the result of the last fully completed
// deepening round; a round interrupted by the clock, the node budget,
// or context cancellation is discarded, never returned as-is. A
// terminal root position (mate, stalemate, dead draw) returns a result
// carrying that status instead of an error.
func (s *Solver) Solve(ctx context.Context, cfg SearchConfig) (SearchResult, error) {
	if s.pos == nil {
		return SearchResult{}, errors.New("solver has no position")
	}
	if status := s.pos.Status(); status != game.Playing {
		res := SearchResult{Status: status}
		if status == game.Checkmate {
			res.Score = -CheckmateScore
		}
		return res, nil
	}
	if err := cfg.validate(); err != nil {
		return SearchResult{}, err
	}

	plies := cfg.MaxDepth
	if cfg.Infinite || plies <= 0 || plies > MaxVariantLength-1 {
		plies = MaxVariantLength - 1
	}
	log.Debug().Int("plies", plies).Msg("alphabeta-solve-config")

	searchCtx := ctx
	if cfg.MaxTimeMs > 0 && !cfg.Infinite {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.MaxTimeMs)*time.Millisecond)
		defer cancel()
	}
	s.nodeLimit = cfg.MaxNodes

	tstart := time.Now()
	s.nodes.Store(0)
	s.ClearKillers()
	s.ageHistory(2)
	s.haveResult = false
	s.lastResult = SearchResult{}
	s.principalVariation.Clear()

	if s.transpositionTableOptim {
		if !s.ttable.allocated() {
			s.ttable.Reset(s.ttFraction)
		}
		s.ttable.nextGeneration()
	}

	g := &errgroup.Group{}
	done := make(chan bool)

	g.Go(func() error {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		var lastNodes uint64
		for {
			select {
			case <-done:
				return nil
			case <-ticker.C:
				nodes := s.nodes.Load()
				log.Debug().Uint64("nps", nodes-lastNodes).Msg("nodes-per-second")
				lastNodes = nodes
			}
		}
	})

	g.Go(func() error {
		err := s.iterativelyDeepen(searchCtx, plies, tstart)
		done <- true
		return err
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, errStopped) &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return SearchResult{}, err
	}

	if !s.haveResult {
		// Stopped before even the depth-1 round finished. Fall back to
		// the best-ordered root move so the caller still gets a legal
		// move to play.
		s.lastResult = SearchResult{
			Move:    s.rootMoves[0].move,
			PV:      []dragontoothmg.Move{s.rootMoves[0].move},
			Nodes:   s.nodes.Load(),
			Elapsed: time.Since(tstart),
			Status:  game.Playing,
		}
	}

	log.Debug().
		Uint64("ttable-created", s.ttable.created.Load()).
		Uint64("ttable-lookups", s.ttable.lookups.Load()).
		Uint64("ttable-hits", s.ttable.hits.Load()).
		Uint64("ttable-t2collisions", s.ttable.t2collisions.Load()).
		Float64("time-elapsed-sec", time.Since(tstart).Seconds()).
		Msg("solve-returning")

	return s.lastResult, nil
}

func (s *Solver) SetPosition(pos *game.Position) {
	s.pos = pos
}

func (s *Solver) Position() *game.Position {
	return s.pos
}

// SetEvaluator swaps the leaf evaluator. Table entries scored by the
// old evaluator stay around; reset the transposition table if that
// matters.
func (s *Solver) SetEvaluator(ev eval.Evaluator) {
	s.eval = ev
}

func (s *Solver) SetIterativeDeepening(id bool) {
	s.iterativeDeepeningOptim = id
}

func (s *Solver) SetKillerPlayOptim(k bool) {
	s.killerPlayOptim = k
}

func (s *Solver) SetTranspositionTableOptim(tt bool) {
	s.transpositionTableOptim = tt
}

func (s *Solver) SetQuiescenceOptim(q bool) {
	s.quiescenceOptim = q
}

func (s *Solver) SetTranspositionTable(tt *TranspositionTable) {
	s.ttable = tt
}

// SetTTFraction changes how much system memory a lazily allocated
// transposition table takes.
func (s *Solver) SetTTFraction(f float64) {
	s.ttFraction = f
}

// SetResultChannel streams one SearchResult per completed depth to ch.
// Sends never block; a slow consumer misses intermediate depths but
// Solve's return value is unaffected.
func (s *Solver) SetResultChannel(ch chan<- SearchResult) {
	s.resultChan = ch
}

func (s *Solver) SetLogStream(l io.Writer) {
	s.logStream = l
}

// Nodes reports the node count of the current or last search.
func (s *Solver) Nodes() uint64 {
	return s.nodes.Load()
}

// PrincipalVariation returns the best line of the last completed round.
func (s *Solver) PrincipalVariation() PVLine {
	return s.principalVariation
}

// BestScore returns the score of the last completed round.
func (s *Solver) BestScore() int16 {
	return s.bestPVValue
}
