package search

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dylhunn/dragontoothmg"
	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/luzhin-io/luzhin/eval"
	"github.com/luzhin-io/luzhin/game"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	os.Exit(m.Run())
}

const (
	// Italian game middlegame, quiet enough to search deep.
	italianFen = "r1bqk1nr/pppp1ppp/2n5/2b1p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 3 4"
	// The rook on h7 cuts the seventh rank; 1. Rg8# is the ladder mate.
	mateInOneFen = "k7/7R/8/8/8/8/6R1/6K1 w - - 0 1"
	// After 1. f3 e5 2. g4 black mates with 2... Qh4#.
	preFoolsMateFen = "rnbqkbnr/pppp1ppp/8/4p3/6P1/5P2/PPPPP2P/RNBQKBNR b KQkq g3 0 2"
	// King and queen against the cornered king: 1. Kg6 Kg8 2. Qb8#.
	mateInTwoFen = "7k/8/8/6K1/8/8/8/1Q6 w - - 0 1"
	// The completed fools mate; white to move is checkmated.
	matedRootFen = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	stalemateFen = "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
)

// The table is big; every solver in this package's tests shares one and
// clears it as needed.
var testTT = &TranspositionTable{}

func setUpSolver(fen string, evaluator eval.Evaluator) *Solver {
	pos, err := game.ParseFen(fen)
	if err != nil {
		panic(err)
	}
	s := new(Solver)
	err = s.Init(pos, evaluator)
	if err != nil {
		panic(err)
	}
	testTT.SetSingleThreadedMode()
	testTT.Reset(0)
	s.SetTranspositionTable(testTT)
	return s
}

func moveIsLegal(pos *game.Position, m dragontoothmg.Move) bool {
	for _, lm := range pos.LegalMoves() {
		if lm == m {
			return true
		}
	}
	return false
}

func TestSolveMateInOne(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(mateInOneFen, nil)

	res, err := s.Solve(context.Background(), SearchConfig{MaxDepth: 3})
	is.NoErr(err)
	is.Equal(res.Move.String(), "g2g8")
	is.Equal(res.Score, CheckmateScore-1)
	is.True(IsMateScore(res.Score))
	is.Equal(MovesToMate(res.Score), 1)
}

func TestSolveFoolsMate(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(preFoolsMateFen, nil)

	res, err := s.Solve(context.Background(), SearchConfig{MaxDepth: 3})
	is.NoErr(err)
	is.Equal(res.Move.String(), "d8h4")
	is.True(IsMateScore(res.Score))
	is.Equal(MovesToMate(res.Score), 1)
}

func TestSolveMateInTwo(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(mateInTwoFen, nil)

	res, err := s.Solve(context.Background(), SearchConfig{MaxDepth: 5})
	is.NoErr(err)
	is.Equal(res.Score, CheckmateScore-3)
	is.Equal(MovesToMate(res.Score), 2)
	is.Equal(res.Move.String(), "g5g6")
}

func TestSolveMatedRoot(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(matedRootFen, nil)

	res, err := s.Solve(context.Background(), SearchConfig{MaxDepth: 4})
	is.NoErr(err)
	is.Equal(res.Status, game.Checkmate)
	is.Equal(res.Score, -CheckmateScore)
	is.Equal(res.Move, dragontoothmg.Move(0))
}

func TestSolveStalemateRoot(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(stalemateFen, nil)

	res, err := s.Solve(context.Background(), SearchConfig{MaxDepth: 4})
	is.NoErr(err)
	is.Equal(res.Status, game.Stalemate)
	is.Equal(res.Score, DrawScore)
}

func TestSolveDepthOneStartpos(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(game.StartposFEN, nil)

	res, err := s.Solve(context.Background(), SearchConfig{MaxDepth: 1})
	is.NoErr(err)
	is.Equal(res.Depth, 1)
	is.True(moveIsLegal(s.Position(), res.Move))
	// twenty legal moves, each a leaf with no tactical continuations
	is.True(res.Nodes <= 20*10)
}

func TestSolveBadConfig(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(game.StartposFEN, nil)

	_, err := s.Solve(context.Background(), SearchConfig{})
	is.True(errors.Is(err, ErrBadConfig))
}

func TestSolveInvalidFenRejected(t *testing.T) {
	is := is.New(t)
	_, err := game.ParseFen("this is not a chess position")
	is.True(errors.Is(err, game.ErrInvalidPosition))
}

// A reference negamax with no pruning, no tables, and no quiescence.
// Alpha-beta must return the same root value.
func plainNegamax(pos *game.Position, depth, ply int, evaluator eval.Evaluator) int16 {
	if depth == 0 {
		return evaluator.Evaluate(pos)
	}
	moves := pos.LegalMoves()
	if len(moves) == 0 {
		if pos.InCheck() {
			return int16(ply) - CheckmateScore
		}
		return DrawScore
	}
	best := -HugeNumber
	for _, m := range moves {
		undo := pos.MakeMove(m)
		v := plainNegamax(pos, depth-1, ply+1, evaluator)
		undo()
		if -v > best {
			best = -v
		}
	}
	return best
}

func TestAlphaBetaMatchesPlainNegamax(t *testing.T) {
	is := is.New(t)

	for _, fen := range []string{italianFen, mateInOneFen, preFoolsMateFen} {
		s := setUpSolver(fen, eval.Material{})
		s.SetQuiescenceOptim(false)
		s.SetTranspositionTableOptim(false)
		s.SetIterativeDeepening(false)

		res, err := s.Solve(context.Background(), SearchConfig{MaxDepth: 3})
		is.NoErr(err)

		ref, err := game.ParseFen(fen)
		is.NoErr(err)
		is.Equal(res.Score, plainNegamax(ref, 3, 0, eval.Material{}))
	}
}

func TestSolveStopMidSearch(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(italianFen, nil)

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(100*time.Millisecond, cancel)
	defer timer.Stop()

	tstart := time.Now()
	res, err := s.Solve(ctx, SearchConfig{MaxDepth: 40})
	is.NoErr(err)
	is.True(time.Since(tstart) < 10*time.Second)
	is.True(res.Depth >= 1)
	is.True(res.Depth < 40)
	is.True(moveIsLegal(s.Position(), res.Move))
}

func TestSolveTimeBudget(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(italianFen, nil)

	tstart := time.Now()
	res, err := s.Solve(context.Background(), SearchConfig{MaxTimeMs: 150})
	is.NoErr(err)
	is.True(time.Since(tstart) < 10*time.Second)
	is.True(res.Depth >= 1)
	is.True(moveIsLegal(s.Position(), res.Move))
}

func TestSolveNodeBudget(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(italianFen, nil)

	res, err := s.Solve(context.Background(), SearchConfig{MaxNodes: 5000})
	is.NoErr(err)
	// the budget check runs every terminationCheckInterval nodes, so the
	// overshoot is bounded by one interval.
	is.True(s.Nodes() < 5000+terminationCheckInterval)
	is.True(moveIsLegal(s.Position(), res.Move))
}

func TestSolveInfiniteHonorsNodeCap(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(italianFen, nil)

	res, err := s.Solve(context.Background(), SearchConfig{Infinite: true, MaxNodes: 4000})
	is.NoErr(err)
	is.True(s.Nodes() < 4000+terminationCheckInterval)
	is.True(moveIsLegal(s.Position(), res.Move))
}

func TestSolveDeterminism(t *testing.T) {
	is := is.New(t)
	cfg := SearchConfig{MaxDepth: 4}

	first := setUpSolver(italianFen, nil)
	res1, err := first.Solve(context.Background(), cfg)
	is.NoErr(err)

	second := setUpSolver(italianFen, nil)
	res2, err := second.Solve(context.Background(), cfg)
	is.NoErr(err)

	is.Equal(res1.Move, res2.Move)
	is.Equal(res1.Score, res2.Score)
	is.Equal(res1.Nodes, res2.Nodes)
}

func TestSolveStreamsPerDepthResults(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(italianFen, nil)

	ch := make(chan SearchResult, MaxVariantLength)
	s.SetResultChannel(ch)

	final, err := s.Solve(context.Background(), SearchConfig{MaxDepth: 4})
	is.NoErr(err)
	close(ch)

	var streamed []SearchResult
	for res := range ch {
		streamed = append(streamed, res)
	}
	is.Equal(len(streamed), 4)
	for i, res := range streamed {
		is.Equal(res.Depth, i+1)
		is.True(moveIsLegal(s.Position(), res.Move))
	}
	last := streamed[len(streamed)-1]
	is.Equal(last.Move, final.Move)
	is.Equal(last.Score, final.Score)
}

func TestSolvePVIsPlayable(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(italianFen, nil)

	res, err := s.Solve(context.Background(), SearchConfig{MaxDepth: 4})
	is.NoErr(err)
	is.True(len(res.PV) >= 1)
	is.Equal(res.PV[0], res.Move)

	// every PV move must be legal when played out in order
	pos, err := game.ParseFen(italianFen)
	is.NoErr(err)
	for _, m := range res.PV {
		is.True(moveIsLegal(pos, m))
		pos.MakeMove(m)
	}
}

func TestSearchScoresRepetitionAsDraw(t *testing.T) {
	is := is.New(t)
	s := setUpSolver(game.StartposFEN, eval.Material{})

	// shuffle the knights out and back; the current position now
	// occurred once before
	pos := s.Position()
	for _, uci := range []string{"g1f3", "g8f6", "f3g1", "f6g8"} {
		m, err := pos.MoveFromUCI(uci)
		is.NoErr(err)
		pos.MakeMove(m)
	}
	is.True(pos.Repeated())

	// any non-root node that lands on a repeat scores it as a draw
	// without recursing
	pv := PVLine{}
	score, err := s.negamax(context.Background(), 4, 1, -HugeNumber, HugeNumber, &pv)
	is.NoErr(err)
	is.Equal(score, DrawScore)
}

func TestQuiescenceResolvesExchanges(t *testing.T) {
	is := is.New(t)
	// White queen hangs after QxP: with quiescence the capture is seen
	// to lose material at depth 1, without it the engine grabs the pawn.
	fen := "k3r3/4p3/8/8/8/8/4Q3/K7 w - - 0 1"

	greedy := setUpSolver(fen, eval.Material{})
	greedy.SetQuiescenceOptim(false)
	resGreedy, err := greedy.Solve(context.Background(), SearchConfig{MaxDepth: 1})
	is.NoErr(err)
	is.Equal(resGreedy.Move.String(), "e2e7")

	careful := setUpSolver(fen, eval.Material{})
	resCareful, err := careful.Solve(context.Background(), SearchConfig{MaxDepth: 1})
	is.NoErr(err)
	is.True(resCareful.Move.String() != "e2e7")
}
