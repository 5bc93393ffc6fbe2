// Package automatic plays engine-versus-engine games without human
// intervention: single adjudicated games, opening suites, and full
// matches with color swaps, log streams, and archival sinks.
package automatic

import (
	"context"
	"fmt"
	"time"

	"github.com/dylhunn/dragontoothmg"
	"gopkg.in/yaml.v3"

	"github.com/luzhin-io/luzhin/eval"
	"github.com/luzhin-io/luzhin/game"
	"github.com/luzhin-io/luzhin/pgnio"
	"github.com/luzhin-io/luzhin/search"
)

const (
	// DefaultMaxPlies adjudicates a game as drawn once it drags on
	// this long without a verdict from the rules.
	DefaultMaxPlies = 400

	// PlyCapTermination marks games ended by the adjudicator rather
	// than by the rules of chess.
	PlyCapTermination = "adjudicated-ply-cap"

	defaultTTMegabytes = 256
)

// EngineSpec configures one engine taking part in automatic games.
type EngineSpec struct {
	Name        string
	Evaluator   string // eval.ForName key; empty picks the default
	Depth       int    // fixed search depth per move
	MoveTimeMs  int64  // optional per-move clock; 0 means depth only
	TTMegabytes int    // transposition table budget; 0 for the default
}

func (e EngineSpec) searchConfig() search.SearchConfig {
	return search.SearchConfig{MaxDepth: e.Depth, MaxTimeMs: e.MoveTimeMs}
}

// GameRecord is one finished adjudicated game.
type GameRecord struct {
	ID          string
	White       string
	Black       string
	Opening     string
	Result      string
	Termination string
	StartFen    string
	Moves       []dragontoothmg.Move
	PGN         string
}

// LogMove is one engine move in the structured game log.
type LogMove struct {
	Ply    int    `json:"ply" yaml:"ply"`
	Move   string `json:"move" yaml:"move"`
	Score  int16  `json:"score" yaml:"score"`
	Depth  int    `json:"depth" yaml:"depth"`
	Nodes  uint64 `json:"nodes" yaml:"nodes"`
	Millis int64  `json:"millis" yaml:"millis"`
}

// LogGame is the structured log record emitted for every game.
type LogGame struct {
	ID          string    `json:"id" yaml:"id"`
	White       string    `json:"white" yaml:"white"`
	Black       string    `json:"black" yaml:"black"`
	Opening     string    `json:"opening" yaml:"opening"`
	Result      string    `json:"result" yaml:"result"`
	Termination string    `json:"termination" yaml:"termination"`
	Plies       int       `json:"plies" yaml:"plies"`
	Moves       []LogMove `json:"moves" yaml:"moves"`
}

// GameRunner plays one pair of engines against each other. The two
// solvers and their transposition tables are built once and reused
// across games, so a runner is cheap to play many games with but must
// not be shared between goroutines.
type GameRunner struct {
	event    string
	specs    [2]EngineSpec
	solvers  [2]*search.Solver
	maxPlies int
	logchan  chan []byte
}

// NewGameRunner builds a runner for the two engines. Games decide per
// call which engine takes white. A nil logchan disables game logging.
func NewGameRunner(event string, first, second EngineSpec, maxPlies int,
	logchan chan []byte) (*GameRunner, error) {

	if maxPlies <= 0 {
		maxPlies = DefaultMaxPlies
	}
	r := &GameRunner{
		event:    event,
		specs:    [2]EngineSpec{first, second},
		maxPlies: maxPlies,
		logchan:  logchan,
	}
	for i, spec := range r.specs {
		if spec.Depth <= 0 && spec.MoveTimeMs <= 0 {
			return nil, fmt.Errorf("engine %v has neither a depth nor a move time", spec.Name)
		}
		solver := &search.Solver{}
		if err := solver.Init(game.NewPosition(), eval.ForName(spec.Evaluator)); err != nil {
			return nil, err
		}
		mb := spec.TTMegabytes
		if mb <= 0 {
			mb = defaultTTMegabytes
		}
		ttable := &search.TranspositionTable{}
		ttable.SetSingleThreadedMode()
		ttable.ResetToMegabytes(mb)
		solver.SetTranspositionTable(ttable)
		r.solvers[i] = solver
	}
	return r, nil
}

// PlayGame plays a single game from the given opening and returns its
// record. firstWhite picks which of the runner's two engines takes
// white. The context is checked between moves; a canceled game returns
// the context error rather than a partial record.
func (r *GameRunner) PlayGame(ctx context.Context, opening Opening, id string,
	firstWhite bool) (*GameRecord, error) {

	whiteIdx, blackIdx := 0, 1
	if !firstWhite {
		whiteIdx, blackIdx = 1, 0
	}

	pos := game.NewPosition()
	enc := pgnio.NewEncoder(pos)
	enc.AddTag("Event", r.event)
	enc.AddTag("Date", time.Now().Format("2006.01.02"))
	enc.AddTag("White", r.specs[whiteIdx].Name)
	enc.AddTag("Black", r.specs[blackIdx].Name)
	enc.AddTag("Opening", opening.Name)
	enc.AddTag("GameId", id)

	rec := &GameRecord{
		ID:       id,
		White:    r.specs[whiteIdx].Name,
		Black:    r.specs[blackIdx].Name,
		Opening:  opening.Name,
		StartFen: pos.Fen(),
	}
	lg := LogGame{
		ID:      id,
		White:   rec.White,
		Black:   rec.Black,
		Opening: opening.Name,
	}

	for _, uci := range opening.Moves {
		m, err := pos.MoveFromUCI(uci)
		if err != nil {
			return nil, fmt.Errorf("opening %v: %w", opening.Name, err)
		}
		enc.AddAnnotatedMove(m, "book")
		rec.Moves = append(rec.Moves, m)
		pos.MakeMove(m)
	}

	status := pos.Status()
	for status == game.Playing && len(rec.Moves) < r.maxPlies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := blackIdx
		if pos.WhiteToMove() {
			idx = whiteIdx
		}
		solver := r.solvers[idx]
		solver.SetPosition(pos)
		res, err := solver.Solve(ctx, r.specs[idx].searchConfig())
		if err != nil {
			return nil, fmt.Errorf("engine %v: %w", r.specs[idx].Name, err)
		}
		// Solve treats cancellation as a normal stop, so check the
		// context again before trusting the result.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.Move == 0 {
			return nil, fmt.Errorf("engine %v returned no move", r.specs[idx].Name)
		}
		enc.AddAnnotatedMove(res.Move, pgnio.ScoreComment(res.Score, res.Depth))
		rec.Moves = append(rec.Moves, res.Move)
		lg.Moves = append(lg.Moves, LogMove{
			Ply:    len(rec.Moves),
			Move:   res.Move.String(),
			Score:  res.Score,
			Depth:  res.Depth,
			Nodes:  res.Nodes,
			Millis: res.Elapsed.Milliseconds(),
		})
		pos.MakeMove(res.Move)
		status = pos.Status()
	}

	if status == game.Playing {
		rec.Result = "1/2-1/2"
		rec.Termination = PlyCapTermination
	} else {
		rec.Result = status.Result(pos.WhiteToMove())
		rec.Termination = status.String()
	}
	enc.SetResult(rec.Result)

	pgn, err := enc.Encode()
	if err != nil {
		return nil, err
	}
	rec.PGN = pgn

	if r.logchan != nil {
		lg.Result = rec.Result
		lg.Termination = rec.Termination
		lg.Plies = len(rec.Moves)
		out, err := yaml.Marshal([]LogGame{lg})
		if err != nil {
			return nil, err
		}
		r.logchan <- out
	}
	return rec, nil
}
