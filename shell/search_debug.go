package shell

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/luzhin-io/luzhin/eval"
	"github.com/luzhin-io/luzhin/pgnio"
)

// Search-debug mode walks the last principal variation move by move,
// showing the board and the static scores along the line the solver
// expected. It reads the finished search's snapshot, so entering it
// mid-search is refused.

func (sc *ShellController) enterSearchDebug() error {
	if sc.solving() {
		return errBusySolving
	}
	sc.mu.Lock()
	lastResult, root := sc.lastResult, sc.pvRoot
	sc.mu.Unlock()
	if lastResult == nil || root == nil {
		return errNothingSearched
	}
	sc.pvPos = root.Clone()
	sc.pvIndex = 0
	return nil
}

func (sc *ShellController) searchDebugModeSwitch(line string, sig chan os.Signal) (*Response, error) {
	cmd, err := extractFields(line)
	if err != nil {
		return nil, err
	}
	switch cmd.cmd {
	case "l", "list":
		return sc.pvList()
	case "s", "step":
		return sc.pvStep(cmd.args)
	case "u", "up":
		return sc.pvUp()
	case "i", "info":
		return msg(sc.pvInfo()), nil
	case "mode":
		return sc.setMode(cmd)
	case "help":
		return sc.help(cmd)
	case "exit", "quit", "bye":
		sig <- syscall.SIGINT
		return nil, errQuitting
	default:
		return nil, errors.New("command " + cmd.cmd + " not recognized in searchdebug mode; see `help`")
	}
}

// pvList prints the whole line with a marker at the walker's ply.
func (sc *ShellController) pvList() (*Response, error) {
	sc.mu.Lock()
	lastResult, root := sc.lastResult, sc.pvRoot
	sc.mu.Unlock()
	var sb strings.Builder
	fmt.Fprintf(&sb, "principal variation, depth %v, score %v:\n",
		lastResult.Depth, scoreString(lastResult.Score))
	walker := root.Clone()
	for i, m := range lastResult.PV {
		san, err := pgnio.SAN(walker, m)
		if err != nil {
			return nil, fmt.Errorf("pv move %v (%v): %w", i+1, m.String(), err)
		}
		marker := "  "
		if i == sc.pvIndex {
			marker = "> "
		}
		fmt.Fprintf(&sb, "%v%3d. %-8v%v\n", marker, i+1, san, m.String())
		walker.MakeMove(m)
	}
	if sc.pvIndex >= len(lastResult.PV) {
		sb.WriteString("(at the end of the line)\n")
	}
	return msg(strings.TrimRight(sb.String(), "\n")), nil
}

// pvStep plays the next move of the line, or the next n of them.
func (sc *ShellController) pvStep(args []string) (*Response, error) {
	steps := 1
	if len(args) > 0 {
		var err error
		if steps, err = strconv.Atoi(args[0]); err != nil {
			return nil, err
		}
		if steps < 1 {
			return nil, errors.New("step count must be positive")
		}
	}
	sc.mu.Lock()
	lastResult := sc.lastResult
	sc.mu.Unlock()
	for ; steps > 0 && sc.pvIndex < len(lastResult.PV); steps-- {
		sc.pvPos.MakeMove(lastResult.PV[sc.pvIndex])
		sc.pvIndex++
	}
	return msg(sc.pvInfo()), nil
}

// pvUp retreats one ply by replaying the line from the root.
func (sc *ShellController) pvUp() (*Response, error) {
	if sc.pvIndex == 0 {
		return nil, errors.New("already at the search root")
	}
	sc.mu.Lock()
	lastResult, root := sc.lastResult, sc.pvRoot
	sc.mu.Unlock()
	pos := root.Clone()
	sc.pvIndex--
	for _, m := range lastResult.PV[:sc.pvIndex] {
		pos.MakeMove(m)
	}
	sc.pvPos = pos
	return msg(sc.pvInfo()), nil
}

func (sc *ShellController) pvInfo() string {
	sc.mu.Lock()
	lastResult := sc.lastResult
	sc.mu.Unlock()
	var sb strings.Builder
	sb.WriteString(sc.pvPos.Display())
	fmt.Fprintf(&sb, "fen: %v\n", sc.pvPos.Fen())
	fmt.Fprintf(&sb, "ply %v of %v", sc.pvIndex, len(lastResult.PV))
	fmt.Fprintf(&sb, "\nstatic: psqt %v, material %v",
		scoreString(eval.ForName("psqt").Evaluate(sc.pvPos)),
		scoreString(eval.ForName("material").Evaluate(sc.pvPos)))
	return sb.String()
}
