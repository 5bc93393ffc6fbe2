package automatic

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"lukechampine.com/frand"

	"github.com/luzhin-io/luzhin/game"
)

// Opening is a named sequence of book moves played from the initial
// position before the engines take over, in coordinate notation.
type Opening struct {
	Name  string
	Moves []string
}

// Validate replays the opening from the initial position and fails on
// the first unplayable move.
func (o Opening) Validate() error {
	pos := game.NewPosition()
	for _, uci := range o.Moves {
		m, err := pos.MoveFromUCI(uci)
		if err != nil {
			return fmt.Errorf("opening %v: %w", o.Name, err)
		}
		pos.MakeMove(m)
	}
	return nil
}

// DefaultOpenings returns a small balanced suite covering the common
// first-move families. Two plies each keeps the engines out of book
// quickly while still varying the games.
func DefaultOpenings() []Opening {
	return []Opening{
		{Name: "kings-pawn", Moves: []string{"e2e4", "e7e5"}},
		{Name: "sicilian", Moves: []string{"e2e4", "c7c5"}},
		{Name: "french", Moves: []string{"e2e4", "e7e6"}},
		{Name: "caro-kann", Moves: []string{"e2e4", "c7c6"}},
		{Name: "queens-pawn", Moves: []string{"d2d4", "d7d5"}},
		{Name: "indian", Moves: []string{"d2d4", "g8f6"}},
		{Name: "english", Moves: []string{"c2c4", "e7e5"}},
		{Name: "reti", Moves: []string{"g1f3", "d7d5"}},
	}
}

// SaveOpenings writes a suite to a text file, one opening per line in
// the form "name: e2e4 e7e5". Lines starting with # are comments.
func SaveOpenings(openings []Opening, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create openings file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	if _, err = writer.WriteString("# name: coordinate moves from the initial position\n"); err != nil {
		return err
	}
	for _, o := range openings {
		line := o.Name + ": " + strings.Join(o.Moves, " ") + "\n"
		if _, err = writer.WriteString(line); err != nil {
			return err
		}
	}
	return nil
}

// LoadOpenings reads a suite saved by SaveOpenings. Every opening is
// validated by replay before it is accepted.
func LoadOpenings(filename string) ([]Opening, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open openings file: %w", err)
	}
	defer file.Close()

	var openings []Opening
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, moves, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("bad opening on line %d: missing colon", lineNum)
		}
		o := Opening{Name: strings.TrimSpace(name), Moves: strings.Fields(moves)}
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("bad opening on line %d: %w", lineNum, err)
		}
		openings = append(openings, o)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading openings file: %w", err)
	}
	return openings, nil
}

// shuffleOpenings returns a copy of the suite in a seed-determined
// order, so a match schedule can be replayed exactly.
func shuffleOpenings(openings []Opening, seed uint64) []Opening {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	rng := frand.NewCustom(key[:], 1024, 12)

	shuffled := make([]Opening, len(openings))
	copy(shuffled, openings)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}
