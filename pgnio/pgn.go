// Package pgnio implements a PGN game-record codec: tag pairs, SAN
// movetext with per-move engine comments, and a parser that resolves
// the movetext back into moves.
package pgnio

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/dylhunn/dragontoothmg"
	"github.com/rs/zerolog/log"

	"github.com/luzhin-io/luzhin/game"
	"github.com/luzhin-io/luzhin/search"
)

const (
	// TagRegex matches one header pair, e.g. [Event "casual match"]
	TagRegex = `^\[(?P<name>[A-Za-z0-9_]+)\s+"(?P<value>[^"]*)"\]\s*$`
	// MoveNumberRegex matches bare and attached move numbers: "12",
	// "12.", "12...", "12.e4". Castling spelled with zeros has no dot
	// after the digit, so it falls through to the SAN resolver.
	MoveNumberRegex = `^(?P<number>\d+)(?:\.+(?P<san>\S*))?$`
	// ResultRegex matches the movetext termination marker.
	ResultRegex = `^(1-0|0-1|1/2-1/2|\*)$`
	// CommentRegex matches brace comments, which may span lines.
	CommentRegex = `(?s)\{[^}]*\}`
	// NagRegex matches numeric annotation glyphs such as $14.
	NagRegex = `\$\d+`
)

var (
	tagRe        = regexp.MustCompile(TagRegex)
	moveNumberRe = regexp.MustCompile(MoveNumberRegex)
	resultRe     = regexp.MustCompile(ResultRegex)
	commentRe    = regexp.MustCompile(CommentRegex)
	nagRe        = regexp.MustCompile(NagRegex)
)

// Tag is one PGN header pair.
type Tag struct {
	Name  string
	Value string
}

// Game is one parsed PGN record.
type Game struct {
	Tags     []Tag
	StartFen string
	Moves    []dragontoothmg.Move
	Result   string
}

// Tag returns the value of the named header pair, or "" if absent.
func (g *Game) Tag(name string) string {
	for _, t := range g.Tags {
		if t.Name == name {
			return t.Value
		}
	}
	return ""
}

// Replay applies the record's moves from its start position and
// returns the final position.
func (g *Game) Replay() (*game.Position, error) {
	pos, err := game.ParseFen(g.StartFen)
	if err != nil {
		return nil, err
	}
	for i, m := range g.Moves {
		if _, err := pos.MoveFromUCI(m.String()); err != nil {
			return nil, fmt.Errorf("move %d (%s): %w", i+1, m.String(), err)
		}
		pos.MakeMove(m)
	}
	return pos, nil
}

// Encoder accumulates one game and renders it as PGN. Moves are kept
// as coordinates and converted to SAN against a replay of the game at
// Encode time, so an illegal move surfaces as an Encode error.
type Encoder struct {
	tags     []Tag
	initial  *game.Position
	moves    []dragontoothmg.Move
	comments []string
	result   string
}

// NewEncoder starts a record from the given initial position.
func NewEncoder(initial *game.Position) *Encoder {
	return &Encoder{initial: initial.Clone()}
}

// AddTag appends a header pair. Pairs render in insertion order.
func (e *Encoder) AddTag(name, value string) {
	e.tags = append(e.tags, Tag{Name: name, Value: value})
}

// AddMove appends a move with no comment.
func (e *Encoder) AddMove(m dragontoothmg.Move) {
	e.AddAnnotatedMove(m, "")
}

// AddAnnotatedMove appends a move with a brace comment, typically an
// engine score such as "+0.42/7".
func (e *Encoder) AddAnnotatedMove(m dragontoothmg.Move, comment string) {
	e.moves = append(e.moves, m)
	e.comments = append(e.comments, comment)
}

// SetResult records the termination marker ("1-0", "0-1", "1/2-1/2"
// or "*"). Unset defaults to "*".
func (e *Encoder) SetResult(result string) {
	e.result = result
}

// Encode renders the headers and movetext. Movetext lines wrap at 80
// columns.
func (e *Encoder) Encode() (string, error) {
	result := e.result
	if result == "" {
		result = "*"
	}

	var sb strings.Builder
	hasResultTag, hasFenTag := false, false
	for _, t := range e.tags {
		writeTag(&sb, t.Name, t.Value)
		if t.Name == "Result" {
			hasResultTag = true
		}
		if t.Name == "FEN" {
			hasFenTag = true
		}
	}
	if !hasResultTag {
		writeTag(&sb, "Result", result)
	}
	if !hasFenTag && e.initial.Fen() != game.NewPosition().Fen() {
		writeTag(&sb, "SetUp", "1")
		writeTag(&sb, "FEN", e.initial.Fen())
	}
	sb.WriteByte('\n')

	pos := e.initial.Clone()
	tokens := make([]string, 0, 2*len(e.moves)+1)
	for i, m := range e.moves {
		if pos.WhiteToMove() {
			tokens = append(tokens, fmt.Sprintf("%d.", pos.FullmoveNumber()))
		} else if i == 0 {
			tokens = append(tokens, fmt.Sprintf("%d...", pos.FullmoveNumber()))
		}
		san, err := SAN(pos, m)
		if err != nil {
			return "", fmt.Errorf("move %d (%s): %w", i+1, m.String(), err)
		}
		tokens = append(tokens, san)
		if e.comments[i] != "" {
			tokens = append(tokens, "{"+e.comments[i]+"}")
		}
		pos.MakeMove(m)
	}
	tokens = append(tokens, result)
	writeMovetext(&sb, tokens)
	return sb.String(), nil
}

func writeTag(sb *strings.Builder, name, value string) {
	fmt.Fprintf(sb, "[%s \"%s\"]\n", name, value)
}

func writeMovetext(sb *strings.Builder, tokens []string) {
	line := ""
	for _, tok := range tokens {
		switch {
		case line == "":
			line = tok
		case len(line)+1+len(tok) > 80:
			sb.WriteString(line)
			sb.WriteByte('\n')
			line = tok
		default:
			line += " " + tok
		}
	}
	sb.WriteString(line)
	sb.WriteByte('\n')
}

// ScoreComment renders an engine score the way match runners annotate
// PGN moves: signed pawns over search depth, or a mate distance.
func ScoreComment(score int16, depth int) string {
	if search.IsMateScore(score) {
		mm := search.MovesToMate(score)
		if mm >= 0 {
			return fmt.Sprintf("+M%d/%d", mm, depth)
		}
		return fmt.Sprintf("-M%d/%d", -mm, depth)
	}
	return fmt.Sprintf("%+.2f/%d", float64(score)/100, depth)
}

// ParsePGN parses the first game record in the named file.
func ParsePGN(filename string) (*Game, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParsePGNFromReader(f)
}

// ParsePGNFromReader parses one game record: leading tag pairs, then
// movetext up to the first termination marker. Brace comments,
// variations and annotation glyphs are skipped.
func ParsePGNFromReader(reader io.Reader) (*Game, error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	g := &Game{StartFen: game.StartposFEN}

	lines := strings.Split(string(raw), "\n")
	var body []string
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "%") {
			continue
		}
		if match := tagRe.FindStringSubmatch(trimmed); match != nil {
			g.Tags = append(g.Tags, Tag{Name: match[1], Value: match[2]})
			continue
		}
		body = lines[i:]
		break
	}
	if fen := g.Tag("FEN"); fen != "" {
		g.StartFen = fen
	}
	pos, err := game.ParseFen(g.StartFen)
	if err != nil {
		return nil, err
	}

	var msb strings.Builder
	for _, line := range body {
		if idx := strings.Index(line, ";"); idx >= 0 {
			line = line[:idx]
		}
		msb.WriteString(line)
		msb.WriteByte('\n')
	}
	movetext := commentRe.ReplaceAllString(msb.String(), " ")
	movetext = stripVariations(movetext)
	movetext = nagRe.ReplaceAllString(movetext, " ")

	for _, tok := range strings.Fields(movetext) {
		if resultRe.MatchString(tok) {
			g.Result = tok
			break
		}
		if match := moveNumberRe.FindStringSubmatch(tok); match != nil {
			tok = match[2]
			if tok == "" {
				continue
			}
		}
		m, err := MoveFromSAN(pos, tok)
		if err != nil {
			return nil, fmt.Errorf("no match found for token %q: %w", tok, err)
		}
		g.Moves = append(g.Moves, m)
		pos.MakeMove(m)
	}
	if g.Result == "" {
		if r := g.Tag("Result"); r != "" {
			g.Result = r
		} else {
			g.Result = "*"
		}
	}
	log.Debug().Int("moves", len(g.Moves)).Str("result", g.Result).Msg("parsed-pgn")
	return g, nil
}

// stripVariations removes recursive variation groups. Engine records
// never contain them; hand-annotated files might.
func stripVariations(s string) string {
	var sb strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '(':
			depth++
			sb.WriteByte(' ')
		case r == ')':
			if depth > 0 {
				depth--
			}
			sb.WriteByte(' ')
		case depth == 0:
			sb.WriteRune(r)
		default:
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}
