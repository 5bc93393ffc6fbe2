package game

import "github.com/dylhunn/dragontoothmg"

// Perft counts the leaf nodes of the legal move tree to the given
// depth. It is a move generator correctness check, not a benchmark.
func (p *Position) Perft(depth int) uint64 {
	if depth <= 0 {
		return 1
	}
	var nodes uint64
	for _, m := range p.LegalMoves() {
		undo := p.MakeMove(m)
		nodes += p.Perft(depth - 1)
		undo()
	}
	return nodes
}

// PerftDivide maps each root move to its subtree leaf count, for
// pinpointing which move a generator disagreement hides under.
func (p *Position) PerftDivide(depth int) map[dragontoothmg.Move]uint64 {
	result := make(map[dragontoothmg.Move]uint64)
	if depth <= 0 {
		return result
	}
	for _, m := range p.LegalMoves() {
		undo := p.MakeMove(m)
		result[m] = p.Perft(depth - 1)
		undo()
	}
	return result
}
