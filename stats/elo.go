package stats

import "math"

// EloResult summarizes a head-to-head match from the first engine's
// point of view.
type EloResult struct {
	Wins   int
	Losses int
	Draws  int

	// Difference is the implied rating gap in Elo points, positive
	// when the first engine scored above 50%.
	Difference float64
	// Margin is the half-width of the confidence interval, in Elo
	// points.
	Margin float64
	// LOS is the likelihood of superiority, from 0 to 1.
	LOS float64
}

// Games returns the number of games the result covers.
func (r EloResult) Games() int {
	return r.Wins + r.Losses + r.Draws
}

// Score returns the fraction of available points scored.
func (r EloResult) Score() float64 {
	n := r.Games()
	if n == 0 {
		return 0.5
	}
	return (float64(r.Wins) + float64(r.Draws)/2) / float64(n)
}

// EloDifference converts a score fraction to a rating difference.
// Scores at or beyond 0 and 1 are clamped so the result stays finite.
func EloDifference(score float64) float64 {
	const eps = 1e-6
	if score < eps {
		score = eps
	}
	if score > 1-eps {
		score = 1 - eps
	}
	return -400 * math.Log10(1/score-1)
}

// MeasureElo estimates the rating difference implied by a
// win/loss/draw record, with an error margin at the given confidence
// interval (a percentage, as for ZVal) and the likelihood of
// superiority.
func MeasureElo(wins, losses, draws int, confidenceInterval float64) EloResult {
	r := EloResult{Wins: wins, Losses: losses, Draws: draws}
	n := float64(r.Games())
	if n == 0 {
		r.LOS = 0.5
		return r
	}
	p := r.Score()
	r.Difference = EloDifference(p)

	wf := float64(wins) / n
	df := float64(draws) / n
	lf := float64(losses) / n
	variance := wf*(1-p)*(1-p) + df*(0.5-p)*(0.5-p) + lf*p*p
	stderr := math.Sqrt(variance / n)
	z := ZVal(confidenceInterval)
	r.Margin = (EloDifference(p+z*stderr) - EloDifference(p-z*stderr)) / 2

	if wins+losses > 0 {
		r.LOS = unitNormal.CDF(float64(wins-losses) / math.Sqrt(2*float64(wins+losses)))
	} else {
		r.LOS = 0.5
	}
	return r
}
