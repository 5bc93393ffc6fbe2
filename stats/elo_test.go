package stats

import (
	"math"
	"testing"

	"github.com/matryer/is"
)

func TestZVal(t *testing.T) {
	is := is.New(t)
	is.True(math.Abs(ZVal(95)-1.95996) < 1e-4)
	is.True(math.Abs(ZVal(99)-2.57583) < 1e-4)
	is.True(Z95 < Z98)
	is.True(Z98 < Z99)
}

func TestEloDifference(t *testing.T) {
	is := is.New(t)
	is.True(FuzzyEqual(EloDifference(0.5), 0))
	is.True(math.Abs(EloDifference(2.0/3)-120.412) < 0.001)
	is.True(FuzzyEqual(EloDifference(0.25), -EloDifference(0.75)))
	is.True(!math.IsInf(EloDifference(0), 0))
	is.True(!math.IsInf(EloDifference(1), 0))
}

func TestMeasureEloEvenMatch(t *testing.T) {
	is := is.New(t)
	r := MeasureElo(10, 10, 10, 95)
	is.True(FuzzyEqual(r.Difference, 0))
	is.True(FuzzyEqual(r.LOS, 0.5))
	is.True(r.Margin > 0)
	is.Equal(r.Games(), 30)
}

func TestMeasureEloAhead(t *testing.T) {
	is := is.New(t)
	ahead := MeasureElo(15, 5, 10, 95)
	is.True(math.Abs(ahead.Difference-120.412) < 0.001)
	is.True(math.Abs(ahead.LOS-0.9431) < 0.001)
	is.True(ahead.Margin > 0)

	behind := MeasureElo(5, 15, 10, 95)
	is.True(FuzzyEqual(behind.Difference, -ahead.Difference))
	is.True(FuzzyEqual(behind.LOS+ahead.LOS, 1))
}

func TestMeasureEloDegenerate(t *testing.T) {
	is := is.New(t)

	zero := MeasureElo(0, 0, 0, 95)
	is.True(FuzzyEqual(zero.Difference, 0))
	is.True(FuzzyEqual(zero.LOS, 0.5))

	allDraws := MeasureElo(0, 0, 20, 95)
	is.True(FuzzyEqual(allDraws.Difference, 0))
	is.True(FuzzyEqual(allDraws.Margin, 0))
	is.True(FuzzyEqual(allDraws.LOS, 0.5))

	whitewash := MeasureElo(20, 0, 0, 95)
	is.True(!math.IsInf(whitewash.Difference, 0))
	is.True(whitewash.Difference > 1000)
}
