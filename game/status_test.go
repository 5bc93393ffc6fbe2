package game

import (
	"testing"

	"github.com/matryer/is"
)

func TestStatusCheckmate(t *testing.T) {
	is := is.New(t)
	p := mustPosition(foolsMateFen)
	is.Equal(p.Status(), Checkmate)
	is.True(p.InCheck())
	// white is on turn and mated, so black won
	is.Equal(p.Status().Result(p.WhiteToMove()), "0-1")
}

func TestStatusStalemate(t *testing.T) {
	is := is.New(t)
	p := mustPosition(stalemateFen)
	is.Equal(p.Status(), Stalemate)
	is.True(!p.InCheck())
	is.Equal(p.Status().Result(p.WhiteToMove()), "1/2-1/2")
	is.True(p.Status().Draw())
}

func TestStatusDraws(t *testing.T) {
	is := is.New(t)
	is.Equal(mustPosition(bareKingsFen).Status(), DrawInsufficient)
	is.Equal(mustPosition("8/8/8/4k3/8/8/4K3/7R w - - 100 1").Status(), DrawFiftyMove)
}

func TestStatusRepetition(t *testing.T) {
	is := is.New(t)
	p := NewPosition()
	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}
	for i := 0; i < 2; i++ {
		for _, mv := range shuffle {
			m, err := p.MoveFromUCI(mv)
			is.NoErr(err)
			p.MakeMove(m)
		}
	}
	is.Equal(p.Status(), DrawRepetition)
}

func TestStatusPlaying(t *testing.T) {
	is := is.New(t)
	p := NewPosition()
	is.Equal(p.Status(), Playing)
	is.True(!p.Status().GameOver())
	is.Equal(p.Status().Result(true), "*")
}
