package engine

import (
	"testing"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/stretchr/testify/assert"
)

func calledFrom(g models.Grid, cells ...[2]int) CalledSet {
	s := CalledSet{}
	for _, rc := range cells {
		c := g[rc[0]][rc[1]]
		if !c.Free {
			s[models.Draw{Letter: c.Letter, Number: c.Number}] = struct{}{}
		}
	}
	return s
}

func TestIsWinner(t *testing.T) {
	g := Generate(5, 10)

	row := func(r int) [][2]int {
		var out [][2]int
		for c := 0; c < models.GridSize; c++ {
			out = append(out, [2]int{r, c})
		}
		return out
	}
	col := func(c int) [][2]int {
		var out [][2]int
		for r := 0; r < models.GridSize; r++ {
			out = append(out, [2]int{r, c})
		}
		return out
	}

	tests := []struct {
		name   string
		called CalledSet
		want   bool
	}{
		{"nothing called", CalledSet{}, false},
		{"row 0", calledFrom(g, row(0)...), true},
		{"center row uses free cell", calledFrom(g, [2]int{2, 0}, [2]int{2, 1}, [2]int{2, 3}, [2]int{2, 4}), true},
		{"column 4", calledFrom(g, col(4)...), true},
		{"main diagonal", calledFrom(g, [2]int{0, 0}, [2]int{1, 1}, [2]int{3, 3}, [2]int{4, 4}), true},
		{"anti diagonal", calledFrom(g, [2]int{0, 4}, [2]int{1, 3}, [2]int{3, 1}, [2]int{4, 0}), true},
		{"four corners only", calledFrom(g, [2]int{0, 0}, [2]int{0, 4}, [2]int{4, 0}, [2]int{4, 4}), false},
		{"row 0 missing one", calledFrom(g, row(0)[:4]...), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWinner(g, tt.called))
			assert.Equal(t, tt.want, IsWinner(g, tt.called), "second evaluation")
		})
	}
}

func TestIsWinnerIgnoresOtherLetters(t *testing.T) {
	g := Generate(5, 10)
	called := CalledSet{}
	for c := 0; c < models.GridSize; c++ {
		cell := g[0][c]
		// same number under another letter is not a match
		called[models.Draw{Letter: "X", Number: cell.Number}] = struct{}{}
	}
	assert.False(t, IsWinner(g, called))
}

func TestMarkDraw(t *testing.T) {
	cards := GenerateCards(1, 5)
	c := cards[0]
	cell := c.Grid[0][1]
	d := models.Draw{Letter: cell.Letter, Number: cell.Number}

	assert.True(t, markDraw(c, d))
	assert.True(t, c.Marked[0][1])
	assert.False(t, markDraw(c, d), "already marked")
	assert.False(t, markDraw(c, models.Draw{Letter: "Q", Number: 3}))
}
