package engine

import "github.com/avvvet/bingo-rounds/internal/gamesvc/models"

// CalledSet is the set of draws called so far in a round.
type CalledSet map[models.Draw]struct{}

func NewCalledSet(draws []models.Draw) CalledSet {
	s := make(CalledSet, len(draws))
	for _, d := range draws {
		s[d] = struct{}{}
	}
	return s
}

func (s CalledSet) Has(d models.Draw) bool {
	_, ok := s[d]
	return ok
}

// IsWinner reports whether any row, column or diagonal of g is fully covered.
// A cell is covered when it is free or its draw has been called.
func IsWinner(g models.Grid, called CalledSet) bool {
	covered := func(r, c int) bool {
		cell := g[r][c]
		return cell.Free || called.Has(models.Draw{Letter: cell.Letter, Number: cell.Number})
	}

	for i := 0; i < models.GridSize; i++ {
		rowComplete, colComplete := true, true
		for j := 0; j < models.GridSize; j++ {
			if !covered(i, j) {
				rowComplete = false
			}
			if !covered(j, i) {
				colComplete = false
			}
		}
		if rowComplete || colComplete {
			return true
		}
	}

	diag1, diag2 := true, true
	for i := 0; i < models.GridSize; i++ {
		if !covered(i, i) {
			diag1 = false
		}
		if !covered(i, models.GridSize-1-i) {
			diag2 = false
		}
	}
	return diag1 || diag2
}

// markDraw marks every cell of card matching d and reports whether anything changed.
func markDraw(card *models.Card, d models.Draw) bool {
	col := -1
	for i, l := range models.Letters {
		if l == d.Letter {
			col = i
			break
		}
	}
	if col < 0 {
		return false
	}
	for row := 0; row < models.GridSize; row++ {
		cell := card.Grid[row][col]
		if !cell.Free && cell.Number == d.Number && !card.Marked[row][col] {
			card.Marked[row][col] = true
			return true
		}
	}
	return false
}
