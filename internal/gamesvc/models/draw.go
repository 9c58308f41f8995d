package models

import "fmt"

type Letter string

const (
	GridSize    = 5
	ColumnSpan  = 15
	UniverseMax = GridSize * ColumnSpan // 75
)

var Letters = [GridSize]Letter{"B", "I", "N", "G", "O"}

// Draw is one called letter+number pair.
type Draw struct {
	Letter Letter `json:"letter"`
	Number int    `json:"number"`
}

func (d Draw) String() string {
	return fmt.Sprintf("%s-%d", d.Letter, d.Number)
}

// ColumnRange returns the inclusive number range of grid column col.
func ColumnRange(col int) (lo, hi int) {
	return col*ColumnSpan + 1, (col + 1) * ColumnSpan
}

// DrawFor maps a number in 1..75 to its draw.
func DrawFor(number int) (Draw, error) {
	if number < 1 || number > UniverseMax {
		return Draw{}, fmt.Errorf("number %d outside 1..%d", number, UniverseMax)
	}
	return Draw{Letter: Letters[(number-1)/ColumnSpan], Number: number}, nil
}

// Universe returns all 75 draws in ascending order.
func Universe() []Draw {
	out := make([]Draw, 0, UniverseMax)
	for n := 1; n <= UniverseMax; n++ {
		out = append(out, Draw{Letter: Letters[(n-1)/ColumnSpan], Number: n})
	}
	return out
}
