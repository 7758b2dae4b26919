package game

type OutcomeKind uint8

const (
	OutcomeDraw OutcomeKind = iota + 1
	OutcomeWinner
)

type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Winner Cell        `json:"winner,omitempty"`
}

func Draw() Outcome { return Outcome{Kind: OutcomeDraw} }
func Winner(player Cell) Outcome { return Outcome{Kind: OutcomeWinner, Winner: player} }

func (o Outcome) IsDraw() bool { return o.Kind == OutcomeDraw }

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeDraw:
		return "draw"
	case OutcomeWinner:
		return o.Winner.String()
	}
	return "none"
}

// (row step, column step): horizontal, vertical and both diagonals.
var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// Detect evaluates the move mover just made at lastIndex. Only the four
// lines through lastIndex are inspected, since a move can only complete a
// line it belongs to. The second result is false while the game goes on.
func Detect(b Board, mover Cell, lastIndex int) (Outcome, bool) {
	row, col := b.Coords(lastIndex)
	for _, d := range directions {
		if 1+b.run(row, col, d[0], d[1], mover)+b.run(row, col, -d[0], -d[1], mover) >= WinLength {
			return Winner(mover), true
		}
	}
	if b.Full() {
		return Draw(), true
	}
	return Outcome{}, false
}

// WinningLine returns the indices of the longest run of the piece at
// lastIndex, or nil when no run reaches WinLength.
func WinningLine(b Board, lastIndex int) []int {
	player := b.At(lastIndex)
	if player == Empty {
		return nil
	}
	row, col := b.Coords(lastIndex)
	for _, d := range directions {
		back := b.run(row, col, -d[0], -d[1], player)
		fwd := b.run(row, col, d[0], d[1], player)
		if 1+back+fwd < WinLength {
			continue
		}
		line := make([]int, 0, 1+back+fwd)
		for k := -back; k <= fwd; k++ {
			line = append(line, b.Index(row+k*d[0], col+k*d[1]))
		}
		return line
	}
	return nil
}

// run counts contiguous cells equal to player, starting one step away from
// (row, col) and walking by (dr, dc).
func (b Board) run(row, col, dr, dc int, player Cell) int {
	n := 0
	for r, c := row+dr, col+dc; b.inBounds(r, c); r, c = r+dr, c+dc {
		if b.cells[b.Index(r, c)] != player {
			break
		}
		n++
	}
	return n
}
