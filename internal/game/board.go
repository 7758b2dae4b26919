package game

import "github.com/pkg/errors"

const (
	DefaultColumns = 7
	DefaultRows    = 6

	// WinLength is the run of equal pieces that ends a game.
	WinLength = 4
)

type Cell int

const (
	Empty Cell = iota
	PlayerOne
	PlayerTwo
)

var (
	ErrInvalidColumn = errors.New("invalid column")
	ErrColumnFull    = errors.New("column is full")
)

func (c Cell) Opponent() Cell {
	switch c {
	case PlayerOne:
		return PlayerTwo
	case PlayerTwo:
		return PlayerOne
	}
	return Empty
}

func (c Cell) String() string {
	switch c {
	case PlayerOne:
		return "player_one"
	case PlayerTwo:
		return "player_two"
	}
	return "empty"
}

// Board is a row-major grid of cells. Row 0 is the top of the board and
// pieces fall towards row Rows()-1.
//
// Copying a Board value shares its cells; use Clone for an independent copy.
type Board struct {
	columns int
	rows    int
	cells   []Cell
}

func NewBoard(columns, rows int) Board {
	return Board{
		columns: columns,
		rows:    rows,
		cells:   make([]Cell, columns*rows),
	}
}

// BoardFromCells rebuilds a board from its flat cell slice, as stored in a
// Snapshot.
func BoardFromCells(columns, rows int, cells []Cell) (Board, error) {
	if columns <= 0 || rows <= 0 || len(cells) != columns*rows {
		return Board{}, errors.Errorf("board %dx%d does not match %d cells", columns, rows, len(cells))
	}
	b := NewBoard(columns, rows)
	copy(b.cells, cells)
	return b, nil
}

func (b Board) Columns() int { return b.columns }
func (b Board) Rows() int { return b.rows }
func (b Board) Size() int { return len(b.cells) }

func (b Board) Index(row, col int) int {
	return row*b.columns + col
}

func (b Board) Coords(index int) (row, col int) {
	return index / b.columns, index % b.columns
}

func (b Board) At(index int) Cell {
	return b.cells[index]
}

func (b Board) inBounds(row, col int) bool {
	return row >= 0 && row < b.rows && col >= 0 && col < b.columns
}

// Resolve returns the index a piece dropped into col would land on. The
// board is not modified.
func (b Board) Resolve(col int) (int, error) {
	if col < 0 || col >= b.columns {
		return -1, ErrInvalidColumn
	}
	for row := b.rows - 1; row >= 0; row-- {
		if i := b.Index(row, col); b.cells[i] == Empty {
			return i, nil
		}
	}
	return -1, ErrColumnFull
}

// Place writes player at index. Callers obtain index from Resolve.
func (b Board) Place(index int, player Cell) {
	b.cells[index] = player
}

// Drop resolves col and places player there in one step.
func (b Board) Drop(col int, player Cell) (int, error) {
	i, err := b.Resolve(col)
	if err != nil {
		return -1, err
	}
	b.Place(i, player)
	return i, nil
}

func (b Board) ColumnFull(col int) bool {
	return b.cells[col] != Empty
}

func (b Board) Full() bool {
	for _, c := range b.cells {
		if c == Empty {
			return false
		}
	}
	return true
}

// Pieces counts the non-empty cells.
func (b Board) Pieces() int {
	n := 0
	for _, c := range b.cells {
		if c != Empty {
			n++
		}
	}
	return n
}

// LegalColumns lists, in column order, every column Resolve accepts.
func (b Board) LegalColumns() []int {
	cols := make([]int, 0, b.columns)
	for col := 0; col < b.columns; col++ {
		if !b.ColumnFull(col) {
			cols = append(cols, col)
		}
	}
	return cols
}

func (b Board) Reset() {
	for i := range b.cells {
		b.cells[i] = Empty
	}
}

func (b Board) Clone() Board {
	dst := Board{columns: b.columns, rows: b.rows, cells: make([]Cell, len(b.cells))}
	copy(dst.cells, b.cells)
	return dst
}

// copyInto overwrites dst with b. Both boards must share dimensions.
func (b Board) copyInto(dst Board) {
	copy(dst.cells, b.cells)
}

// Cells returns a copy of the flat cell slice.
func (b Board) Cells() []Cell {
	out := make([]Cell, len(b.cells))
	copy(out, b.cells)
	return out
}
