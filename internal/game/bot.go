package game

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"sync"
	"time"
)

// SearchHorizon is the deepest ply the scorer explores below a candidate.
const SearchHorizon = 5

// Candidate is a legal column and the score the bot gave it.
type Candidate struct {
	Column int     `json:"column"`
	Score  float64 `json:"score"`
}

// Bot picks moves for PlayerTwo. Searches run concurrently; only the draw
// from rng is serialised.
type Bot struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewBot returns a bot drawing from src, or from a time-seeded source when
// src is nil.
func NewBot(src rand.Source) *Bot {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, seed>>1|1)
	}
	return &Bot{rng: rand.New(src)}
}

// ChooseColumn returns the column the bot plays on board. It returns -1 only
// when no column is playable, which callers rule out by detecting a draw
// first.
func (b *Bot) ChooseColumn(board Board, difficulty Difficulty) int {
	if col, ok := openingColumn(board); ok {
		return col
	}

	candidates := b.Candidates(board)
	if len(candidates) == 0 {
		return -1
	}
	// A guaranteed win is taken whatever the difficulty.
	if candidates[0].Score == 1.0 {
		return candidates[0].Column
	}
	return candidates[b.pick(poolSize(difficulty, len(candidates)))].Column
}

func (b *Bot) pick(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.IntN(n)
}

// Candidates scores every legal column and returns them best first. Equal
// scores keep column order.
func (b *Bot) Candidates(board Board) []Candidate {
	s := newScorer(board)
	var out []Candidate
	for col := 0; col < board.Columns(); col++ {
		i, err := board.Resolve(col)
		if err != nil {
			continue
		}
		out = append(out, Candidate{Column: col, Score: s.score(board, i, PlayerTwo, 0)})
	}
	slices.SortStableFunc(out, func(x, y Candidate) int {
		return cmp.Compare(y.Score, x.Score)
	})
	return out
}

// poolSize is how many of the n best candidates the bot draws from.
func poolSize(d Difficulty, n int) int {
	switch d {
	case Easy:
		return n
	case Normal:
		return max(1, n-n/2)
	case Difficult:
		return max(1, n-n/4)
	}
	return 1
}

// openingColumn answers the bot's first move by stacking on the opponent's
// first piece. It declines when there is no such piece or nothing fits above
// it, leaving the choice to the search.
func openingColumn(board Board) (int, bool) {
	if board.Pieces()/2 != 0 {
		return 0, false
	}
	for i := 0; i < board.Size(); i++ {
		if board.At(i) != PlayerOne {
			continue
		}
		row, col := board.Coords(i)
		if row == 0 {
			return 0, false
		}
		if landing, err := board.Resolve(col); err != nil || landing != i-board.Columns() {
			return 0, false
		}
		return col, true
	}
	return 0, false
}

// scorer keeps one scratch board per ply. A node only writes its own ply's
// buffer and children only write deeper ones, so every node sees exactly
// the position a fresh copy would give it.
type scorer struct {
	plies [SearchHorizon + 1]Board
}

func newScorer(board Board) *scorer {
	s := &scorer{}
	for i := range s.plies {
		s.plies[i] = NewBoard(board.Columns(), board.Rows())
	}
	return s
}

// score places player at index on a copy of parent and rates the result for
// PlayerTwo. Continuations are folded into a running mean in column order
// for both sides alike rather than assuming best replies, and an undecided
// position at the horizon counts as 1.
func (s *scorer) score(parent Board, index int, player Cell, depth int) float64 {
	node := s.plies[depth]
	parent.copyInto(node)
	node.Place(index, player)

	if outcome, over := Detect(node, player, index); over {
		if outcome.Kind == OutcomeWinner && outcome.Winner == PlayerOne {
			return 0.0
		}
		return 1.0
	}

	acc := 1.0
	if depth == SearchHorizon {
		return acc
	}
	next := player.Opponent()
	for col := 0; col < node.Columns(); col++ {
		i, err := node.Resolve(col)
		if err != nil {
			continue
		}
		acc = (acc + s.score(node, i, next, depth+1)) / 2
	}
	return acc
}
