package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// gomokuState builds a position with the given stones and player to move.
func gomokuState(black, white []Point, turn Player) *GameState {
	s := NewGomoku().NewState()
	for _, p := range black {
		s.Board[p.Y][p.X] = CellBlack
	}
	for _, p := range white {
		s.Board[p.Y][p.X] = CellWhite
	}
	s.CurrentTurn = turn
	return s
}

func TestGomokuFirstMove(t *testing.T) {
	e := NewGomoku()
	s, err := Play(e, e.NewState(), At(9, 9), Black)
	require.NoError(t, err)

	assert.Equal(t, CellBlack, s.Board[9][9])
	assert.Equal(t, White, s.CurrentTurn)
	require.Len(t, s.History, 1)
	assert.Equal(t, 1, s.History[0].Seq)
	require.NotNil(t, s.LastMove)
	assert.Equal(t, Black, s.LastMove.Player)
}

func TestGomokuApplyDoesNotMutateInput(t *testing.T) {
	e := NewGomoku()
	s := e.NewState()
	_, err := e.ApplyMove(s, At(3, 4), Black)
	require.NoError(t, err)
	assert.Equal(t, CellEmpty, s.Board[4][3])
	assert.Empty(t, s.History)
}

func TestGomokuInvalidMoves(t *testing.T) {
	e := NewGomoku()
	s, err := Play(e, e.NewState(), At(9, 9), Black)
	require.NoError(t, err)

	tests := []struct {
		name   string
		pos    Position
		player Player
		want   error
	}{
		{"occupied", At(9, 9), White, ErrCellOccupied},
		{"negative", At(-1, 3), White, ErrOutOfBounds},
		{"past edge", At(19, 0), White, ErrOutOfBounds},
		{"wrong turn", At(0, 0), Black, ErrNotYourTurn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.IsValidMove(s, tt.pos, tt.player)
			assert.ErrorIs(t, err, tt.want)
			_, applyErr := e.ApplyMove(s, tt.pos, tt.player)
			assert.ErrorIs(t, applyErr, tt.want)
		})
	}
}

func TestGomokuWinOnEveryAxis(t *testing.T) {
	e := NewGomoku()
	for _, d := range axes {
		var whites []Point
		for i := 0; i < 4; i++ {
			whites = append(whites, Point{9 + d.X*i, 9 + d.Y*i})
		}
		s := gomokuState([]Point{{0, 0}, {2, 0}, {4, 0}, {6, 0}}, whites, White)
		next, err := Play(e, s, At(9+d.X*4, 9+d.Y*4), White)
		require.NoError(t, err)
		assert.Equal(t, White, next.Winner, "axis %v", d)
		assert.True(t, next.Over())
		assert.Equal(t, NoPlayer, next.CurrentTurn)
	}
}

func TestGomokuWinFromMiddleOfLine(t *testing.T) {
	e := NewGomoku()
	s := gomokuState([]Point{{5, 5}, {6, 5}, {8, 5}, {9, 5}}, []Point{{0, 18}, {3, 18}}, Black)
	next, err := Play(e, s, At(7, 5), Black)
	require.NoError(t, err)
	assert.Equal(t, Black, next.Winner)
}

func TestGomokuNoWinForFour(t *testing.T) {
	e := NewGomoku()
	s := gomokuState(nil, []Point{{1, 1}, {2, 2}, {3, 3}}, White)
	next, err := Play(e, s, At(4, 4), White)
	require.NoError(t, err)
	assert.Equal(t, NoPlayer, next.Winner)
	assert.Equal(t, Black, next.CurrentTurn)
}

func TestRenjuDoubleThree(t *testing.T) {
	e := NewGomoku()
	black := []Point{{7, 9}, {8, 9}, {9, 7}, {9, 8}}
	white := []Point{{0, 0}, {18, 18}, {0, 18}, {18, 0}}

	s := gomokuState(black, white, Black)
	err := e.IsValidMove(s, At(9, 9), Black)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbiddenMove)
	reason, ok := ForbiddenReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, DoubleThree, reason)

	// the same geometry with colours swapped is fine for white
	ws := gomokuState(white, black, White)
	next, err := Play(e, ws, At(9, 9), White)
	require.NoError(t, err)
	assert.Equal(t, CellWhite, next.Board[9][9])
}

func TestRenjuWhiteIsNeverRestricted(t *testing.T) {
	e := NewGomoku()
	pts := []Point{{7, 9}, {8, 9}, {9, 7}, {9, 8}}
	s := gomokuState(nil, pts, White)
	assert.NoError(t, e.IsValidMove(s, At(9, 9), White))
}

func TestRenjuClosedThreeIsAllowed(t *testing.T) {
	e := NewGomoku()
	// horizontal three is blocked on the left by a white stone
	s := gomokuState([]Point{{7, 9}, {8, 9}, {9, 7}, {9, 8}}, []Point{{6, 9}}, Black)
	assert.NoError(t, e.IsValidMove(s, At(9, 9), Black))
}

func TestRenjuDoubleFour(t *testing.T) {
	e := NewGomoku()
	s := gomokuState([]Point{{6, 9}, {7, 9}, {8, 9}, {9, 6}, {9, 7}, {9, 8}}, []Point{{5, 9}, {9, 5}}, Black)
	err := e.IsValidMove(s, At(9, 9), Black)
	reason, ok := ForbiddenReasonOf(err)
	require.True(t, ok, "expected forbidden, got %v", err)
	assert.Equal(t, DoubleFour, reason)
}

func TestRenjuOverline(t *testing.T) {
	e := NewGomoku()
	s := gomokuState([]Point{{4, 9}, {5, 9}, {6, 9}, {7, 9}, {9, 9}}, nil, Black)
	err := e.IsValidMove(s, At(8, 9), Black)
	reason, ok := ForbiddenReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, Overline, reason)

	// white makes the same six and wins
	w := gomokuState(nil, []Point{{4, 9}, {5, 9}, {6, 9}, {7, 9}, {9, 9}}, White)
	next, err := Play(e, w, At(8, 9), White)
	require.NoError(t, err)
	assert.Equal(t, White, next.Winner)
}

func TestRenjuOverlineReportedBeforeDoubleThree(t *testing.T) {
	// (8,9) makes six horizontally plus open threes vertically and on the anti-diagonal
	black := []Point{{4, 9}, {5, 9}, {6, 9}, {7, 9}, {9, 9}, {8, 7}, {8, 8}, {7, 10}, {6, 11}}
	s := gomokuState(black, nil, Black)
	reason, ok := ForbiddenAt(s.Board, 8, 9, Black)
	require.True(t, ok)
	assert.Equal(t, Overline, reason)
}

func TestRenjuExactFiveBeatsFoul(t *testing.T) {
	e := NewGomoku()
	// completing five horizontally while also forming a vertical open three
	black := []Point{{5, 9}, {6, 9}, {7, 9}, {8, 9}, {9, 7}, {9, 8}, {11, 10}, {12, 10}}
	s := gomokuState(black, nil, Black)
	next, err := Play(e, s, At(9, 9), Black)
	require.NoError(t, err)
	assert.Equal(t, Black, next.Winner)
}

func TestFreestyleGomokuAllowsOverline(t *testing.T) {
	e := GomokuEngine{Size: 15}
	s := e.NewState()
	for _, x := range []int{0, 1, 2, 4, 5} {
		s.Board[7][x] = CellBlack
	}
	next, err := Play(e, s, At(3, 7), Black)
	require.NoError(t, err)
	assert.Equal(t, Black, next.Winner)
	assert.Equal(t, 15, next.Board.Width())
}

// maxRunThrough is an independent brute-force scan used to check CheckWinner.
func maxRunThrough(b Board, x, y int) int {
	stone := b[y][x]
	best := 0
	for _, d := range [][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}} {
		n := 0
		for i := -18; i <= 18; i++ {
			cx, cy := x+d[0]*i, y+d[1]*i
			if cx < 0 || cy < 0 || cx >= len(b[0]) || cy >= len(b) {
				continue
			}
			if b[cy][cx] == stone {
				n++
				if n > best && spans(b, x, y, cx, cy, d, stone) {
					best = n
				}
			} else {
				n = 0
			}
		}
	}
	return best
}

// spans reports whether the run ending at (cx,cy) contains (x,y).
func spans(b Board, x, y, cx, cy int, d [2]int, stone Cell) bool {
	for i := 0; ; i++ {
		px, py := cx-d[0]*i, cy-d[1]*i
		if px < 0 || py < 0 || px >= len(b[0]) || py >= len(b) || b[py][px] != stone {
			return false
		}
		if px == x && py == y {
			return true
		}
	}
}

func TestPropertyGomokuWinDetection(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := GomokuEngine{Size: GomokuSize, Renju: rapid.Bool().Draw(t, "renju")}
		p := rapid.SampledFrom([]Player{Black, White}).Draw(t, "player")
		s := e.NewState()
		n := rapid.IntRange(0, 120).Draw(t, "stones")
		for i := 0; i < n; i++ {
			x := rapid.IntRange(0, 18).Draw(t, "x")
			y := rapid.IntRange(0, 18).Draw(t, "y")
			s.Board[y][x] = p.Stone()
		}
		lx := rapid.IntRange(0, 18).Draw(t, "lx")
		ly := rapid.IntRange(0, 18).Draw(t, "ly")
		s.Board[ly][lx] = p.Stone()

		got := e.CheckWinner(s, Move{Position: At(lx, ly), Player: p})
		if maxRunThrough(s.Board, lx, ly) >= 5 {
			if got != p {
				t.Fatalf("run of %d through (%d,%d) not detected for %s", maxRunThrough(s.Board, lx, ly), lx, ly, p)
			}
		} else if got != NoPlayer {
			t.Fatalf("reported winner %s without a five", got)
		}
	})
}

func TestRenjuBlackSixOnBoardWins(t *testing.T) {
	s := gomokuState([]Point{{4, 9}, {5, 9}, {6, 9}, {7, 9}, {8, 9}, {9, 9}}, nil, White)
	assert.Equal(t, Black, NewGomoku().CheckWinner(s, Move{Position: At(5, 9), Player: Black}))
}

func TestPropertyForbiddenOnlyForBlack(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := NewGomoku()
		s := e.NewState()
		// Dense black stones around the centre so black fouls actually occur.
		n := rapid.IntRange(0, 40).Draw(t, "black")
		for i := 0; i < n; i++ {
			s.Board[rapid.IntRange(5, 13).Draw(t, "by")][rapid.IntRange(5, 13).Draw(t, "bx")] = CellBlack
		}
		m := rapid.IntRange(0, 20).Draw(t, "white")
		for i := 0; i < m; i++ {
			s.Board[rapid.IntRange(0, 18).Draw(t, "wy")][rapid.IntRange(0, 18).Draw(t, "wx")] = CellWhite
		}
		x, y := rapid.IntRange(5, 13).Draw(t, "px"), rapid.IntRange(5, 13).Draw(t, "py")
		if s.Board[y][x] != CellEmpty {
			return
		}

		// Recolour the board so white sees exactly black's geometry.
		mirror := s.Clone()
		for yy := range mirror.Board {
			for xx, c := range mirror.Board[yy] {
				switch c {
				case CellBlack:
					mirror.Board[yy][xx] = CellWhite
				case CellWhite:
					mirror.Board[yy][xx] = CellBlack
				}
			}
		}
		mirror.CurrentTurn = White

		_, fouled := ForbiddenAt(s.Board, x, y, Black)
		if err := e.IsValidMove(mirror, At(x, y), White); err != nil {
			t.Fatalf("white move rejected (black foul here: %v): %v", fouled, err)
		}
		s.CurrentTurn = White
		if err := e.IsValidMove(s, At(x, y), White); err != nil {
			t.Fatalf("white move on empty cell rejected: %v", err)
		}
	})
}

func TestWhiteMayPlayBlackFoulShapes(t *testing.T) {
	e := NewGomoku()
	shapes := map[ForbiddenReason][]Point{
		Overline:    {{4, 9}, {5, 9}, {6, 9}, {7, 9}, {9, 9}},
		DoubleFour:  {{6, 9}, {7, 9}, {8, 9}, {9, 6}, {9, 7}, {9, 8}},
		DoubleThree: {{7, 9}, {8, 9}, {9, 7}, {9, 8}},
	}
	targets := map[ForbiddenReason]Point{Overline: {8, 9}, DoubleFour: {9, 9}, DoubleThree: {9, 9}}
	for reason, stones := range shapes {
		at := targets[reason]
		black := gomokuState(stones, nil, Black)
		got, fouled := ForbiddenAt(black.Board, at.X, at.Y, Black)
		require.True(t, fouled, "%s", reason)
		assert.Equal(t, reason, got)

		white := gomokuState(nil, stones, White)
		assert.NoError(t, e.IsValidMove(white, At(at.X, at.Y), White), "%s", reason)
	}
}

func TestForbiddenErrorMatching(t *testing.T) {
	err := error(&ForbiddenMoveError{Reason: DoubleFour})
	assert.True(t, errors.Is(err, ErrForbiddenMove))
	assert.False(t, errors.Is(err, ErrCellOccupied))
	assert.Equal(t, "forbidden move: double-four", err.Error())
}
