// internal/rules/gomoku.go
package rules

// GomokuEngine plays five-in-a-row. With Renju enabled black may not make
// double-threes, double-fours or overlines. The restriction is enforced when a
// move is validated; any run of five or more on the board is a win.
type GomokuEngine struct {
	Size  int
	Renju bool
}

// GomokuSize is the standard board width.
const GomokuSize = 19

// NewGomoku returns the 19×19 Renju configuration used by online rooms.
func NewGomoku() GomokuEngine { return GomokuEngine{Size: GomokuSize, Renju: true} }

// axes are the four line directions; each is scanned both ways.
var axes = [4]Point{{1, 0}, {0, 1}, {1, 1}, {1, -1}}

func (g GomokuEngine) Type() GameType { return Gomoku }

func (g GomokuEngine) NewState() *GameState {
	size := g.Size
	if size <= 0 {
		size = GomokuSize
	}
	return newState(Gomoku, NewBoard(size, size))
}

func (g GomokuEngine) IsValidMove(s *GameState, pos Position, player Player) error {
	if err := precheck(s, player); err != nil {
		return err
	}
	return g.checkPlacement(s.Board, pos, player)
}

// checkPlacement is the board-only part of validation: bounds, occupancy, Renju.
func (g GomokuEngine) checkPlacement(b Board, pos Position, player Player) error {
	if !b.InBounds(pos.X, pos.Y) {
		return ErrOutOfBounds
	}
	if b[pos.Y][pos.X] != CellEmpty {
		return ErrCellOccupied
	}
	if g.Renju && player == Black {
		if reason, bad := ForbiddenAt(b, pos.X, pos.Y, player); bad {
			return &ForbiddenMoveError{Reason: reason}
		}
	}
	return nil
}

func (g GomokuEngine) ApplyMove(s *GameState, pos Position, player Player) (*GameState, error) {
	if err := g.IsValidMove(s, pos, player); err != nil {
		return nil, err
	}
	next := s.Clone()
	next.Board[pos.Y][pos.X] = player.Stone()
	next.record(At(pos.X, pos.Y), player)
	next.CurrentTurn = player.Opponent()
	return next, nil
}

func (GomokuEngine) CheckWinner(s *GameState, last Move) Player {
	b := s.Board
	stone := b.At(last.X, last.Y)
	p := stone.Owner()
	if p == NoPlayer {
		return NoPlayer
	}
	for _, d := range axes {
		n := runLength(b, last.X, last.Y, d, stone)
		if n >= 5 {
			return p
		}
	}
	return NoPlayer
}

func (g GomokuEngine) Exhausted(s *GameState) bool {
	return s.Board.Count(CellEmpty) == 0
}

// runLength counts consecutive cells equal to stone through (x,y) along d, both ways.
func runLength(b Board, x, y int, d Point, stone Cell) int {
	n := 1
	for i := 1; b.At(x+d.X*i, y+d.Y*i) == stone; i++ {
		n++
	}
	for i := 1; b.At(x-d.X*i, y-d.Y*i) == stone; i++ {
		n++
	}
	return n
}

// lineShape describes the run created through one point along one axis.
type lineShape struct {
	length   int
	openEnds int
	headFree bool
	tailFree bool
}

func shapeAt(b Board, x, y int, d Point, stone Cell) lineShape {
	fwd := 0
	for i := 1; b.InBounds(x+d.X*i, y+d.Y*i) && b[y+d.Y*i][x+d.X*i] == stone; i++ {
		fwd++
	}
	back := 0
	for i := 1; b.InBounds(x-d.X*i, y-d.Y*i) && b[y-d.Y*i][x-d.X*i] == stone; i++ {
		back++
	}
	hx, hy := x+d.X*(fwd+1), y+d.Y*(fwd+1)
	tx, ty := x-d.X*(back+1), y-d.Y*(back+1)
	sh := lineShape{
		length:   fwd + back + 1,
		headFree: b.InBounds(hx, hy) && b[hy][hx] == CellEmpty,
		tailFree: b.InBounds(tx, ty) && b[ty][tx] == CellEmpty,
	}
	if sh.headFree {
		sh.openEnds++
	}
	if sh.tailFree {
		sh.openEnds++
	}
	return sh
}

// ForbiddenAt reports whether placing player's stone on the empty cell (x,y)
// is a Renju foul, checking overline, then double-four, then double-three.
// A move that completes exactly five is a win and never a foul.
func ForbiddenAt(b Board, x, y int, player Player) (ForbiddenReason, bool) {
	if !b.InBounds(x, y) || b[y][x] != CellEmpty {
		return "", false
	}
	stone := player.Stone()
	b = b.Clone()
	b[y][x] = stone

	var shapes [4]lineShape
	for i, d := range axes {
		shapes[i] = shapeAt(b, x, y, d, stone)
		if shapes[i].length == 5 {
			return "", false
		}
	}

	for _, sh := range shapes {
		if sh.length >= 6 {
			return Overline, true
		}
	}

	fours := 0
	for _, sh := range shapes {
		if sh.length == 4 {
			fours++
		}
	}
	if fours >= 2 {
		return DoubleFour, true
	}

	threes := 0
	for _, sh := range shapes {
		if sh.length == 3 && sh.openEnds == 2 {
			threes++
		}
	}
	if threes >= 2 {
		return DoubleThree, true
	}
	return "", false
}
