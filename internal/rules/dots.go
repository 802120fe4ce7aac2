package rules

// DotsEngine plays Dots-and-Boxes on a square of Boxes×Boxes boxes. The board
// is the (2n+1)² lattice: dots sit on even/even cells, edges on mixed-parity
// cells and boxes on odd/odd cells. A move draws one edge; closing a box claims
// it and the same player moves again.
type DotsEngine struct {
	Boxes int
}

func (DotsEngine) Type() GameType { return Dots }

func (e DotsEngine) size() int {
	n := e.Boxes
	if n <= 0 {
		n = 5
	}
	return 2*n + 1
}

func (e DotsEngine) NewState() *GameState {
	return newState(Dots, NewBoard(e.size(), e.size()))
}

func isEdge(x, y int) bool { return (x+y)%2 == 1 }

func (DotsEngine) IsValidMove(s *GameState, pos Position, player Player) error {
	if err := precheck(s, player); err != nil {
		return err
	}
	if !s.Board.InBounds(pos.X, pos.Y) {
		return ErrOutOfBounds
	}
	if !isEdge(pos.X, pos.Y) {
		return illegal("(%d,%d) is not an edge", pos.X, pos.Y)
	}
	if s.Board[pos.Y][pos.X] != CellEmpty {
		return ErrCellOccupied
	}
	return nil
}

// adjacentBoxes lists the one or two box cells an edge borders.
func adjacentBoxes(b Board, x, y int) []Point {
	var cand []Point
	if x%2 == 1 {
		cand = []Point{{x, y - 1}, {x, y + 1}}
	} else {
		cand = []Point{{x - 1, y}, {x + 1, y}}
	}
	var out []Point
	for _, p := range cand {
		if b.InBounds(p.X, p.Y) {
			out = append(out, p)
		}
	}
	return out
}

func boxClosed(b Board, p Point) bool {
	return b[p.Y-1][p.X] == CellEdge && b[p.Y+1][p.X] == CellEdge &&
		b[p.Y][p.X-1] == CellEdge && b[p.Y][p.X+1] == CellEdge
}

func (e DotsEngine) ApplyMove(s *GameState, pos Position, player Player) (*GameState, error) {
	if err := e.IsValidMove(s, pos, player); err != nil {
		return nil, err
	}
	next := s.Clone()
	b := next.Board
	b[pos.Y][pos.X] = CellEdge
	claimed := false
	for _, box := range adjacentBoxes(b, pos.X, pos.Y) {
		if b[box.Y][box.X] == CellEmpty && boxClosed(b, box) {
			b[box.Y][box.X] = player.Stone()
			claimed = true
		}
	}
	next.record(At(pos.X, pos.Y), player)
	if claimed {
		next.CurrentTurn = player
	} else {
		next.CurrentTurn = player.Opponent()
	}
	return next, nil
}

func (e DotsEngine) CheckWinner(s *GameState, _ Move) Player {
	if !e.Exhausted(s) {
		return NoPlayer
	}
	black, white := s.Board.Count(CellBlack), s.Board.Count(CellWhite)
	switch {
	case black > white:
		return Black
	case white > black:
		return White
	}
	return NoPlayer
}

func (DotsEngine) Exhausted(s *GameState) bool {
	b := s.Board
	for y := range b {
		for x := range b[y] {
			if isEdge(x, y) && b[y][x] == CellEmpty {
				return false
			}
		}
	}
	return true
}
