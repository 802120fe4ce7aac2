package rules

// OthelloEngine plays 8×8 Othello. A side with no legal move passes; the
// game ends when neither side can move and the larger disc count wins.
type OthelloEngine struct{}

const othelloSize = 8

var compass = [8]Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}

func (OthelloEngine) Type() GameType { return Othello }

func (OthelloEngine) NewState() *GameState {
	b := NewBoard(othelloSize, othelloSize)
	b[3][3], b[4][4] = CellWhite, CellWhite
	b[3][4], b[4][3] = CellBlack, CellBlack
	return newState(Othello, b)
}

// flips lists the discs that placing player's disc at (x,y) would turn over.
func othelloFlips(b Board, x, y int, player Player) []Point {
	if !b.InBounds(x, y) || b[y][x] != CellEmpty {
		return nil
	}
	own, other := player.Stone(), player.Opponent().Stone()
	var out []Point
	for _, d := range compass {
		var line []Point
		cx, cy := x+d.X, y+d.Y
		for b.InBounds(cx, cy) && b[cy][cx] == other {
			line = append(line, Point{cx, cy})
			cx, cy = cx+d.X, cy+d.Y
		}
		if len(line) > 0 && b.InBounds(cx, cy) && b[cy][cx] == own {
			out = append(out, line...)
		}
	}
	return out
}

func othelloCanMove(b Board, player Player) bool {
	for y := 0; y < othelloSize; y++ {
		for x := 0; x < othelloSize; x++ {
			if len(othelloFlips(b, x, y, player)) > 0 {
				return true
			}
		}
	}
	return false
}

func (OthelloEngine) IsValidMove(s *GameState, pos Position, player Player) error {
	if err := precheck(s, player); err != nil {
		return err
	}
	if !s.Board.InBounds(pos.X, pos.Y) {
		return ErrOutOfBounds
	}
	if s.Board[pos.Y][pos.X] != CellEmpty {
		return ErrCellOccupied
	}
	if len(othelloFlips(s.Board, pos.X, pos.Y, player)) == 0 {
		return illegal("move at %s flips no discs", pos)
	}
	return nil
}

func (e OthelloEngine) ApplyMove(s *GameState, pos Position, player Player) (*GameState, error) {
	if err := e.IsValidMove(s, pos, player); err != nil {
		return nil, err
	}
	next := s.Clone()
	for _, p := range othelloFlips(s.Board, pos.X, pos.Y, player) {
		next.Board[p.Y][p.X] = player.Stone()
	}
	next.Board[pos.Y][pos.X] = player.Stone()
	next.record(At(pos.X, pos.Y), player)
	if othelloCanMove(next.Board, player.Opponent()) {
		next.CurrentTurn = player.Opponent()
	} else {
		next.CurrentTurn = player
	}
	return next, nil
}

func (e OthelloEngine) CheckWinner(s *GameState, _ Move) Player {
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

func (OthelloEngine) Exhausted(s *GameState) bool {
	return !othelloCanMove(s.Board, Black) && !othelloCanMove(s.Board, White)
}
