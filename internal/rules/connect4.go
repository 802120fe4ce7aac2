package rules

// Connect4Engine drops discs into a 7-column, 6-row grid. Only Position.X is
// read from the caller; the landing row is recorded in the move log.
type Connect4Engine struct{}

const (
	connect4Cols = 7
	connect4Rows = 6
)

func (Connect4Engine) Type() GameType { return Connect4 }

func (Connect4Engine) NewState() *GameState {
	return newState(Connect4, NewBoard(connect4Cols, connect4Rows))
}

// landingRow returns the lowest empty row of column x, or -1 when full.
func landingRow(b Board, x int) int {
	for y := b.Height() - 1; y >= 0; y-- {
		if b[y][x] == CellEmpty {
			return y
		}
	}
	return -1
}

func (Connect4Engine) IsValidMove(s *GameState, pos Position, player Player) error {
	if err := precheck(s, player); err != nil {
		return err
	}
	if pos.X < 0 || pos.X >= s.Board.Width() {
		return ErrOutOfBounds
	}
	if landingRow(s.Board, pos.X) < 0 {
		return ErrCellOccupied
	}
	return nil
}

func (e Connect4Engine) ApplyMove(s *GameState, pos Position, player Player) (*GameState, error) {
	if err := e.IsValidMove(s, pos, player); err != nil {
		return nil, err
	}
	next := s.Clone()
	y := landingRow(next.Board, pos.X)
	next.Board[y][pos.X] = player.Stone()
	next.record(At(pos.X, y), player)
	next.CurrentTurn = player.Opponent()
	return next, nil
}

func (Connect4Engine) CheckWinner(s *GameState, last Move) Player {
	stone := s.Board.At(last.X, last.Y)
	if stone.Owner() == NoPlayer {
		return NoPlayer
	}
	for _, d := range axes {
		if runLength(s.Board, last.X, last.Y, d, stone) >= 4 {
			return stone.Owner()
		}
	}
	return NoPlayer
}

func (Connect4Engine) Exhausted(s *GameState) bool {
	for x := 0; x < s.Board.Width(); x++ {
		if s.Board[0][x] == CellEmpty {
			return false
		}
	}
	return true
}

func (e Connect4Engine) LegalMoves(s *GameState, player Player) []Position {
	var out []Position
	for x := 0; x < s.Board.Width(); x++ {
		if e.IsValidMove(s, At(x, 0), player) == nil {
			out = append(out, At(x, 0))
		}
	}
	return out
}
