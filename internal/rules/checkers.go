package rules

// CheckersEngine plays American checkers on the dark squares of an 8×8 board.
// Black starts on the bottom three rows and moves up. Captures are mandatory and
// a piece that captured must keep jumping while it can; reaching the far row
// crowns the piece and ends the turn.
type CheckersEngine struct{}

const checkersSize = 8

func (CheckersEngine) Type() GameType { return Checkers }

func (CheckersEngine) NewState() *GameState {
	b := NewBoard(checkersSize, checkersSize)
	for y := 0; y < checkersSize; y++ {
		for x := 0; x < checkersSize; x++ {
			if (x+y)%2 == 0 {
				continue
			}
			switch {
			case y < 3:
				b[y][x] = CellWhite
			case y > 4:
				b[y][x] = CellBlack
			}
		}
	}
	return newState(Checkers, b)
}

func isKing(c Cell) bool { return c == CellBlackKing || c == CellWhiteKing }

// forward is the row direction a player's men move in.
func forward(p Player) int {
	if p == Black {
		return -1
	}
	return 1
}

func pieceDirs(c Cell) []Point {
	p := c.Owner()
	if isKing(c) {
		return []Point{{1, 1}, {-1, 1}, {1, -1}, {-1, -1}}
	}
	f := forward(p)
	return []Point{{1, f}, {-1, f}}
}

func checkerJumps(b Board, from Point) []Position {
	c := b.At(from.X, from.Y)
	p := c.Owner()
	var out []Position
	for _, d := range pieceDirs(c) {
		mx, my := from.X+d.X, from.Y+d.Y
		tx, ty := from.X+2*d.X, from.Y+2*d.Y
		if !b.InBounds(tx, ty) || b[ty][tx] != CellEmpty {
			continue
		}
		if b.At(mx, my).Owner() == p.Opponent() {
			out = append(out, Position{X: from.X, Y: from.Y, Dest: &Point{tx, ty}})
		}
	}
	return out
}

func checkerSteps(b Board, from Point) []Position {
	c := b.At(from.X, from.Y)
	var out []Position
	for _, d := range pieceDirs(c) {
		tx, ty := from.X+d.X, from.Y+d.Y
		if b.InBounds(tx, ty) && b[ty][tx] == CellEmpty {
			out = append(out, Position{X: from.X, Y: from.Y, Dest: &Point{tx, ty}})
		}
	}
	return out
}

// checkersMoves lists legal moves for player, honouring forced captures and
// a pending multi-jump.
func checkersMoves(s *GameState, player Player) []Position {
	b := s.Board
	if s.Pending != nil {
		return checkerJumps(b, *s.Pending)
	}
	var jumps, steps []Position
	for y := 0; y < b.Height(); y++ {
		for x := 0; x < b.Width(); x++ {
			if b[y][x].Owner() != player {
				continue
			}
			jumps = append(jumps, checkerJumps(b, Point{x, y})...)
			steps = append(steps, checkerSteps(b, Point{x, y})...)
		}
	}
	if len(jumps) > 0 {
		return jumps
	}
	return steps
}

func (CheckersEngine) IsValidMove(s *GameState, pos Position, player Player) error {
	if err := precheck(s, player); err != nil {
		return err
	}
	b := s.Board
	if pos.Dest == nil {
		return illegal("checkers move needs a destination")
	}
	if !b.InBounds(pos.X, pos.Y) || !b.InBounds(pos.Dest.X, pos.Dest.Y) {
		return ErrOutOfBounds
	}
	if b[pos.Dest.Y][pos.Dest.X] != CellEmpty {
		return ErrCellOccupied
	}
	if b[pos.Y][pos.X].Owner() != player {
		return illegal("no %s piece at (%d,%d)", player, pos.X, pos.Y)
	}
	for _, m := range checkersMoves(s, player) {
		if m.X == pos.X && m.Y == pos.Y && *m.Dest == *pos.Dest {
			return nil
		}
	}
	if s.Pending != nil {
		return illegal("piece at (%d,%d) must continue jumping", s.Pending.X, s.Pending.Y)
	}
	return illegal("%s is not a legal move", pos)
}

func (e CheckersEngine) ApplyMove(s *GameState, pos Position, player Player) (*GameState, error) {
	if err := e.IsValidMove(s, pos, player); err != nil {
		return nil, err
	}
	next := s.Clone()
	b := next.Board
	piece := b[pos.Y][pos.X]
	b[pos.Y][pos.X] = CellEmpty
	dest := *pos.Dest
	jumped := abs(dest.X-pos.X) == 2
	if jumped {
		b[(pos.Y+dest.Y)/2][(pos.X+dest.X)/2] = CellEmpty
	}
	crowned := false
	if !isKing(piece) && ((player == Black && dest.Y == 0) || (player == White && dest.Y == checkersSize-1)) {
		if player == Black {
			piece = CellBlackKing
		} else {
			piece = CellWhiteKing
		}
		crowned = true
	}
	b[dest.Y][dest.X] = piece

	d := dest
	next.record(Position{X: pos.X, Y: pos.Y, Dest: &d}, player)
	next.Pending = nil
	if jumped && !crowned && len(checkerJumps(b, dest)) > 0 {
		p := dest
		next.Pending = &p
		next.CurrentTurn = player
	} else {
		next.CurrentTurn = player.Opponent()
	}
	return next, nil
}

// CheckWinner awards the game to last's player once the opponent, now to
// move, has no piece or no legal move.
func (CheckersEngine) CheckWinner(s *GameState, last Move) Player {
	if s.CurrentTurn != last.Player.Opponent() {
		return NoPlayer
	}
	if len(checkersMoves(s, s.CurrentTurn)) == 0 {
		return last.Player
	}
	return NoPlayer
}

func (CheckersEngine) Exhausted(s *GameState) bool {
	return len(checkersMoves(s, s.CurrentTurn)) == 0
}

func (CheckersEngine) LegalMoves(s *GameState, player Player) []Position {
	if s.Over() || player != s.CurrentTurn {
		return nil
	}
	return checkersMoves(s, player)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
