package rules

// BattleshipEngine plays a 10×10 game with the fleet 5,4,3,3,2. Both sides
// alternate placing ships in fleet order (Position is the bow, Vertical the
// orientation, coordinates in the player's own ocean), then alternate shots
// at the opponent's ocean. Board rows 0-9 are black's ocean, rows 10-19 white's.
//
// Both fleets live in the shared state, so a peer could read its opponent's
// layout. That is the accepted trust boundary of a serverless session.
type BattleshipEngine struct{}

const oceanSize = 10

// Fleet is the ship lengths each side places, in order.
var Fleet = []int{5, 4, 3, 3, 2}

func (BattleshipEngine) Type() GameType { return Battleship }

func (BattleshipEngine) NewState() *GameState {
	return newState(Battleship, NewBoard(oceanSize, 2*oceanSize))
}

func oceanRow(p Player) int { return p.index() * oceanSize }

// Placing reports whether the state is still in the setup phase.
func (BattleshipEngine) Placing(s *GameState) bool {
	return s.Placed[0] < len(Fleet) || s.Placed[1] < len(Fleet)
}

func shipCells(pos Position, length int) []Point {
	out := make([]Point, length)
	for i := range out {
		if pos.Vertical {
			out[i] = Point{pos.X, pos.Y + i}
		} else {
			out[i] = Point{pos.X + i, pos.Y}
		}
	}
	return out
}

func inOcean(x, y int) bool { return x >= 0 && x < oceanSize && y >= 0 && y < oceanSize }

func (e BattleshipEngine) IsValidMove(s *GameState, pos Position, player Player) error {
	if err := precheck(s, player); err != nil {
		return err
	}
	if e.Placing(s) {
		n := s.Placed[player.index()]
		if n >= len(Fleet) {
			return illegal("%s has placed every ship", player)
		}
		base := oceanRow(player)
		for _, c := range shipCells(pos, Fleet[n]) {
			if !inOcean(c.X, c.Y) {
				return ErrOutOfBounds
			}
			if s.Board[base+c.Y][c.X] != CellEmpty {
				return ErrCellOccupied
			}
		}
		return nil
	}
	if !inOcean(pos.X, pos.Y) {
		return ErrOutOfBounds
	}
	switch s.Board[oceanRow(player.Opponent())+pos.Y][pos.X] {
	case CellHit, CellMiss:
		return ErrCellOccupied
	}
	return nil
}

func (e BattleshipEngine) ApplyMove(s *GameState, pos Position, player Player) (*GameState, error) {
	if err := e.IsValidMove(s, pos, player); err != nil {
		return nil, err
	}
	next := s.Clone()
	if e.Placing(s) {
		base := oceanRow(player)
		for _, c := range shipCells(pos, Fleet[s.Placed[player.index()]]) {
			next.Board[base+c.Y][c.X] = CellShip
		}
		next.Placed[player.index()]++
		next.record(Position{X: pos.X, Y: pos.Y, Vertical: pos.Vertical}, player)
	} else {
		row := oceanRow(player.Opponent()) + pos.Y
		if next.Board[row][pos.X] == CellShip {
			next.Board[row][pos.X] = CellHit
		} else {
			next.Board[row][pos.X] = CellMiss
		}
		next.record(At(pos.X, pos.Y), player)
	}
	next.CurrentTurn = player.Opponent()
	return next, nil
}

// Ocean returns the rows of player's own ocean.
func (BattleshipEngine) Ocean(s *GameState, player Player) Board {
	base := oceanRow(player)
	return s.Board[base : base+oceanSize]
}

func (e BattleshipEngine) CheckWinner(s *GameState, last Move) Player {
	if e.Placing(s) {
		return NoPlayer
	}
	target := e.Ocean(s, last.Player.Opponent())
	if target.Count(CellShip) == 0 {
		return last.Player
	}
	return NoPlayer
}

// Exhausted is never true: every shot phase ends with a sunk fleet.
func (BattleshipEngine) Exhausted(*GameState) bool { return false }

func (e BattleshipEngine) LegalMoves(s *GameState, player Player) []Position {
	var out []Position
	for y := 0; y < oceanSize; y++ {
		for x := 0; x < oceanSize; x++ {
			for _, vertical := range []bool{false, true} {
				pos := Position{X: x, Y: y, Vertical: vertical}
				if !e.Placing(s) {
					pos.Vertical = false
				}
				if e.IsValidMove(s, pos, player) == nil {
					out = append(out, pos)
				}
				if !e.Placing(s) {
					break
				}
			}
		}
	}
	return out
}
