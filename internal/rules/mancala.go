package rules

// MancalaEngine plays Kalah with six pits of four stones per side. Board row 0
// holds black's pits (columns 0-5) and store (column 6); row 1 holds white's.
// Cells are stone counts. Only Position.X (the pit) is read from the caller.
type MancalaEngine struct{}

const (
	mancalaPits   = 6
	mancalaStones = 4
	mancalaStore  = mancalaPits
	mancalaRing   = 2 * (mancalaPits + 1)
)

func (MancalaEngine) Type() GameType { return Mancala }

func (MancalaEngine) NewState() *GameState {
	b := NewBoard(mancalaPits+1, 2)
	for row := 0; row < 2; row++ {
		for x := 0; x < mancalaPits; x++ {
			b[row][x] = mancalaStones
		}
	}
	return newState(Mancala, b)
}

// ringCell maps a sowing index (0-13, counter-clockwise from black's first pit)
// onto the board.
func ringCell(i int) (x, y int) {
	if i <= mancalaStore {
		return i, 0
	}
	return i - (mancalaStore + 1), 1
}

func storeIndex(p Player) int {
	if p == Black {
		return mancalaStore
	}
	return mancalaRing - 1
}

func sideEmpty(b Board, row int) bool {
	for x := 0; x < mancalaPits; x++ {
		if b[row][x] != 0 {
			return false
		}
	}
	return true
}

func (MancalaEngine) IsValidMove(s *GameState, pos Position, player Player) error {
	if err := precheck(s, player); err != nil {
		return err
	}
	if pos.X < 0 || pos.X >= mancalaPits {
		return ErrOutOfBounds
	}
	if s.Board[player.index()][pos.X] == 0 {
		return illegal("pit %d is empty", pos.X)
	}
	return nil
}

func (e MancalaEngine) ApplyMove(s *GameState, pos Position, player Player) (*GameState, error) {
	if err := e.IsValidMove(s, pos, player); err != nil {
		return nil, err
	}
	next := s.Clone()
	b := next.Board
	row := player.index()
	stones := int(b[row][pos.X])
	b[row][pos.X] = 0

	i := pos.X + row*(mancalaStore+1)
	skip := storeIndex(player.Opponent())
	for stones > 0 {
		i = (i + 1) % mancalaRing
		if i == skip {
			continue
		}
		x, y := ringCell(i)
		b[y][x]++
		stones--
	}

	lx, ly := ringCell(i)
	extraTurn := i == storeIndex(player)
	if !extraTurn && ly == row && lx < mancalaPits && b[ly][lx] == 1 {
		ox, oy := mancalaPits-1-lx, 1-row
		if b[oy][ox] > 0 {
			b[row][mancalaStore] += b[oy][ox] + 1
			b[oy][ox] = 0
			b[ly][lx] = 0
		}
	}

	if sideEmpty(b, 0) || sideEmpty(b, 1) {
		for r := 0; r < 2; r++ {
			for x := 0; x < mancalaPits; x++ {
				b[r][mancalaStore] += b[r][x]
				b[r][x] = 0
			}
		}
	}

	next.record(At(pos.X, row), player)
	if extraTurn {
		next.CurrentTurn = player
	} else {
		next.CurrentTurn = player.Opponent()
	}
	return next, nil
}

// Score returns the stones in each player's store.
func (MancalaEngine) Score(s *GameState) (black, white int) {
	return int(s.Board[0][mancalaStore]), int(s.Board[1][mancalaStore])
}

func (e MancalaEngine) CheckWinner(s *GameState, _ Move) Player {
	if !e.Exhausted(s) {
		return NoPlayer
	}
	black, white := e.Score(s)
	switch {
	case black > white:
		return Black
	case white > black:
		return White
	}
	return NoPlayer
}

func (MancalaEngine) Exhausted(s *GameState) bool {
	return sideEmpty(s.Board, 0) || sideEmpty(s.Board, 1)
}

func (e MancalaEngine) LegalMoves(s *GameState, player Player) []Position {
	var out []Position
	for x := 0; x < mancalaPits; x++ {
		if e.IsValidMove(s, At(x, player.index()), player) == nil {
			out = append(out, At(x, player.index()))
		}
	}
	return out
}
