package rules

import "fmt"

// Engine is the pure rule set of one game. Implementations hold only
// configuration, never per-game state, so both peers can share one value.
type Engine interface {
	Type() GameType
	// NewState returns the initial configuration with black to move.
	NewState() *GameState
	// IsValidMove returns nil when player may play pos on s.
	IsValidMove(s *GameState, pos Position, player Player) error
	// ApplyMove returns a new state with the move appended and the turn advanced.
	ApplyMove(s *GameState, pos Position, player Player) (*GameState, error)
	// CheckWinner reports the winner after last, or NoPlayer. Draws are left to the caller.
	CheckWinner(s *GameState, last Move) Player
	// Exhausted reports that no further move is possible.
	Exhausted(s *GameState) bool
}

// For returns the engine for a game type with its default configuration.
func For(t GameType) (Engine, error) {
	switch t {
	case Gomoku:
		return NewGomoku(), nil
	case Othello:
		return OthelloEngine{}, nil
	case Connect4:
		return Connect4Engine{}, nil
	case Checkers:
		return CheckersEngine{}, nil
	case Mancala:
		return MancalaEngine{}, nil
	case Battleship:
		return BattleshipEngine{}, nil
	case Dots:
		return DotsEngine{Boxes: 5}, nil
	}
	return nil, fmt.Errorf("unsupported game type %q", t)
}

// MustFor is For for callers holding an already validated GameType.
func MustFor(t GameType) Engine {
	e, err := For(t)
	if err != nil {
		panic(err)
	}
	return e
}

// precheck holds the checks every engine shares.
func precheck(s *GameState, player Player) error {
	if s.Over() {
		return ErrGameOver
	}
	if !player.Valid() || player != s.CurrentTurn {
		return ErrNotYourTurn
	}
	return nil
}

// Play validates and applies one move, then settles winner and draw.
// This is the caller that turns an exhausted board without a winner into a draw.
func Play(e Engine, s *GameState, pos Position, player Player) (*GameState, error) {
	next, err := e.ApplyMove(s, pos, player)
	if err != nil {
		return nil, err
	}
	if w := e.CheckWinner(next, *next.LastMove); w != NoPlayer {
		next.Winner = w
	} else if e.Exhausted(next) {
		next.Draw = true
	}
	if next.Over() {
		next.CurrentTurn = NoPlayer
		next.Pending = nil
	}
	return next, nil
}

// Replay folds Play over a move log starting from the initial state.
// The log must be contiguous from sequence number 1.
func Replay(e Engine, moves []Move) (*GameState, error) {
	s := e.NewState()
	for i, m := range moves {
		if m.Seq != i+1 {
			return nil, fmt.Errorf("%w: entry %d has sequence %d", ErrBadSequence, i, m.Seq)
		}
		next, err := Play(e, s, m.Position, m.Player)
		if err != nil {
			return nil, fmt.Errorf("replaying move %d %s: %w", m.Seq, m.Position, err)
		}
		s = next
	}
	return s, nil
}

// LegalMoves enumerates single-cell positions the player could play; games
// with richer positions (checkers, battleship placement) provide their own.
func LegalMoves(e Engine, s *GameState, player Player) []Position {
	if lm, ok := e.(interface {
		LegalMoves(*GameState, Player) []Position
	}); ok {
		return lm.LegalMoves(s, player)
	}
	var out []Position
	for y := 0; y < s.Board.Height(); y++ {
		for x := 0; x < s.Board.Width(); x++ {
			if e.IsValidMove(s, At(x, y), player) == nil {
				out = append(out, At(x, y))
			}
		}
	}
	return out
}

func newState(g GameType, b Board) *GameState {
	return &GameState{
		Game:        g,
		Board:       b,
		CurrentTurn: Black,
		History:     []Move{},
	}
}
