// internal/rules/types.go
package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GameType identifies which rule set a room and a session use.
type GameType string

const (
	Gomoku     GameType = "gomoku"
	Othello    GameType = "othello"
	Connect4   GameType = "connect4"
	Checkers   GameType = "checkers"
	Mancala    GameType = "mancala"
	Battleship GameType = "battleship"
	Dots       GameType = "dots"
)

// GameTypes lists every supported game in a stable order.
var GameTypes = []GameType{Gomoku, Othello, Connect4, Checkers, Mancala, Battleship, Dots}

// ParseGameType accepts the canonical name, case-insensitively.
func ParseGameType(s string) (GameType, error) {
	g := GameType(strings.ToLower(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("unknown game type %q", s)
	}
	return g, nil
}

func (g GameType) Valid() bool {
	for _, t := range GameTypes {
		if t == g {
			return true
		}
	}
	return false
}

func (g GameType) String() string { return string(g) }

// Player tags a side. Black always moves first.
type Player string

const (
	NoPlayer Player = ""
	Black    Player = "black"
	White    Player = "white"
)

// Opponent returns the other side; NoPlayer has no opponent.
func (p Player) Opponent() Player {
	switch p {
	case Black:
		return White
	case White:
		return Black
	}
	return NoPlayer
}

func (p Player) Valid() bool { return p == Black || p == White }

// Stone is the plain board cell for the player's piece.
func (p Player) Stone() Cell {
	switch p {
	case Black:
		return CellBlack
	case White:
		return CellWhite
	}
	return CellEmpty
}

// index maps black to 0 and white to 1 for per-side counters.
func (p Player) index() int {
	if p == White {
		return 1
	}
	return 0
}

// Cell is the content of one board square. Mancala reuses cells as stone counts.
type Cell int

const (
	CellEmpty Cell = iota
	CellBlack
	CellWhite
	CellBlackKing
	CellWhiteKing
	CellShip
	CellHit
	CellMiss
	CellEdge
)

func (c Cell) String() string {
	switch c {
	case CellEmpty:
		return "empty"
	case CellBlack:
		return "black"
	case CellWhite:
		return "white"
	case CellBlackKing:
		return "black_king"
	case CellWhiteKing:
		return "white_king"
	case CellShip:
		return "ship"
	case CellHit:
		return "hit"
	case CellMiss:
		return "miss"
	case CellEdge:
		return "edge"
	}
	return fmt.Sprintf("cell(%d)", int(c))
}

// Owner reports which player a piece belongs to (kings included).
func (c Cell) Owner() Player {
	switch c {
	case CellBlack, CellBlackKing:
		return Black
	case CellWhite, CellWhiteKing:
		return White
	}
	return NoPlayer
}

// Point is a board coordinate, X is the column and Y the row.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Position is a game-specific move coordinate. Most games only use X and Y;
// checkers also needs Dest and battleship ship placement uses Vertical.
type Position struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Dest     *Point `json:"dest,omitempty"`
	Vertical bool   `json:"vertical,omitempty"`
}

// At is a shorthand for a plain coordinate position.
func At(x, y int) Position { return Position{X: x, Y: y} }

func (p Position) Point() Point { return Point{X: p.X, Y: p.Y} }

func (p Position) String() string {
	if p.Dest != nil {
		return fmt.Sprintf("(%d,%d)->(%d,%d)", p.X, p.Y, p.Dest.X, p.Dest.Y)
	}
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Move is one entry of the append-only move log.
type Move struct {
	Position
	Player Player `json:"player"`
	Seq    int    `json:"moveNumber"`
}

// Board is stored row-major: Board[y][x].
type Board [][]Cell

// NewBoard allocates an empty w×h board.
func NewBoard(w, h int) Board {
	b := make(Board, h)
	for y := range b {
		b[y] = make([]Cell, w)
	}
	return b
}

func (b Board) Height() int { return len(b) }

func (b Board) Width() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

func (b Board) InBounds(x, y int) bool {
	return y >= 0 && y < len(b) && x >= 0 && x < len(b[y])
}

// At returns CellEmpty outside the board so scans need no bounds checks.
func (b Board) At(x, y int) Cell {
	if !b.InBounds(x, y) {
		return CellEmpty
	}
	return b[y][x]
}

func (b Board) Clone() Board {
	out := make(Board, len(b))
	for y := range b {
		out[y] = append([]Cell(nil), b[y]...)
	}
	return out
}

// Count returns how many cells match any of the given values.
func (b Board) Count(cells ...Cell) int {
	n := 0
	for _, row := range b {
		for _, c := range row {
			for _, want := range cells {
				if c == want {
					n++
					break
				}
			}
		}
	}
	return n
}

// GameState is produced identically by both peers from the same move log.
type GameState struct {
	Game        GameType `json:"game"`
	Board       Board    `json:"board"`
	CurrentTurn Player   `json:"currentTurn"`
	History     []Move   `json:"history"`
	Winner      Player   `json:"winner,omitempty"`
	Draw        bool     `json:"draw,omitempty"`
	LastMove    *Move    `json:"lastMove,omitempty"`

	// Pending is the checkers piece that must continue a multi-jump.
	Pending *Point `json:"pending,omitempty"`
	// Placed counts ships placed per side during the battleship setup phase.
	Placed [2]int `json:"placed,omitempty"`
}

// Over reports whether the game has reached a terminal state.
func (s *GameState) Over() bool { return s.Winner != NoPlayer || s.Draw }

// Clone deep-copies the state so engines never mutate their input.
func (s *GameState) Clone() *GameState {
	out := *s
	out.Board = s.Board.Clone()
	out.History = append([]Move(nil), s.History...)
	if s.LastMove != nil {
		m := *s.LastMove
		out.LastMove = &m
	}
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	return &out
}

// Equal compares the canonical JSON encoding, which is what both peers would exchange.
func (s *GameState) Equal(o *GameState) bool {
	if s == nil || o == nil {
		return s == o
	}
	a, errA := json.Marshal(s)
	b, errB := json.Marshal(o)
	return errA == nil && errB == nil && string(a) == string(b)
}

// record appends the move to the log; callers have already validated it.
func (s *GameState) record(pos Position, p Player) Move {
	m := Move{Position: pos, Player: p, Seq: len(s.History) + 1}
	s.History = append(s.History, m)
	last := m
	s.LastMove = &last
	return m
}
