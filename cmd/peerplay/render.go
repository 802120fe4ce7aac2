package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jason-s-yu/peerplay/internal/rules"
)

// parseMove reads a move typed as space separated numbers:
//
//	connect4, mancala   COL
//	checkers            X Y DX DY
//	battleship          X Y [v|h]   (v places a ship vertically)
//	everything else     X Y
func parseMove(game rules.GameType, fields []string) (rules.Position, error) {
	ints := func(want int) ([]int, error) {
		if len(fields) < want {
			return nil, fmt.Errorf("%s needs %d numbers", game, want)
		}
		out := make([]int, want)
		for i := range out {
			n, err := strconv.Atoi(fields[i])
			if err != nil {
				return nil, fmt.Errorf("bad number %q", fields[i])
			}
			out[i] = n
		}
		return out, nil
	}

	switch game {
	case rules.Connect4, rules.Mancala:
		n, err := ints(1)
		if err != nil || len(fields) != 1 {
			return rules.Position{}, fmt.Errorf("%s moves are a single column", game)
		}
		return rules.At(n[0], 0), nil
	case rules.Checkers:
		n, err := ints(4)
		if err != nil || len(fields) != 4 {
			return rules.Position{}, fmt.Errorf("checkers moves are X Y DX DY")
		}
		return rules.Position{X: n[0], Y: n[1], Dest: &rules.Point{X: n[2], Y: n[3]}}, nil
	case rules.Battleship:
		n, err := ints(2)
		if err != nil || len(fields) > 3 {
			return rules.Position{}, fmt.Errorf("battleship moves are X Y [v|h]")
		}
		pos := rules.At(n[0], n[1])
		if len(fields) == 3 {
			switch strings.ToLower(fields[2]) {
			case "v":
				pos.Vertical = true
			case "h":
			default:
				return rules.Position{}, fmt.Errorf("orientation must be v or h, got %q", fields[2])
			}
		}
		return pos, nil
	}
	n, err := ints(2)
	if err != nil || len(fields) != 2 {
		return rules.Position{}, fmt.Errorf("%s moves are X Y", game)
	}
	return rules.At(n[0], n[1]), nil
}

func glyph(c rules.Cell) string {
	switch c {
	case rules.CellBlack:
		return "X"
	case rules.CellWhite:
		return "O"
	case rules.CellBlackKing:
		return "B"
	case rules.CellWhiteKing:
		return "W"
	case rules.CellShip:
		return "#"
	case rules.CellHit:
		return "*"
	case rules.CellMiss:
		return "~"
	case rules.CellEdge:
		return "+"
	}
	return "."
}

// renderBoard draws the board for me. Opponent ships are hidden.
func renderBoard(g *rules.GameState, me rules.Player) string {
	var sb strings.Builder
	if g.Game == rules.Mancala {
		// Cells are stone counts; column 6 of each row is the store.
		row := func(y int) {
			for x := 0; x < g.Board.Width(); x++ {
				fmt.Fprintf(&sb, "%3d", g.Board.At(x, y))
			}
			sb.WriteByte('\n')
		}
		sb.WriteString("white ")
		row(1)
		sb.WriteString("black ")
		row(0)
		return sb.String()
	}

	hideFrom := -1
	if g.Game == rules.Battleship {
		hideFrom = 10
		if me == rules.White {
			hideFrom = 0
		}
	}
	sb.WriteString("   ")
	for x := 0; x < g.Board.Width(); x++ {
		fmt.Fprintf(&sb, "%2d", x)
	}
	sb.WriteByte('\n')
	for y := 0; y < g.Board.Height(); y++ {
		fmt.Fprintf(&sb, "%2d ", y)
		for x := 0; x < g.Board.Width(); x++ {
			c := g.Board.At(x, y)
			if c == rules.CellShip && hideFrom >= 0 && y >= hideFrom && y < hideFrom+10 {
				c = rules.CellEmpty
			}
			fmt.Fprintf(&sb, " %s", glyph(c))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
