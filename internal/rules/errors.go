package rules

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds   = errors.New("position is outside the board")
	ErrCellOccupied  = errors.New("cell is occupied")
	ErrNotYourTurn   = errors.New("not this player's turn")
	ErrGameOver      = errors.New("game is already over")
	ErrIllegalMove   = errors.New("illegal move")
	ErrForbiddenMove = errors.New("forbidden move")
	ErrBadSequence   = errors.New("move log is not contiguous")
)

// ForbiddenReason names the Renju restriction a black move violated.
type ForbiddenReason string

const (
	DoubleThree ForbiddenReason = "double-three"
	DoubleFour  ForbiddenReason = "double-four"
	Overline    ForbiddenReason = "overline"
)

// ForbiddenMoveError is returned for an empty cell the rules still disallow.
type ForbiddenMoveError struct {
	Reason ForbiddenReason
}

func (e *ForbiddenMoveError) Error() string {
	return fmt.Sprintf("forbidden move: %s", e.Reason)
}

func (e *ForbiddenMoveError) Is(target error) bool { return target == ErrForbiddenMove }

// ForbiddenReasonOf extracts the Renju reason from err, if any.
func ForbiddenReasonOf(err error) (ForbiddenReason, bool) {
	var fe *ForbiddenMoveError
	if errors.As(err, &fe) {
		return fe.Reason, true
	}
	return "", false
}

func illegal(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrIllegalMove, fmt.Sprintf(format, args...))
}
