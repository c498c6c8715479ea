package valueobjects

import (
	"math"

	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// Position is a node's coordinate in its owner's canvas space
type Position struct {
	x float64
	y float64
}

// Origin is the default position of a new node.
var Origin = Position{}

// NewPosition creates a position with validation
func NewPosition(x, y float64) (Position, error) {
	if !isValidCoordinate(x) || !isValidCoordinate(y) {
		return Position{}, pkgerrors.NewValidationError("invalid coordinates: must be finite numbers")
	}
	return Position{x: x, y: y}, nil
}

// X returns the X coordinate
func (p Position) X() float64 {
	return p.x
}

// Y returns the Y coordinate
func (p Position) Y() float64 {
	return p.y
}

// WithX returns a copy with x replaced
func (p Position) WithX(x float64) (Position, error) {
	return NewPosition(x, p.y)
}

// WithY returns a copy with y replaced
func (p Position) WithY(y float64) (Position, error) {
	return NewPosition(p.x, y)
}

// Equals checks if two positions are equal
func (p Position) Equals(other Position) bool {
	const epsilon = 1e-9
	return math.Abs(p.x-other.x) < epsilon && math.Abs(p.y-other.y) < epsilon
}

func isValidCoordinate(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
