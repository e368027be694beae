package ladder

import (
	"fmt"
	"strings"
)

// Shape distributes take-profit offsets across ladder rungs
type Shape interface {
	// Offsets returns one offset in bps per rung for the given base spacing.
	// Rung i (1-based) starts from the linear progression base*i.
	Offsets(baseBps float64, rungs int) []float64

	// GetName returns the shape name used by CreateShape
	GetName() string
}

// Rungs 1-3 form the near group, rungs 4+ the far group
const nearRungs = 3

// LinearShape spaces rungs evenly: base, 2*base, 3*base, ...
type LinearShape struct{}

func (LinearShape) Offsets(baseBps float64, rungs int) []float64 {
	out := make([]float64, rungs)
	for i := 0; i < rungs; i++ {
		out[i] = baseBps * float64(i+1)
	}
	return out
}

func (LinearShape) GetName() string { return "linear" }

// GroupedShape scales the near and far rungs of the linear progression separately
type GroupedShape struct {
	name    string
	nearMul float64
	farMul  float64
}

func (s GroupedShape) Offsets(baseBps float64, rungs int) []float64 {
	out := LinearShape{}.Offsets(baseBps, rungs)
	for i := range out {
		if i < nearRungs {
			out[i] *= s.nearMul
		} else {
			out[i] *= s.farMul
		}
	}
	return out
}

func (s GroupedShape) GetName() string { return s.name }

// FrontloadShape pulls early rungs toward entry to bank profit quickly
func FrontloadShape() GroupedShape {
	return GroupedShape{name: "frontload", nearMul: 0.7, farMul: 1.4}
}

// BackloadShape keeps early rungs tight and lets the tail run
func BackloadShape() GroupedShape {
	return GroupedShape{name: "backload", nearMul: 0.6, farMul: 1.4}
}

// CreateShape resolves a shape by name
func CreateShape(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "linear", "":
		return LinearShape{}, nil
	case "frontload", "front":
		return FrontloadShape(), nil
	case "backload", "back":
		return BackloadShape(), nil
	default:
		return nil, fmt.Errorf("unknown ladder shape: %s (supported: linear, frontload, backload)", name)
	}
}

// GetAvailableShapes returns the names accepted by CreateShape
func GetAvailableShapes() []string {
	return []string{"linear", "frontload", "backload"}
}
