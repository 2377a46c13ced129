package models

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Array holds decoded N-dimensional image data.
// Data is stored in row-major order with the last axis varying fastest, so a
// volume of shape {depth, height, width} keeps voxel (z, y, x) at
// z*height*width + y*width + x, the same layout the slice viewer expects.
type Array struct {
	// Shape is the extent of every axis
	Shape []int

	// Data holds the element values
	Data []float64

	// Channels is the size of a trailing per-pixel component axis, such as
	// 3 for RGB. 0 or 1 means every element is a scalar sample.
	Channels int
}

// NewArray allocates a zero-filled array with the given shape.
// A shape whose element count overflows gets no data and is not Valid.
func NewArray(shape ...int) *Array {
	a := &Array{Shape: append([]int(nil), shape...)}
	if n := a.Len(); n > 0 {
		a.Data = make([]float64, n)
	}
	return a
}

// ChannelCount returns the number of components per pixel, at least 1
func (a *Array) ChannelCount() int {
	if a.Channels > 1 && len(a.Shape) > 1 && a.Shape[len(a.Shape)-1] == a.Channels {
		return a.Channels
	}
	return 1
}

// Spatial returns the shape without the trailing channel axis
func (a *Array) Spatial() []int {
	if a.ChannelCount() > 1 {
		return a.Shape[:len(a.Shape)-1]
	}
	return a.Shape
}

// NDim returns the number of axes
func (a *Array) NDim() int {
	return len(a.Shape)
}

// Len returns the number of elements implied by Shape, or -1 when the
// product overflows an int
func (a *Array) Len() int {
	if len(a.Shape) == 0 {
		return 0
	}
	n := 1
	for _, s := range a.Shape {
		if s <= 0 {
			return 0
		}
		if n > math.MaxInt/s {
			return -1
		}
		n *= s
	}
	return n
}

// Valid reports whether every axis is positive and Data matches Shape
func (a *Array) Valid() bool {
	if a == nil || len(a.Shape) == 0 {
		return false
	}
	for _, s := range a.Shape {
		if s <= 0 {
			return false
		}
	}
	n := a.Len()
	return n > 0 && len(a.Data) == n
}

// Offset converts per-axis indices to a position in Data.
// It returns -1 if the index count or any index is out of range.
func (a *Array) Offset(idx ...int) int {
	if len(idx) != len(a.Shape) {
		return -1
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= a.Shape[i] {
			return -1
		}
		off = off*a.Shape[i] + v
	}
	return off
}

// At returns the element at the given per-axis indices, or 0 when out of range
func (a *Array) At(idx ...int) float64 {
	off := a.Offset(idx...)
	if off < 0 || off >= len(a.Data) {
		return 0
	}
	return a.Data[off]
}

// Range returns the minimum and maximum element values
func (a *Array) Range() (lo, hi float64) {
	if a == nil || len(a.Data) == 0 {
		return 0, 0
	}
	return floats.Min(a.Data), floats.Max(a.Data)
}

// Stats returns the mean and standard deviation of the element values
func (a *Array) Stats() (mean, std float64) {
	if a == nil || len(a.Data) == 0 {
		return 0, 0
	}
	if len(a.Data) == 1 {
		return a.Data[0], 0
	}
	return stat.MeanStdDev(a.Data, nil)
}

// SizeBytes approximates the memory held by Data
func (a *Array) SizeBytes() int {
	if a == nil {
		return 0
	}
	return len(a.Data) * 8
}
