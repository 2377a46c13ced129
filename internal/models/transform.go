package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Transform is an affine mapping from array indices to world coordinates,
// stored as a homogeneous (n+1)x(n+1) matrix. A nil *Transform means the
// decoder reported no geometry.
type Transform struct {
	m *mat.Dense
}

// Identity returns the identity transform for ndim axes
func Identity(ndim int) *Transform {
	m := mat.NewDense(ndim+1, ndim+1, nil)
	for i := 0; i <= ndim; i++ {
		m.Set(i, i, 1)
	}
	return &Transform{m: m}
}

// NewAffine builds the transform rotate * diag(scale) followed by translate.
// rotate holds a row-major ndim x ndim direction matrix; nil means no rotation.
// translate may be nil.
func NewAffine(scale, translate, rotate []float64) (*Transform, error) {
	n := len(scale)
	if n == 0 {
		return nil, fmt.Errorf("affine needs at least one axis")
	}
	if translate != nil && len(translate) != n {
		return nil, fmt.Errorf("translate has %d values, want %d", len(translate), n)
	}
	if rotate != nil && len(rotate) != n*n {
		return nil, fmt.Errorf("rotate has %d values, want %d", len(rotate), n*n)
	}

	var r *mat.Dense
	if rotate == nil {
		r = mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			r.Set(i, i, 1)
		}
	} else {
		r = mat.NewDense(n, n, append([]float64(nil), rotate...))
	}

	s := mat.NewDiagDense(n, append([]float64(nil), scale...))
	var linear mat.Dense
	linear.Mul(r, s)

	m := mat.NewDense(n+1, n+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.Set(i, j, linear.At(i, j))
		}
		if translate != nil {
			m.Set(i, n, translate[i])
		}
	}
	m.Set(n, n, 1)

	return &Transform{m: m}, nil
}

// NDim returns the number of spatial axes the transform acts on
func (t *Transform) NDim() int {
	r, _ := t.m.Dims()
	return r - 1
}

// Matrix returns a copy of the homogeneous matrix
func (t *Transform) Matrix() *mat.Dense {
	return mat.DenseCopyOf(t.m)
}

// Apply maps an index-space point to world coordinates
func (t *Transform) Apply(point []float64) ([]float64, error) {
	n := t.NDim()
	if len(point) != n {
		return nil, fmt.Errorf("point has %d coordinates, want %d", len(point), n)
	}
	h := mat.NewVecDense(n+1, append(append([]float64(nil), point...), 1))
	var out mat.VecDense
	out.MulVec(t.m, h)

	res := make([]float64, n)
	for i := range res {
		res[i] = out.AtVec(i)
	}
	return res, nil
}

// IsIdentity reports whether the transform leaves every point unchanged
func (t *Transform) IsIdentity() bool {
	return mat.Equal(t.m, Identity(t.NDim()).m)
}
