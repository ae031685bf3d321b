// Copyright (c) 2021 PaddlePaddle Authors. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tensor

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
)

// Matrix is a dense row-major float64 matrix
type Matrix struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// New returns a zero matrix of rows x cols
func New(rows, cols int) *Matrix {
	return &Matrix{
		Rows: rows,
		Cols: cols,
		Data: make([]float64, rows*cols),
	}
}

// FromRows copies a [][]float64 into a new Matrix, all rows must have the same length
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return New(0, 0), nil
	}
	m := New(len(rows), len(rows[0]))
	for i, r := range rows {
		if len(r) != m.Cols {
			return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "row %d has %d columns, expected %d", i, len(r), m.Cols)
		}
		copy(m.Data[i*m.Cols:], r)
	}
	return m, nil
}

// Column returns an n x 1 matrix holding v
func Column(v []float64) *Matrix {
	m := New(len(v), 1)
	copy(m.Data, v)
	return m
}

func (m *Matrix) At(i, j int) float64 {
	return m.Data[i*m.Cols+j]
}

func (m *Matrix) Set(i, j int, v float64) {
	m.Data[i*m.Cols+j] = v
}

// Row returns a copy of row i
func (m *Matrix) Row(i int) []float64 {
	r := make([]float64, m.Cols)
	copy(r, m.Data[i*m.Cols:(i+1)*m.Cols])
	return r
}

// Clone deep copies m
func (m *Matrix) Clone() *Matrix {
	if m == nil {
		return nil
	}
	c := New(m.Rows, m.Cols)
	copy(c.Data, m.Data)
	return c
}

// SameShape reports whether m and o have the same dimensions
func (m *Matrix) SameShape(o *Matrix) bool {
	return m.Rows == o.Rows && m.Cols == o.Cols
}

// T returns the transpose of m
func (m *Matrix) T() *Matrix {
	t := New(m.Cols, m.Rows)
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			t.Data[j*t.Cols+i] = m.Data[i*m.Cols+j]
		}
	}
	return t
}

// Mul computes a·b
func Mul(a, b *Matrix) (*Matrix, error) {
	if a.Cols != b.Rows {
		return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "can not multiply %s by %s", a.shape(), b.shape())
	}
	r := New(a.Rows, b.Cols)
	for i := 0; i < a.Rows; i++ {
		for k := 0; k < a.Cols; k++ {
			aik := a.Data[i*a.Cols+k]
			if aik == 0 {
				continue
			}
			for j := 0; j < b.Cols; j++ {
				r.Data[i*r.Cols+j] += aik * b.Data[k*b.Cols+j]
			}
		}
	}
	return r, nil
}

// Add computes a + b
func Add(a, b *Matrix) (*Matrix, error) {
	return zip(a, b, func(x, y float64) float64 { return x + y })
}

// Sub computes a - b
func Sub(a, b *Matrix) (*Matrix, error) {
	return zip(a, b, func(x, y float64) float64 { return x - y })
}

// Dot returns the sum of the element-wise product of a and b
func Dot(a, b *Matrix) (float64, error) {
	if !a.SameShape(b) {
		return 0, errorx.New(errcodes.ErrCodeDimensionMismatch, "can not dot %s with %s", a.shape(), b.shape())
	}
	var s float64
	for i := range a.Data {
		s += a.Data[i] * b.Data[i]
	}
	return s, nil
}

// Scale returns s*m
func (m *Matrix) Scale(s float64) *Matrix {
	return m.Apply(func(v float64) float64 { return s * v })
}

// Apply returns a new matrix with f applied to every element
func (m *Matrix) Apply(f func(float64) float64) *Matrix {
	r := New(m.Rows, m.Cols)
	for i, v := range m.Data {
		r.Data[i] = f(v)
	}
	return r
}

// Sum returns the sum of all elements
func (m *Matrix) Sum() float64 {
	var s float64
	for _, v := range m.Data {
		s += v
	}
	return s
}

// SliceCols returns a copy of columns [from, to)
func (m *Matrix) SliceCols(from, to int) (*Matrix, error) {
	if from < 0 || to > m.Cols || from > to {
		return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "invalid column range [%d, %d) of %s", from, to, m.shape())
	}
	r := New(m.Rows, to-from)
	for i := 0; i < m.Rows; i++ {
		copy(r.Data[i*r.Cols:(i+1)*r.Cols], m.Data[i*m.Cols+from:i*m.Cols+to])
	}
	return r, nil
}

// SliceRows returns a copy of rows [from, to)
func (m *Matrix) SliceRows(from, to int) (*Matrix, error) {
	if from < 0 || to > m.Rows || from > to {
		return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "invalid row range [%d, %d) of %s", from, to, m.shape())
	}
	r := New(to-from, m.Cols)
	copy(r.Data, m.Data[from*m.Cols:to*m.Cols])
	return r, nil
}

// PickRows returns a copy of the rows listed in idx
func (m *Matrix) PickRows(idx []int) *Matrix {
	r := New(len(idx), m.Cols)
	for k, i := range idx {
		copy(r.Data[k*r.Cols:(k+1)*r.Cols], m.Data[i*m.Cols:(i+1)*m.Cols])
	}
	return r
}

// EqualApprox reports whether a and b have the same shape and all elements within tol
func EqualApprox(a, b *Matrix, tol float64) bool {
	if !a.SameShape(b) {
		return false
	}
	for i := range a.Data {
		if math.Abs(a.Data[i]-b.Data[i]) > tol {
			return false
		}
	}
	return true
}

func (m *Matrix) String() string {
	var sb strings.Builder
	sb.WriteString(m.shape())
	sb.WriteString("[")
	for i := 0; i < m.Rows; i++ {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(fmt.Sprint(m.Row(i)))
	}
	sb.WriteString("]")
	return sb.String()
}

func (m *Matrix) shape() string {
	return fmt.Sprintf("(%dx%d)", m.Rows, m.Cols)
}

func zip(a, b *Matrix, f func(x, y float64) float64) (*Matrix, error) {
	if !a.SameShape(b) {
		return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "shape %s does not match %s", a.shape(), b.shape())
	}
	r := New(a.Rows, a.Cols)
	for i := range a.Data {
		r.Data[i] = f(a.Data[i], b.Data[i])
	}
	return r, nil
}

// Params is a named set of model parameters
type Params map[string]*Matrix

// Clone deep copies every parameter
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	c := make(Params, len(p))
	for name, m := range p {
		c[name] = m.Clone()
	}
	return c
}

// Names returns parameter names in lexical order
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
