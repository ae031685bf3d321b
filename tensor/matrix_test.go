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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
)

func TestMul(t *testing.T) {
	a, err := FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	b, err := FromRows([][]float64{{1}, {-1}})
	require.NoError(t, err)

	c, err := Mul(a, b)
	require.NoError(t, err)
	require.Equal(t, 3, c.Rows)
	require.Equal(t, 1, c.Cols)
	require.Equal(t, []float64{-1, -1, -1}, c.Data)

	_, err = Mul(b, b)
	require.True(t, errorx.Is(err, errcodes.ErrCodeDimensionMismatch))
}

func TestTranspose(t *testing.T) {
	a, err := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	at := a.T()
	require.Equal(t, 3, at.Rows)
	require.Equal(t, 2, at.Cols)
	require.Equal(t, []float64{1, 4, 2, 5, 3, 6}, at.Data)
	require.True(t, EqualApprox(a, at.T(), 0))
}

func TestElementwise(t *testing.T) {
	a := Column([]float64{1, 2, 3})
	b := Column([]float64{0.5, 0.5, 0.5})

	s, err := Add(a, b)
	require.NoError(t, err)
	require.Equal(t, []float64{1.5, 2.5, 3.5}, s.Data)

	d, err := Sub(a, b)
	require.NoError(t, err)
	require.Equal(t, []float64{0.5, 1.5, 2.5}, d.Data)

	dot, err := Dot(a, b)
	require.NoError(t, err)
	require.Equal(t, 3.0, dot)

	require.Equal(t, 6.0, a.Sum())
	require.Equal(t, []float64{2, 4, 6}, a.Scale(2).Data)

	_, err = Add(a, New(2, 1))
	require.Error(t, err)
	_, err = Dot(a, New(3, 2))
	require.Error(t, err)
}

func TestSlice(t *testing.T) {
	a, err := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	require.NoError(t, err)

	cols, err := a.SliceCols(1, 3)
	require.NoError(t, err)
	require.Equal(t, []float64{2, 3, 5, 6, 8, 9}, cols.Data)

	rows, err := a.SliceRows(1, 2)
	require.NoError(t, err)
	require.Equal(t, []float64{4, 5, 6}, rows.Data)

	picked := a.PickRows([]int{2, 0})
	require.Equal(t, []float64{7, 8, 9, 1, 2, 3}, picked.Data)

	_, err = a.SliceCols(2, 4)
	require.Error(t, err)
	_, err = FromRows([][]float64{{1, 2}, {3}})
	require.Error(t, err)
}

func TestParamsClone(t *testing.T) {
	p := Params{"w": Column([]float64{1, 2}), "b": Column([]float64{0})}
	c := p.Clone()
	c["w"].Set(0, 0, 100)
	require.Equal(t, 1.0, p["w"].At(0, 0))
	require.Equal(t, []string{"b", "w"}, p.Names())
	require.Nil(t, Params(nil).Clone())
}
