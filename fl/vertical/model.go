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

package vertical

import (
	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

// ParamWeight names the weight matrix of a party's linear model
const ParamWeight = "w"

// Model is the per-party linear transform x·θ with θ shaped features x output
type Model struct {
	w *tensor.Matrix
}

func NewModel(numFeatures, numOutput int) *Model {
	return &Model{w: tensor.New(numFeatures, numOutput)}
}

// InitParams returns zero parameters shaped for party
func InitParams(party *Party) tensor.Params {
	return tensor.Params{ParamWeight: tensor.New(party.NumFeatures(), party.NumOutput())}
}

// CheckParams verifies params carry a weight matrix of the model's shape
func (m *Model) CheckParams(params tensor.Params) error {
	w, ok := params[ParamWeight]
	if !ok || w == nil {
		return errorx.New(errcodes.ErrCodeParam, "missing parameter %s", ParamWeight)
	}
	if !w.SameShape(m.w) {
		return errorx.New(errcodes.ErrCodeDimensionMismatch, "parameter %s shape (%dx%d), expected (%dx%d)",
			ParamWeight, w.Rows, w.Cols, m.w.Rows, m.w.Cols)
	}
	return nil
}

// CopyParams reseeds the model from params
func (m *Model) CopyParams(params tensor.Params) error {
	if err := m.CheckParams(params); err != nil {
		return err
	}
	m.w = params[ParamWeight].Clone()
	return nil
}

// Forward returns x·θ, one row per sample
func (m *Model) Forward(x *tensor.Matrix) (*tensor.Matrix, error) {
	return tensor.Mul(x, m.w)
}

// Params returns a copy of the current parameters
func (m *Model) Params() tensor.Params {
	return tensor.Params{ParamWeight: m.w.Clone()}
}
