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

package horizontal

import (
	"math"

	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

const (
	ParamWeight = "weight"
	ParamBias   = "bias"
)

// Model is a softmax regression, logits = x·weight + bias
type Model struct {
	numFeatures int
	numClasses  int
	weight      *tensor.Matrix // numFeatures x numClasses
	bias        *tensor.Matrix // 1 x numClasses
}

func NewModel(numFeatures, numClasses int) *Model {
	return &Model{
		numFeatures: numFeatures,
		numClasses:  numClasses,
		weight:      tensor.New(numFeatures, numClasses),
		bias:        tensor.New(1, numClasses),
	}
}

// InitParams returns zero parameters for a model of the given size
func InitParams(numFeatures, numClasses int) tensor.Params {
	return NewModel(numFeatures, numClasses).Params()
}

// CheckParams verifies params hold a weight and a bias of the model's shape
func (m *Model) CheckParams(params tensor.Params) error {
	for name, expected := range map[string]*tensor.Matrix{ParamWeight: m.weight, ParamBias: m.bias} {
		p, ok := params[name]
		if !ok || p == nil {
			return errorx.New(errcodes.ErrCodeParam, "missing parameter %s", name)
		}
		if !p.SameShape(expected) {
			return errorx.New(errcodes.ErrCodeDimensionMismatch, "parameter %s shape (%dx%d), expected (%dx%d)",
				name, p.Rows, p.Cols, expected.Rows, expected.Cols)
		}
	}
	return nil
}

// CopyParams reseeds the model from params
func (m *Model) CopyParams(params tensor.Params) error {
	if err := m.CheckParams(params); err != nil {
		return err
	}
	m.weight = params[ParamWeight].Clone()
	m.bias = params[ParamBias].Clone()
	return nil
}

// Params returns a copy of the model state
func (m *Model) Params() tensor.Params {
	return tensor.Params{
		ParamWeight: m.weight.Clone(),
		ParamBias:   m.bias.Clone(),
	}
}

// Forward returns the logits of x, one row per sample
func (m *Model) Forward(x *tensor.Matrix) (*tensor.Matrix, error) {
	logits, err := tensor.Mul(x, m.weight)
	if err != nil {
		return nil, err
	}
	for i := 0; i < logits.Rows; i++ {
		for j := 0; j < logits.Cols; j++ {
			logits.Data[i*logits.Cols+j] += m.bias.Data[j]
		}
	}
	return logits, nil
}

// StepResult is what one optimizer step observed on its batch
type StepResult struct {
	LossSum float64 // summed cross entropy
	Correct int
	Preds   []int
}

// Step runs forward and backward on one batch of class-indexed labels and applies
// weight -= lr·∂loss/∂weight for the mean cross entropy of the batch.
func (m *Model) Step(x, y *tensor.Matrix, lr float64) (*StepResult, error) {
	if y == nil || y.Rows != x.Rows || y.Cols != 1 {
		return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "labels do not match samples")
	}
	logits, err := m.Forward(x)
	if err != nil {
		return nil, err
	}

	n := x.Rows
	res := &StepResult{Preds: make([]int, n)}
	// dlogits = (softmax(logits) - onehot(y)) / n
	dlogits := tensor.New(n, m.numClasses)
	for i := 0; i < n; i++ {
		label := int(y.Data[i])
		if label < 0 || label >= m.numClasses {
			return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "label %d out of %d classes", label, m.numClasses)
		}
		probs := softmax(logits.Row(i))
		res.LossSum -= math.Log(math.Max(probs[label], 1e-12))
		res.Preds[i] = argmax(probs)
		if res.Preds[i] == label {
			res.Correct++
		}
		for j, p := range probs {
			if j == label {
				p--
			}
			dlogits.Set(i, j, p/float64(n))
		}
	}

	gw, err := tensor.Mul(x.T(), dlogits)
	if err != nil {
		return nil, err
	}
	gb := tensor.New(1, m.numClasses)
	for i := 0; i < n; i++ {
		for j := 0; j < m.numClasses; j++ {
			gb.Data[j] += dlogits.At(i, j)
		}
	}

	if m.weight, err = tensor.Sub(m.weight, gw.Scale(lr)); err != nil {
		return nil, err
	}
	if m.bias, err = tensor.Sub(m.bias, gb.Scale(lr)); err != nil {
		return nil, err
	}
	return res, nil
}

func softmax(logits []float64) []float64 {
	top := logits[0]
	for _, v := range logits[1:] {
		if v > top {
			top = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - top)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
