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
	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/metrics"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

// EvalResults collects batch evaluations, the caller owns it and passes it in
type EvalResults struct {
	Steps []int
	Acc   []float64 // percent
	Loss  []float64 // exact binary cross entropy
}

// Len returns the number of recorded evaluations
func (r *EvalResults) Len() int {
	return len(r.Steps)
}

// BatchEvaluation scores probabilities predicted for the current batch against its labels
// and appends accuracy and loss to results. Only the label holder can evaluate.
func (c *Client) BatchEvaluation(probs *tensor.Matrix, step int, results *EvalResults) error {
	if results == nil {
		return errorx.New(errcodes.ErrCodeParam, "nil evaluation results")
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.batch == nil {
		return errorx.New(errcodes.ErrCodeRoundNotStarted, "evaluation called without an active round")
	}
	if !c.party.HoldsLabels() {
		return errorx.New(errcodes.ErrCodeParam, "party %s holds no labels to evaluate against", c.party.Role())
	}
	y := c.batch.Y
	if probs.Rows != y.Rows || probs.Cols != 1 {
		return errorx.New(errcodes.ErrCodeDimensionMismatch, "probs (%dx%d) do not match labels (%dx1)", probs.Rows, probs.Cols, y.Rows)
	}

	targets := make([]float64, y.Rows)
	realClasses := make([]int, y.Rows)
	predClasses := make([]int, y.Rows)
	for i, v := range y.Data {
		if v > 0 {
			targets[i] = 1
			realClasses[i] = 1
		}
		if probs.Data[i] >= 0.5 {
			predClasses[i] = 1
		}
	}
	cm, err := metrics.NewConfusionMatrix(realClasses, predClasses)
	if err != nil {
		return err
	}
	loss, err := metrics.BinaryCrossEntropy(probs.Data, targets)
	if err != nil {
		return err
	}
	acc := 100 * cm.GetAccuracy()

	results.Steps = append(results.Steps, step)
	results.Acc = append(results.Acc, acc)
	results.Loss = append(results.Loss, loss)

	logger.WithFields(logrus.Fields{
		"uid":        c.uid,
		"step":       step,
		"train_loss": loss,
		"train_acc":  acc,
	}).Info("batch evaluated")
	return nil
}

// Predict turns the combined linear outputs of both parties into probabilities
func Predict(outA, outB *tensor.Matrix) (*tensor.Matrix, error) {
	s, err := tensor.Add(outA, outB)
	if err != nil {
		return nil, err
	}
	return s.Apply(metrics.Sigmoid), nil
}
