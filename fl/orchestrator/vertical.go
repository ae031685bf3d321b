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

package orchestrator

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/fed/config"
	"github.com/PaddlePaddle/PaddleDTX/fed/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/fl/vertical"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

var (
	logger = logrus.WithField("module", "fl.orchestrator")
)

// RoundResult is what one vertical round produced
type RoundResult struct {
	Step  int
	Loss  float64 // Taylor approximation from the loss protocol
	GradA *tensor.Matrix
	GradB *tensor.Matrix
}

// VerticalTrainer drives rounds between the label holder A and the feature holder B.
// It keeps the master parameters of both parties and only updates them after a
// round completed every step.
type VerticalTrainer struct {
	a *vertical.Client
	b *vertical.Client

	learningRate float64
	evalInterval int
	publicKey    *paillier.PublicKey
	results      *vertical.EvalResults

	step    int
	paramsA tensor.Params
	paramsB tensor.Params
}

// NewVerticalTrainer starts both parties from zero weights. Evaluations are appended to results
// every conf.FedVertical.EvalInterval rounds, a zero interval turns them off.
func NewVerticalTrainer(a, b *vertical.Client, conf *config.FedConf, results *vertical.EvalResults) (*VerticalTrainer, error) {
	if a.Party().Role() != vertical.RoleA || b.Party().Role() != vertical.RoleB {
		return nil, errorx.New(errcodes.ErrCodeParam, "expect parties A and B, got %s and %s", a.Party().Role(), b.Party().Role())
	}
	if conf == nil || conf.FedVertical == nil {
		return nil, errorx.New(errcodes.ErrCodeConfig, "missing config: fed_vertical")
	}
	if conf.FedVertical.EvalInterval > 0 && results == nil {
		return nil, errorx.New(errcodes.ErrCodeParam, "evaluation is on but no results to append to")
	}
	if err := alignedBatches(a, b); err != nil {
		return nil, err
	}

	t := &VerticalTrainer{
		a:            a,
		b:            b,
		learningRate: conf.LearningRate,
		evalInterval: conf.FedVertical.EvalInterval,
		results:      results,
		paramsA:      vertical.InitParams(a.Party()),
		paramsB:      vertical.InitParams(b.Party()),
	}
	// Reserved for an encrypted exchange of the residuals. Every client receives
	// the public key at round start but no protocol step reads it yet, as with
	// the sample mask.
	if conf.FedVertical.HomoKeyLength > 0 {
		key, err := paillier.GeneratePrivateKey(conf.FedVertical.HomoKeyLength)
		if err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to generate homomorphic key")
		}
		t.publicKey = &key.PublicKey
	}
	return t, nil
}

// alignedBatches requires both parties to cut the same samples into the same batches,
// otherwise their cursors would pair unrelated samples
func alignedBatches(a, b *vertical.Client) error {
	sizesA, sizesB := a.BatchSizes(), b.BatchSizes()
	if len(sizesA) != len(sizesB) {
		return errorx.New(errcodes.ErrCodeDimensionMismatch, "party A has %d batches, party B has %d", len(sizesA), len(sizesB))
	}
	for i := range sizesA {
		if sizesA[i] != sizesB[i] {
			return errorx.New(errcodes.ErrCodeDimensionMismatch, "batch %d has %d samples at party A and %d at party B",
				i, sizesA[i], sizesB[i])
		}
	}
	return nil
}

// Params returns copies of the master parameters of A and B
func (t *VerticalTrainer) Params() (tensor.Params, tensor.Params) {
	return t.paramsA.Clone(), t.paramsB.Clone()
}

// SetParams replaces the master parameters, both parties check the shapes at the next round
func (t *VerticalTrainer) SetParams(paramsA, paramsB tensor.Params) {
	t.paramsA = paramsA.Clone()
	t.paramsB = paramsB.Clone()
}

// Step returns the number of completed rounds
func (t *VerticalTrainer) Step() int {
	return t.step
}

// RunRound runs the gradient and the loss protocol on the next batch and applies
// θ -= lr·grad to both parties. A failed or cancelled round leaves the master
// parameters untouched.
func (t *VerticalTrainer) RunRound(ctx context.Context) (*RoundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// neither party moves its cursor unless both accept their parameters
	if err := t.a.CheckParams(t.paramsA); err != nil {
		return nil, errorx.Wrap(err, "party A rejected its parameters")
	}
	if err := t.b.CheckParams(t.paramsB); err != nil {
		return nil, errorx.Wrap(err, "party B rejected its parameters")
	}
	if err := t.a.StartRound(t.paramsA, nil, t.publicKey); err != nil {
		return nil, errorx.Wrap(err, "party A failed to start round")
	}
	if err := t.b.StartRound(t.paramsB, nil, t.publicKey); err != nil {
		if cerr := t.a.CancelRound(); cerr != nil {
			logger.WithError(cerr).Error("failed to cancel round of party A")
		}
		return nil, errorx.Wrap(err, "party B failed to start round")
	}
	defer t.a.StopRound()
	defer t.b.StopRound()

	res := &RoundResult{Step: t.step + 1}
	var err error
	if res.GradA, res.GradB, err = t.gradient(ctx); err != nil {
		return nil, err
	}
	if res.Loss, err = t.loss(ctx); err != nil {
		return nil, err
	}
	if t.evalInterval > 0 && res.Step%t.evalInterval == 0 {
		if err := t.evaluate(res.Step); err != nil {
			return nil, err
		}
	}

	paramsA, err := sgd(t.paramsA, vertical.ParamWeight, res.GradA, t.learningRate)
	if err != nil {
		return nil, err
	}
	paramsB, err := sgd(t.paramsB, vertical.ParamWeight, res.GradB, t.learningRate)
	if err != nil {
		return nil, err
	}
	t.paramsA, t.paramsB = paramsA, paramsB
	t.step = res.Step

	logger.WithFields(logrus.Fields{
		"step": res.Step,
		"loss": res.Loss,
	}).Debug("vertical round finished")
	return res, nil
}

func (t *VerticalTrainer) gradient(ctx context.Context) (*tensor.Matrix, *tensor.Matrix, error) {
	m1, err := t.a.GradStep1()
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m2, err := t.b.GradStep2(m1)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return t.a.GradStep3(m2)
}

func (t *VerticalTrainer) loss(ctx context.Context) (float64, error) {
	l1, err := t.a.LossStep1()
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l2, err := t.b.LossStep2(l1)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return t.a.LossStep3(l2)
}

// evaluate combines both outputs on the current batch, only A sees the probabilities
func (t *VerticalTrainer) evaluate(step int) error {
	outA, err := t.a.Forward(nil)
	if err != nil {
		return err
	}
	outB, err := t.b.Forward(nil)
	if err != nil {
		return err
	}
	probs, err := vertical.Predict(outA, outB)
	if err != nil {
		return err
	}
	return t.a.BatchEvaluation(probs, step, t.results)
}

// Run executes rounds until n rounds completed or one fails, it returns the loss of every round
func (t *VerticalTrainer) Run(ctx context.Context, n int) ([]float64, error) {
	losses := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		res, err := t.RunRound(ctx)
		if err != nil {
			return losses, err
		}
		losses = append(losses, res.Loss)
	}
	return losses, nil
}

// sgd returns a copy of params with name moved against grad
func sgd(params tensor.Params, name string, grad *tensor.Matrix, lr float64) (tensor.Params, error) {
	next := params.Clone()
	w, err := tensor.Sub(next[name], grad.Scale(lr))
	if err != nil {
		return nil, err
	}
	next[name] = w
	return next, nil
}
