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

	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/fl/horizontal"
	"github.com/PaddlePaddle/PaddleDTX/fed/fl/secagg"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

// Aggregator folds local updates of horizontal clients into the global model
type Aggregator struct {
	service secagg.Service // nil if updates come in plaintext
}

// NewAggregator creates an aggregator, service may be nil when weights are not encrypted
func NewAggregator(service secagg.Service) *Aggregator {
	return &Aggregator{service: service}
}

// Aggregate returns the next global model. Encrypted updates are summed share-wise and
// only the sum is revealed, the mean delta is then added to global. Plaintext updates
// are averaged.
func (g *Aggregator) Aggregate(ctx context.Context, global tensor.Params, updates []*horizontal.LocalUpdate) (tensor.Params, error) {
	if len(updates) == 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "no update to aggregate")
	}
	encrypted := updates[0].Encrypted != nil
	for _, u := range updates {
		if (u.Encrypted != nil) != encrypted {
			return nil, errorx.New(errcodes.ErrCodeParam, "client %s mixes encrypted and plaintext updates", u.UID)
		}
	}
	if encrypted {
		return g.aggregateShares(ctx, global, updates)
	}
	return average(updates)
}

func (g *Aggregator) aggregateShares(ctx context.Context, global tensor.Params, updates []*horizontal.LocalUpdate) (tensor.Params, error) {
	if g.service == nil {
		return nil, errorx.New(errcodes.ErrCodeConfig, "encrypted updates need a secure aggregation service")
	}
	defer g.discard(ctx, updates)

	next := global.Clone()
	for _, name := range global.Names() {
		handles := make([]secagg.ShareHandle, 0, len(updates))
		for _, u := range updates {
			h, ok := u.Encrypted[name]
			if !ok {
				return nil, errorx.New(errcodes.ErrCodeAggregationFailure, "client %s did not share parameter %s", u.UID, name)
			}
			handles = append(handles, h)
		}

		sum, err := g.service.Sum(ctx, handles)
		if err != nil {
			return nil, errorx.Wrap(err, "failed to sum parameter %s", name)
		}
		fixed, err := g.service.Reveal(ctx, sum)
		if derr := g.service.Discard(ctx, sum); derr != nil {
			logger.WithField("param", name).WithError(derr).Warn("failed to discard summed share")
		}
		if err != nil {
			return nil, errorx.Wrap(err, "failed to reveal parameter %s", name)
		}

		mean := fixed.Decode().Scale(1 / float64(len(updates)))
		if next[name], err = tensor.Add(next[name], mean); err != nil {
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"clients": len(updates),
		"params":  len(global),
	}).Info("encrypted updates aggregated")
	return next, nil
}

// discard drops the shares of every update, they are single use
func (g *Aggregator) discard(ctx context.Context, updates []*horizontal.LocalUpdate) {
	for _, u := range updates {
		for name, h := range u.Encrypted {
			if err := g.service.Discard(ctx, h); err != nil {
				logger.WithFields(logrus.Fields{
					"uid":   u.UID,
					"param": name,
				}).WithError(err).Warn("failed to discard share")
			}
		}
	}
}

func average(updates []*horizontal.LocalUpdate) (tensor.Params, error) {
	next := updates[0].Params.Clone()
	for _, u := range updates[1:] {
		for _, name := range next.Names() {
			p, ok := u.Params[name]
			if !ok {
				return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "client %s misses parameter %s", u.UID, name)
			}
			sum, err := tensor.Add(next[name], p)
			if err != nil {
				return nil, err
			}
			next[name] = sum
		}
	}
	for name, p := range next {
		next[name] = p.Scale(1 / float64(len(updates)))
	}
	return next, nil
}

// HorizontalTrainer runs rounds of local training followed by aggregation
type HorizontalTrainer struct {
	clients    []*horizontal.Client
	aggregator *Aggregator
	global     tensor.Params
	round      int
}

func NewHorizontalTrainer(clients []*horizontal.Client, aggregator *Aggregator, global tensor.Params) *HorizontalTrainer {
	return &HorizontalTrainer{
		clients:    clients,
		aggregator: aggregator,
		global:     global.Clone(),
	}
}

// Global returns a copy of the current global model
func (t *HorizontalTrainer) Global() tensor.Params {
	return t.global.Clone()
}

// RunRound trains every client from the global model and aggregates their updates.
// The global model is only replaced when every client and the aggregation succeeded.
func (t *HorizontalTrainer) RunRound(ctx context.Context) ([]*horizontal.LocalUpdate, error) {
	updates := make([]*horizontal.LocalUpdate, 0, len(t.clients))
	for _, c := range t.clients {
		u, err := c.UpdateEpoch(ctx, t.global)
		if err != nil {
			if t.aggregator.service != nil {
				t.aggregator.discard(ctx, updates)
			}
			return nil, errorx.Wrap(err, "client %s failed to train", c.UID())
		}
		updates = append(updates, u)
	}

	next, err := t.aggregator.Aggregate(ctx, t.global, updates)
	if err != nil {
		return nil, err
	}
	t.global = next
	t.round++

	logger.WithFields(logrus.Fields{
		"round":   t.round,
		"clients": len(updates),
	}).Info("horizontal round finished")
	return updates, nil
}
