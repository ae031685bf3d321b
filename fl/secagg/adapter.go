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

package secagg

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/fed/config"
	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

// EncryptedParams maps a parameter name to the handle of its shared delta
type EncryptedParams map[string]ShareHandle

// Adapter turns a local model into shared deltas against the round's global model
type Adapter struct {
	service        Service
	participants   []string
	cryptoProvider string
	precision      int
}

func NewAdapter(service Service, conf *config.SecAggConf) *Adapter {
	precision := conf.Precision
	if precision <= 0 {
		precision = config.DefaultPrecision
	}
	return &Adapter{
		service:        service,
		participants:   conf.Participants,
		cryptoProvider: conf.CryptoProvider,
		precision:      precision,
	}
}

func (a *Adapter) Service() Service {
	return a.service
}

func (a *Adapter) Precision() int {
	return a.precision
}

// EncryptDelta submits local - global of every parameter. If any parameter fails,
// the shares already submitted are discarded and the failing name is reported.
func (a *Adapter) EncryptDelta(ctx context.Context, local, global tensor.Params) (EncryptedParams, error) {
	out := make(EncryptedParams, len(local))
	fail := func(name string, err error) (EncryptedParams, error) {
		for n, h := range out {
			if derr := a.service.Discard(ctx, h); derr != nil {
				logger.WithField("param", n).WithError(derr).Warn("failed to discard share")
			}
		}
		if errorx.Is(err, errcodes.ErrCodeDimensionMismatch) {
			return nil, err
		}
		return nil, errorx.NewCode(err, errcodes.ErrCodeAggregationFailure, "failed to share parameter %s", name)
	}

	for _, name := range local.Names() {
		g, ok := global[name]
		if !ok {
			return fail(name, errorx.New(errcodes.ErrCodeDimensionMismatch, "parameter %s missing from global params", name))
		}
		delta, err := tensor.Sub(local[name], g)
		if err != nil {
			return fail(name, err)
		}
		handle, err := a.service.Submit(ctx, Encode(delta, a.precision), a.participants, a.cryptoProvider)
		if err != nil {
			return fail(name, err)
		}
		out[name] = handle
	}

	logger.WithFields(logrus.Fields{
		"params":       len(out),
		"participants": len(a.participants),
	}).Debug("parameter deltas shared")
	return out, nil
}
