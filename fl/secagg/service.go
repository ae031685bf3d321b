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
	"math"

	"github.com/PaddlePaddle/PaddleDTX/fed/config"
	"github.com/PaddlePaddle/PaddleDTX/fed/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

// ShareHandle refers to a value distributed across its holders
type ShareHandle string

// Service distributes fixed precision values so that no single holder can read them.
// Every call either completes or leaves no share behind.
type Service interface {
	// Submit splits value across participants and cryptoProvider
	Submit(ctx context.Context, value *FixedTensor, participants []string, cryptoProvider string) (ShareHandle, error)

	// Reveal reconstructs the value behind handle
	Reveal(ctx context.Context, handle ShareHandle) (*FixedTensor, error)

	// Sum adds values held by the same holders without revealing any of them
	Sum(ctx context.Context, handles []ShareHandle) (ShareHandle, error)

	// Discard drops every share of handle
	Discard(ctx context.Context, handle ShareHandle) error

	Close() error
}

// NewService creates the backend named in conf
func NewService(conf *config.SecAggConf) (Service, error) {
	switch conf.Backend {
	case config.SecAggBackendShamir:
		return NewShamirService(conf.StorePath, 0), nil
	case config.SecAggBackendPaillier:
		key, err := paillier.GeneratePrivateKey(paillier.DefaultPrimeLength)
		if err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to generate paillier key")
		}
		s, err := NewPaillierService(key, conf.Participants, conf.CryptoProvider)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, errorx.New(errcodes.ErrCodeConfig, "unknown secagg backend %s", conf.Backend)
}

// FixedTensor is a tensor encoded as integers at 10^Precision
type FixedTensor struct {
	Rows      int
	Cols      int
	Precision int
	Data      []int64
}

// Encode rounds every element of m to the nearest multiple of 10^-precision
func Encode(m *tensor.Matrix, precision int) *FixedTensor {
	scale := math.Pow10(precision)
	f := &FixedTensor{
		Rows:      m.Rows,
		Cols:      m.Cols,
		Precision: precision,
		Data:      make([]int64, len(m.Data)),
	}
	for i, v := range m.Data {
		f.Data[i] = int64(math.Round(v * scale))
	}
	return f
}

// Decode turns f back into floats
func (f *FixedTensor) Decode() *tensor.Matrix {
	scale := math.Pow10(f.Precision)
	m := tensor.New(f.Rows, f.Cols)
	for i, v := range f.Data {
		m.Data[i] = float64(v) / scale
	}
	return m
}

func checkHolders(participants []string, cryptoProvider string) ([]string, error) {
	if len(participants) == 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "no participant to share with")
	}
	if cryptoProvider == "" {
		return nil, errorx.New(errcodes.ErrCodeParam, "missing crypto provider")
	}
	holders := append(append([]string(nil), participants...), cryptoProvider)
	seen := make(map[string]bool, len(holders))
	for _, h := range holders {
		if h == "" || seen[h] {
			return nil, errorx.New(errcodes.ErrCodeParam, "invalid or duplicate holder %q", h)
		}
		seen[h] = true
	}
	return holders, nil
}

func sameHolders(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
