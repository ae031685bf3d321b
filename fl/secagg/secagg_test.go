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
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PaddlePaddle/PaddleDTX/fed/config"
	"github.com/PaddlePaddle/PaddleDTX/fed/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

var (
	participants   = []string{"alice", "bob"}
	cryptoProvider = "crypto_provider"
)

func TestFixedPrecision(t *testing.T) {
	m := tensor.Column([]float64{0.12345, -1.0006, 3})
	f := Encode(m, 3)
	require.Equal(t, []int64{123, -1001, 3000}, f.Data)
	require.True(t, tensor.EqualApprox(m, f.Decode(), 5e-4))
}

// testRoundTrip submits three deltas and reveals their sum. Backends that refuse to
// reveal a single contribution report it as a parameter error.
func testRoundTrip(t *testing.T, s Service, revealsSingle bool) {
	ctx := context.Background()
	deltas := []*tensor.Matrix{
		tensor.Column([]float64{0.1234, -0.5, 2.0001}),
		tensor.Column([]float64{-0.0004, 0.25, -1.5}),
		tensor.Column([]float64{0.333, 0.001, 0}),
	}

	expected := tensor.New(3, 1)
	var handles []ShareHandle
	for _, d := range deltas {
		h, err := s.Submit(ctx, Encode(d, 3), participants, cryptoProvider)
		require.NoError(t, err)
		handles = append(handles, h)
		expected, err = tensor.Add(expected, d)
		require.NoError(t, err)

		got, err := s.Reveal(ctx, h)
		if !revealsSingle {
			require.True(t, errorx.Is(err, errcodes.ErrCodeParam), "got %v", err)
			continue
		}
		require.NoError(t, err)
		require.True(t, tensor.EqualApprox(d, got.Decode(), 1e-3))
	}

	sum, err := s.Sum(ctx, handles)
	require.NoError(t, err)
	revealed, err := s.Reveal(ctx, sum)
	require.NoError(t, err)
	require.True(t, tensor.EqualApprox(expected, revealed.Decode(), 1e-3), "got %v, expected %v", revealed.Decode(), expected)

	// shares of differently shaped values can not be added
	other, err := s.Submit(ctx, Encode(tensor.Column([]float64{1}), 3), participants, cryptoProvider)
	require.NoError(t, err)
	_, err = s.Sum(ctx, []ShareHandle{handles[0], other})
	require.True(t, errorx.Is(err, errcodes.ErrCodeDimensionMismatch))

	require.NoError(t, s.Discard(ctx, other))
	_, err = s.Reveal(ctx, other)
	require.True(t, errorx.Is(err, errcodes.ErrCodeNotFound))

	_, err = s.Submit(ctx, Encode(deltas[0], 3), participants, "")
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam))
	_, err = s.Submit(ctx, Encode(deltas[0], 3), []string{"alice", "alice"}, cryptoProvider)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Submit(cancelled, Encode(deltas[0], 3), participants, cryptoProvider)
	require.Error(t, err)

	require.NoError(t, s.Close())
}

func TestShamirRoundTrip(t *testing.T) {
	testRoundTrip(t, NewShamirService("", 0), true)
}

func TestShamirThreshold(t *testing.T) {
	s := NewShamirService(t.TempDir(), 2)
	defer s.Close()
	ctx := context.Background()

	h, err := s.Submit(ctx, Encode(tensor.Column([]float64{4.2}), 3), participants, cryptoProvider)
	require.NoError(t, err)

	// two of three holders are enough
	require.NoError(t, s.stores["alice"].Delete(string(h)))
	got, err := s.Reveal(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []int64{4200}, got.Data)

	require.NoError(t, s.stores["bob"].Delete(string(h)))
	_, err = s.Reveal(ctx, h)
	require.True(t, errorx.Is(err, errcodes.ErrCodeAggregationFailure))
}

func TestShamirAtomicSubmit(t *testing.T) {
	s := NewShamirService("", 0)
	ctx := context.Background()

	_, err := s.Submit(ctx, Encode(tensor.Column([]float64{1}), 3), participants, cryptoProvider)
	require.NoError(t, err)

	// the crypto provider goes away, nothing of the next value may stay with alice or bob
	require.NoError(t, s.stores[cryptoProvider].Close())
	_, err = s.Submit(ctx, Encode(tensor.Column([]float64{2}), 3), participants, cryptoProvider)
	require.True(t, errorx.Is(err, errcodes.ErrCodeAggregationFailure), "got %v", err)

	for _, p := range participants {
		handles, err := s.stores[p].List()
		require.NoError(t, err)
		require.Len(t, handles, 1)
	}
	require.Len(t, s.metas, 1)
}

func TestPaillierRoundTrip(t *testing.T) {
	key, err := paillier.GeneratePrivateKey(256)
	require.NoError(t, err)
	s, err := NewPaillierService(key, participants, cryptoProvider)
	require.NoError(t, err)
	testRoundTrip(t, s, false)
}

func TestPaillierIndividualDeltas(t *testing.T) {
	key, err := paillier.GeneratePrivateKey(256)
	require.NoError(t, err)
	s, err := NewPaillierService(key, participants, cryptoProvider)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	// the key is split among every holder, none keeps the private key
	require.Len(t, s.keyShares, len(participants)+1)
	for _, ks := range s.keyShares {
		require.NotEqual(t, 0, ks.Exponent.Cmp(new(big.Int).Mul(key.Lambda, key.Mu)))
	}

	h1, err := s.Submit(ctx, Encode(tensor.Column([]float64{0.5, -0.25}), 3), participants, cryptoProvider)
	require.NoError(t, err)
	h2, err := s.Submit(ctx, Encode(tensor.Column([]float64{1.5, 0.75}), 3), participants, cryptoProvider)
	require.NoError(t, err)

	_, err = s.Reveal(ctx, h1)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam), "got %v", err)

	// a sum of one contribution is still one contribution
	single, err := s.Sum(ctx, []ShareHandle{h1})
	require.NoError(t, err)
	_, err = s.Reveal(ctx, single)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam), "got %v", err)
	_, err = s.Sum(ctx, []ShareHandle{h1, h1})
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam), "got %v", err)

	sum, err := s.Sum(ctx, []ShareHandle{h1, h2})
	require.NoError(t, err)
	got, err := s.Reveal(ctx, sum)
	require.NoError(t, err)
	require.Equal(t, []int64{2000, 500}, got.Data)

	// values can only be shared with the holders of the key
	_, err = s.Submit(ctx, Encode(tensor.Column([]float64{1}), 3), []string{"alice", "carol"}, cryptoProvider)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam), "got %v", err)

	_, err = NewPaillierService(key, nil, cryptoProvider)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam), "got %v", err)
}

func TestAdapter(t *testing.T) {
	conf := &config.SecAggConf{
		Backend:        config.SecAggBackendShamir,
		Participants:   participants,
		CryptoProvider: cryptoProvider,
	}
	service, err := NewService(conf)
	require.NoError(t, err)
	defer service.Close()

	a := NewAdapter(service, conf)
	require.Equal(t, config.DefaultPrecision, a.Precision())

	global := tensor.Params{
		"weight": tensor.Column([]float64{1, 2}),
		"bias":   tensor.Column([]float64{0.5}),
	}
	local := tensor.Params{
		"weight": tensor.Column([]float64{1.25, 1.9}),
		"bias":   tensor.Column([]float64{0.4}),
	}

	ctx := context.Background()
	enc, err := a.EncryptDelta(ctx, local, global)
	require.NoError(t, err)
	require.Len(t, enc, 2)

	w, err := service.Reveal(ctx, enc["weight"])
	require.NoError(t, err)
	require.True(t, tensor.EqualApprox(tensor.Column([]float64{0.25, -0.1}), w.Decode(), 1e-3))
	b, err := service.Reveal(ctx, enc["bias"])
	require.NoError(t, err)
	require.InDelta(t, -0.1, b.Decode().At(0, 0), 1e-3)

	// a missing global parameter fails the whole call and discards what was shared
	delete(global, "weight")
	_, err = a.EncryptDelta(ctx, local, global)
	require.True(t, errorx.Is(err, errcodes.ErrCodeDimensionMismatch))
	require.Len(t, service.(*ShamirService).metas, 2)

	_, err = NewService(&config.SecAggConf{Backend: "garbled"})
	require.True(t, errorx.Is(err, errcodes.ErrCodeConfig))
}
