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
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PaddlePaddle/PaddleDTX/fed/config"
	"github.com/PaddlePaddle/PaddleDTX/fed/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/fed/dataset"
	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/fl/horizontal"
	"github.com/PaddlePaddle/PaddleDTX/fed/fl/secagg"
	"github.com/PaddlePaddle/PaddleDTX/fed/fl/vertical"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

const irisPath = "../../testdata/iris_plants.csv"

func verticalConf() *config.FedConf {
	return &config.FedConf{
		LearningRate: 0.05,
		BatchSize:    4,
		FedVertical: &config.FedVerticalConf{
			Label:     "Label",
			LabelName: "Iris-setosa",
			FeaturesA: 2,
		},
	}
}

func newVerticalClients(t *testing.T, a, b *dataset.Dataset, batchSize int) (*vertical.Client, *vertical.Client) {
	partyA, err := vertical.NewParty(vertical.RoleA, a.X.Cols, 1)
	require.NoError(t, err)
	partyB, err := vertical.NewParty(vertical.RoleB, b.X.Cols, 1)
	require.NoError(t, err)
	clientA, err := vertical.NewClient(partyA, a.Batches(batchSize))
	require.NoError(t, err)
	clientB, err := vertical.NewClient(partyB, b.Batches(batchSize))
	require.NoError(t, err)
	return clientA, clientB
}

func irisVertical(t *testing.T, conf *config.FedConf) (*vertical.Client, *vertical.Client) {
	rows, err := dataset.ReadRowsFromFile(irisPath)
	require.NoError(t, err)
	ds, err := dataset.ImportForLogReg(rows, conf.FedVertical.Label, conf.FedVertical.LabelName)
	require.NoError(t, err)
	a, b, err := ds.SplitColumns(conf.FedVertical.FeaturesA)
	require.NoError(t, err)
	return newVerticalClients(t, a, b, conf.BatchSize)
}

func mean(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func TestVerticalTraining(t *testing.T) {
	conf := verticalConf()
	conf.FedVertical.EvalInterval = 3
	a, b := irisVertical(t, conf)

	results := new(vertical.EvalResults)
	trainer, err := NewVerticalTrainer(a, b, conf, results)
	require.NoError(t, err)

	losses, err := trainer.Run(context.Background(), 10*a.NumBatches())
	require.NoError(t, err)
	require.Equal(t, 10*a.NumBatches(), trainer.Step())

	nb := a.NumBatches()
	require.Less(t, mean(losses[len(losses)-nb:]), mean(losses[:nb]))

	require.Equal(t, len(losses)/3, results.Len())
	require.Equal(t, []int{3, 6, 9}, results.Steps[:3])
	for _, acc := range results.Acc {
		require.True(t, acc >= 0 && acc <= 100)
	}
}

func TestVerticalSGD(t *testing.T) {
	xa, err := tensor.FromRows([][]float64{{1.0, 2.0}, {0.5, -1.0}, {-1.5, 0.3}, {2.0, 1.0}})
	require.NoError(t, err)
	xb, err := tensor.FromRows([][]float64{{0.2, -0.4}, {1.0, 0.5}, {-0.3, 0.8}, {0.6, -1.2}})
	require.NoError(t, err)
	y := tensor.Column([]float64{1, -1, 1, -1})

	a, b := newVerticalClients(t, &dataset.Dataset{X: xa, Y: y}, &dataset.Dataset{X: xb}, 4)
	conf := verticalConf()
	conf.LearningRate = 1
	trainer, err := NewVerticalTrainer(a, b, conf, nil)
	require.NoError(t, err)
	trainer.SetParams(
		tensor.Params{vertical.ParamWeight: tensor.Column([]float64{0.1, 0.2})},
		tensor.Params{vertical.ParamWeight: tensor.Column([]float64{0.3, 0.4})},
	)

	res, err := trainer.RunRound(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Step)
	require.InDelta(t, 0.6916491841233225, res.Loss, 1e-5)

	pa, pb := trainer.Params()
	expectedA := tensor.Column([]float64{0.1 - 0.4103125, 0.2 + 0.2505})
	expectedB := tensor.Column([]float64{0.3 - 0.2405, 0.4 + 0.1370625})
	require.True(t, tensor.EqualApprox(expectedA, pa[vertical.ParamWeight], 1e-5))
	require.True(t, tensor.EqualApprox(expectedB, pb[vertical.ParamWeight], 1e-5))
}

func TestVerticalAbortedRound(t *testing.T) {
	conf := verticalConf()
	a, b := irisVertical(t, conf)
	trainer, err := NewVerticalTrainer(a, b, conf, nil)
	require.NoError(t, err)

	_, err = trainer.RunRound(context.Background())
	require.NoError(t, err)
	pa, pb := trainer.Params()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = trainer.RunRound(ctx)
	require.Error(t, err)

	// wrong shapes are rejected at round start
	trainer.SetParams(tensor.Params{vertical.ParamWeight: tensor.New(3, 1)}, pb)
	_, err = trainer.RunRound(context.Background())
	require.True(t, errorx.Is(err, errcodes.ErrCodeDimensionMismatch))
	pa2, _ := trainer.Params()
	require.Equal(t, 3, pa2[vertical.ParamWeight].Rows)

	trainer.SetParams(pa, pb)
	require.Equal(t, 1, trainer.Step())
	_, err = trainer.RunRound(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, trainer.Step())

	_, err = NewVerticalTrainer(b, a, conf, nil)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam))
	conf.FedVertical.EvalInterval = 1
	_, err = NewVerticalTrainer(a, b, conf, nil)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam))
}

func TestVerticalRetryAfterPartyBRejects(t *testing.T) {
	conf := verticalConf()
	a, b := irisVertical(t, conf)
	trainer, err := NewVerticalTrainer(a, b, conf, nil)
	require.NoError(t, err)
	pa, pb := trainer.Params()

	// A accepts its weights, B does not
	trainer.SetParams(pa, tensor.Params{vertical.ParamWeight: tensor.New(5, 1)})
	_, err = trainer.RunRound(context.Background())
	require.True(t, errorx.Is(err, errcodes.ErrCodeDimensionMismatch))
	require.Equal(t, -1, a.Cursor())
	require.Equal(t, -1, b.Cursor())

	trainer.SetParams(pa, pb)
	for i := 1; i <= 3; i++ {
		res, err := trainer.RunRound(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, res.Step)
		require.Equal(t, a.Cursor(), b.Cursor())
	}
	require.Equal(t, 2, a.Cursor())
}

func TestVerticalMisalignedBatches(t *testing.T) {
	rowsA := [][]float64{{1.0, 2.0}, {0.5, -1.0}, {-1.5, 0.3}, {2.0, 1.0}}
	rowsB := [][]float64{{0.2}, {1.0}, {-0.3}, {0.6}, {0.1}, {-0.8}}
	xa, err := tensor.FromRows(rowsA)
	require.NoError(t, err)
	xb, err := tensor.FromRows(rowsB)
	require.NoError(t, err)
	y := tensor.Column([]float64{1, -1, 1, -1})

	a, b := newVerticalClients(t, &dataset.Dataset{X: xa, Y: y}, &dataset.Dataset{X: xb}, 2)
	_, err = NewVerticalTrainer(a, b, verticalConf(), nil)
	require.True(t, errorx.Is(err, errcodes.ErrCodeDimensionMismatch), "got %v", err)

	// one batch each, of 4 and 5 samples
	a, b = newVerticalClients(t, &dataset.Dataset{X: xa, Y: y}, &dataset.Dataset{X: xb}, 5)
	require.Equal(t, a.NumBatches(), b.NumBatches())
	_, err = NewVerticalTrainer(a, b, verticalConf(), nil)
	require.True(t, errorx.Is(err, errcodes.ErrCodeDimensionMismatch), "got %v", err)
}

func horizontalConf(t *testing.T, encrypt bool) *config.FedConf {
	return &config.FedConf{
		NumFeatures:  4,
		NumClasses:   3,
		LearningRate: 0.01,
		FedEpoch:     1,
		BatchSize:    4,
		OutputPath:   t.TempDir(),
		FedHorizontal: &config.FedHorizontalConf{
			NumClients:    3,
			EncryptWeight: encrypt,
		},
		SecAgg: &config.SecAggConf{
			Participants:   []string{"alice", "bob", "carol"},
			CryptoProvider: "crypto_provider",
			Precision:      3,
		},
	}
}

func horizontalClients(t *testing.T, conf *config.FedConf, adapter *secagg.Adapter) []*horizontal.Client {
	rows, err := dataset.ReadRowsFromFile(irisPath)
	require.NoError(t, err)
	ds, err := dataset.ImportForClassification(rows, "Label")
	require.NoError(t, err)
	parts, err := ds.SplitRows(conf.FedHorizontal.NumClients)
	require.NoError(t, err)

	clients := make([]*horizontal.Client, len(parts))
	for i, p := range parts {
		clients[i], err = horizontal.NewClient(fmt.Sprint(i), conf, p.Batches(conf.BatchSize), adapter)
		require.NoError(t, err)
	}
	return clients
}

func TestHorizontalRound(t *testing.T) {
	global := horizontal.InitParams(4, 3)

	plainConf := horizontalConf(t, false)
	plain := NewHorizontalTrainer(horizontalClients(t, plainConf, nil), NewAggregator(nil), global)

	paillierKey, err := paillier.GeneratePrivateKey(256)
	require.NoError(t, err)
	holders := horizontalConf(t, true).SecAgg
	paillierService, err := secagg.NewPaillierService(paillierKey, holders.Participants, holders.CryptoProvider)
	require.NoError(t, err)
	services := map[string]secagg.Service{
		"shamir":   secagg.NewShamirService("", 0),
		"paillier": paillierService,
	}

	ctx := context.Background()
	for round := 0; round < 2; round++ {
		_, err := plain.RunRound(ctx)
		require.NoError(t, err)
	}
	expected := plain.Global()

	for name, service := range services {
		t.Run(name, func(t *testing.T) {
			defer service.Close()
			conf := horizontalConf(t, true)
			adapter := secagg.NewAdapter(service, conf.SecAgg)
			trainer := NewHorizontalTrainer(horizontalClients(t, conf, adapter), NewAggregator(service), global)

			for round := 0; round < 2; round++ {
				updates, err := trainer.RunRound(ctx)
				require.NoError(t, err)
				require.Len(t, updates, 3)
				for _, u := range updates {
					require.Nil(t, u.Params)
					// shares are single use
					_, err := service.Reveal(ctx, u.Encrypted[horizontal.ParamWeight])
					require.True(t, errorx.Is(err, errcodes.ErrCodeNotFound))
				}
			}

			got := trainer.Global()
			for _, p := range global.Names() {
				require.True(t, tensor.EqualApprox(expected[p], got[p], 2e-3), "parameter %s: %v vs %v", p, expected[p], got[p])
			}
		})
	}

	// the trainer's starting point is a copy
	require.Equal(t, 0.0, global[horizontal.ParamWeight].Sum())
}

func TestAggregateErrors(t *testing.T) {
	ctx := context.Background()
	global := horizontal.InitParams(4, 3)
	agg := NewAggregator(nil)

	_, err := agg.Aggregate(ctx, global, nil)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam))

	mixed := []*horizontal.LocalUpdate{
		{UID: "0", Params: global},
		{UID: "1", Encrypted: secagg.EncryptedParams{}},
	}
	_, err = agg.Aggregate(ctx, global, mixed)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam))

	_, err = agg.Aggregate(ctx, global, mixed[1:])
	require.True(t, errorx.Is(err, errcodes.ErrCodeConfig))

	_, err = NewAggregator(secagg.NewShamirService("", 0)).Aggregate(ctx, global, mixed[1:])
	require.True(t, errorx.Is(err, errcodes.ErrCodeAggregationFailure))

	a := horizontal.InitParams(4, 3)
	b := horizontal.InitParams(4, 3)
	b[horizontal.ParamBias].Set(0, 1, 1)
	avg, err := agg.Aggregate(ctx, global, []*horizontal.LocalUpdate{{UID: "0", Params: a}, {UID: "1", Params: b}})
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0.5, 0}, avg[horizontal.ParamBias].Data)
}
