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
	"context"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/fed/config"
	"github.com/PaddlePaddle/PaddleDTX/fed/dataset"
	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/fl/secagg"
	"github.com/PaddlePaddle/PaddleDTX/fed/metrics"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

var (
	logger = logrus.WithField("module", "fl.horizontal")
)

// LocalUpdate is what a client hands back after local training.
// Exactly one of Params and Encrypted is set.
type LocalUpdate struct {
	UID       string
	Params    tensor.Params
	Encrypted secagg.EncryptedParams
	Samples   int
	Loss      float64 // mean cross entropy of the last epoch
	Acc       float64 // percent, last epoch

	// Drift is KL(labels || predictions) over the class frequencies of the last epoch,
	// it grows when the local model collapses onto fewer classes than the client holds
	Drift     float64
	Confusion metrics.ConfusionMatrix
}

// Client trains a local copy of the global model on its own samples
type Client struct {
	uid     string
	conf    *config.FedConf
	model   *Model
	cursor  *dataset.Cursor
	adapter *secagg.Adapter

	mutex        sync.Mutex
	globalParams tensor.Params
}

// NewClient creates a client over batches labelled with class indices.
// adapter is required when conf.FedHorizontal.EncryptWeight is set.
func NewClient(uid string, conf *config.FedConf, batches []*dataset.Batch, adapter *secagg.Adapter) (*Client, error) {
	if conf == nil || conf.FedHorizontal == nil {
		return nil, errorx.New(errcodes.ErrCodeConfig, "missing config: fed_horizontal")
	}
	if conf.FedHorizontal.EncryptWeight && adapter == nil {
		return nil, errorx.New(errcodes.ErrCodeConfig, "encrypt_weight is set but no secure aggregation adapter given")
	}
	for i, b := range batches {
		if b.X.Cols != conf.NumFeatures {
			return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "batch %d has %d features, expected %d", i, b.X.Cols, conf.NumFeatures)
		}
		if b.Y == nil || b.Y.Rows != b.X.Rows {
			return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "batch %d labels do not match its samples", i)
		}
	}

	return &Client{
		uid:     uid,
		conf:    conf,
		model:   NewModel(conf.NumFeatures, conf.NumClasses),
		cursor:  dataset.NewCursor(batches),
		adapter: adapter,
	}, nil
}

func (c *Client) UID() string {
	return c.uid
}

// GlobalParams returns a copy of the parameters the last update started from
func (c *Client) GlobalParams() tensor.Params {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.globalParams.Clone()
}

func (c *Client) reseed(params tensor.Params) error {
	if err := c.model.CheckParams(params); err != nil {
		return err
	}
	c.globalParams = params.Clone()
	return c.model.CopyParams(c.globalParams)
}

// Update runs a single optimizer step on the next batch and returns the plaintext state
func (c *Client) Update(params tensor.Params) (tensor.Params, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.reseed(params); err != nil {
		return nil, err
	}
	batch, err := c.cursor.Advance()
	if err != nil {
		return nil, err
	}
	res, err := c.model.Step(batch.X, batch.Y, c.conf.LearningRate)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"uid":    c.uid,
		"cursor": c.cursor.Point(),
		"loss":   res.LossSum / float64(batch.Size()),
	}).Debug("batch update")
	return c.model.Params(), nil
}

// UpdateEpoch trains FedEpoch epochs over every local batch. Raw samples are dumped
// per class during the first epoch when DumpSamples is set.
func (c *Client) UpdateEpoch(ctx context.Context, params tensor.Params) (*LocalUpdate, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.reseed(params); err != nil {
		return nil, err
	}
	batches := c.cursor.Batches()
	if len(batches) == 0 {
		return nil, errorx.New(errcodes.ErrCodeDataExhaustion, "client %s has no batch", c.uid)
	}
	LocateGSample(c.conf.OutputPath)

	update := &LocalUpdate{UID: c.uid}
	for e := 0; e < c.conf.FedEpoch; e++ {
		var dumper *SampleDumper
		if e == 0 && c.conf.FedHorizontal.DumpSamples {
			d, err := NewSampleDumper(filepath.Join(c.conf.OutputPath, c.uid))
			if err != nil {
				return nil, err
			}
			dumper = d
		}

		var (
			lossSum     float64
			realClasses []int
			predClasses []int
		)
		err := func() error {
			for _, b := range batches {
				if err := ctx.Err(); err != nil {
					return err
				}
				if dumper != nil {
					if err := dumper.Append(b.X, b.Y); err != nil {
						return err
					}
				}
				res, err := c.model.Step(b.X, b.Y, c.conf.LearningRate)
				if err != nil {
					return err
				}
				lossSum += res.LossSum
				for i, v := range b.Y.Data {
					realClasses = append(realClasses, int(v))
					predClasses = append(predClasses, res.Preds[i])
				}
			}
			return nil
		}()
		if dumper != nil {
			if cerr := dumper.Close(); err == nil {
				err = cerr
			}
		}
		if err != nil {
			return nil, err
		}

		cm, err := metrics.NewConfusionMatrix(realClasses, predClasses)
		if err != nil {
			return nil, err
		}
		drift, err := metrics.KLDivergence(
			classFrequencies(realClasses, c.conf.NumClasses),
			classFrequencies(predClasses, c.conf.NumClasses),
		)
		if err != nil {
			return nil, err
		}
		update.Samples = len(realClasses)
		update.Loss = lossSum / float64(update.Samples)
		update.Acc = 100 * cm.GetAccuracy()
		update.Drift = drift
		update.Confusion = cm
	}

	logger.WithFields(logrus.Fields{
		"uid":        c.uid,
		"train_loss": update.Loss,
		"train_acc":  update.Acc,
		"drift":      update.Drift,
	}).Info("client finished local training")

	if c.conf.FedHorizontal.EncryptWeight {
		enc, err := c.adapter.EncryptDelta(ctx, c.model.Params(), c.globalParams)
		if err != nil {
			return nil, err
		}
		update.Encrypted = enc
		return update, nil
	}
	update.Params = c.model.Params()
	return update, nil
}

func classFrequencies(classes []int, numClasses int) []float64 {
	freq := make([]float64, numClasses)
	for _, c := range classes {
		if c >= 0 && c < numClasses {
			freq[c]++
		}
	}
	for i := range freq {
		freq[i] /= float64(len(classes))
	}
	return freq
}
