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
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/fed/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/fed/dataset"
	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

var (
	logger = logrus.WithField("module", "fl.vertical")
)

// Client is the runtime of one party in vertical learning.
// Only derived messages leave a Client, never its features or labels.
type Client struct {
	uid    string
	party  *Party
	model  *Model
	cursor *dataset.Cursor

	mutex        sync.Mutex
	globalParams tensor.Params
	publicKey    *paillier.PublicKey
	batch        *dataset.Batch
	round        uint64
	grad         *GradProtocol
	loss         *LossProtocol
}

// MinBatchSize is the smallest batch a vertical client accepts. With a single
// sample, the messages B sends back would take the shape of the label column.
const MinBatchSize = 2

// NewClient creates a client over batches local to party.
// Batches of a RoleB party must not hold labels.
func NewClient(party *Party, batches []*dataset.Batch) (*Client, error) {
	for i, b := range batches {
		if b.Size() < MinBatchSize {
			return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "batch %d has %d samples, at least %d required",
				i, b.Size(), MinBatchSize)
		}
		if b.X.Cols != party.NumFeatures() {
			return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "batch %d has %d features, party %s owns %d",
				i, b.X.Cols, party.Role(), party.NumFeatures())
		}
		if !party.HoldsLabels() && b.Y != nil {
			return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "party %s can not hold labels", party.Role())
		}
		if party.HoldsLabels() && (b.Y == nil || b.Y.Rows != b.X.Rows || b.Y.Cols != 1) {
			return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "batch %d labels do not match its samples", i)
		}
	}

	c := &Client{
		uid:    uuid.NewString(),
		party:  party,
		model:  NewModel(party.NumFeatures(), party.NumOutput()),
		cursor: dataset.NewCursor(batches),
		grad:   newGradProtocol(),
		loss:   newLossProtocol(),
	}
	logger.WithFields(logrus.Fields{
		"uid":      c.uid,
		"party":    party.Role(),
		"features": party.NumFeatures(),
		"output":   party.NumOutput(),
		"batches":  len(batches),
	}).Info("vertical client created")
	return c, nil
}

func (c *Client) UID() string {
	return c.uid
}

func (c *Client) Party() *Party {
	return c.party
}

// Cursor returns the index of the current batch
func (c *Client) Cursor() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.cursor.Point()
}

// NumBatches returns the number of local batches
func (c *Client) NumBatches() int {
	return c.cursor.Len()
}

// BatchSizes returns the number of samples of every local batch, in cursor order
func (c *Client) BatchSizes() []int {
	batches := c.cursor.Batches()
	sizes := make([]int, len(batches))
	for i, b := range batches {
		sizes[i] = b.Size()
	}
	return sizes
}

// CheckParams reports whether params fit the local model without touching any round state
func (c *Client) CheckParams(params tensor.Params) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.model.CheckParams(params)
}

// GlobalParams returns a copy of the snapshot taken at round start
func (c *Client) GlobalParams() tensor.Params {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.globalParams.Clone()
}

// PublicKey returns the homomorphic public key handed over at round start, if any
func (c *Client) PublicKey() *paillier.PublicKey {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.publicKey
}

// StartRound snapshots params, reseeds the local model and moves to the next batch.
// Sample masking is not supported, a non-nil mask is rejected.
func (c *Client) StartRound(params tensor.Params, mask []int, publicKey *paillier.PublicKey) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if mask != nil {
		return errorx.New(errcodes.ErrCodeParam, "sample masking is not supported")
	}
	if err := c.model.CheckParams(params); err != nil {
		return err
	}
	if c.cursor.Len() == 0 {
		return errorx.New(errcodes.ErrCodeDataExhaustion, "party %s has no batch", c.party.Role())
	}

	c.reseed(params)
	batch, err := c.cursor.Advance()
	if err != nil {
		return err
	}
	c.batch = batch
	if publicKey != nil {
		c.publicKey = publicKey
	}
	c.round++
	c.grad.reset()
	c.loss.reset()

	logger.WithFields(logrus.Fields{
		"uid":    c.uid,
		"round":  c.round,
		"cursor": c.cursor.Point(),
	}).Debug("round started")
	return nil
}

// CancelRound undoes the latest StartRound: the cursor and the round counter go
// back to where they were, so the same batch is served by the next StartRound.
func (c *Client) CancelRound() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.batch == nil {
		return errorx.New(errcodes.ErrCodeRoundNotStarted, "no active round to cancel")
	}
	c.cursor.Rewind()
	c.round--
	c.batch = nil
	c.grad.reset()
	c.loss.reset()

	logger.WithFields(logrus.Fields{
		"uid":    c.uid,
		"round":  c.round,
		"cursor": c.cursor.Point(),
	}).Warn("round cancelled")
	return nil
}

// StopRound releases the current batch, it is safe to call more than once
func (c *Client) StopRound() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.batch = nil
	c.grad.reset()
	c.loss.reset()
}

// Forward returns x·θ for the current batch, reseeding from params first when given.
// It does not advance the cursor.
func (c *Client) Forward(params tensor.Params) (*tensor.Matrix, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.batch == nil {
		return nil, errorx.New(errcodes.ErrCodeRoundNotStarted, "forward called without an active round")
	}
	if params != nil {
		if err := c.model.CheckParams(params); err != nil {
			return nil, err
		}
		c.reseed(params)
	}
	return c.model.Forward(c.batch.X)
}

func (c *Client) reseed(params tensor.Params) {
	c.globalParams = params.Clone()
	// shape is checked by the caller
	_ = c.model.CopyParams(c.globalParams)
}

// view must be called with the mutex held
func (c *Client) view() (*roundView, error) {
	if c.batch == nil {
		return nil, nil
	}
	out, err := c.model.Forward(c.batch.X)
	if err != nil {
		return nil, err
	}
	return &roundView{
		party: c.party,
		round: c.round,
		x:     c.batch.X,
		y:     c.batch.Y,
		out:   out,
	}, nil
}

// GradStep1 is executed by A and returns u'
func (c *Client) GradStep1() (*ProtocolMessage, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	v, err := c.view()
	if err != nil {
		return nil, err
	}
	return c.grad.step1(v)
}

// GradStep2 is executed by B and returns w and B's unscaled gradient z
func (c *Client) GradStep2(msg *ProtocolMessage) (*ProtocolMessage, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	v, err := c.view()
	if err != nil {
		return nil, err
	}
	return c.grad.step2(v, msg)
}

// GradStep3 is executed by A and returns the gradients of A and B, each shaped like its weights
func (c *Client) GradStep3(msg *ProtocolMessage) (wGrad, zGrad *tensor.Matrix, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	v, err := c.view()
	if err != nil {
		return nil, nil, err
	}
	return c.grad.step3(v, msg)
}

// LossStep1 is executed by A and returns u and u'
func (c *Client) LossStep1() (*ProtocolMessage, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	v, err := c.view()
	if err != nil {
		return nil, err
	}
	return c.loss.step1(v)
}

// LossStep2 is executed by B and returns v and w
func (c *Client) LossStep2(msg *ProtocolMessage) (*ProtocolMessage, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	v, err := c.view()
	if err != nil {
		return nil, err
	}
	return c.loss.step2(v, msg)
}

// LossStep3 is executed by A and returns the approximate mean loss of the batch
func (c *Client) LossStep3(msg *ProtocolMessage) (float64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	v, err := c.view()
	if err != nil {
		return 0, err
	}
	return c.loss.step3(v, msg)
}

// GradState and LossState expose the protocol progress of this party
func (c *Client) GradState() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.grad.State()
}

func (c *Client) LossState() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.loss.State()
}
