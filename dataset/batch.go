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

package dataset

import (
	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

// Batch is a contiguous slice of samples
type Batch struct {
	X *tensor.Matrix
	Y *tensor.Matrix
}

// Size returns the number of samples in the batch
func (b *Batch) Size() int {
	return b.X.Rows
}

// Batches cuts d into consecutive batches of batchSize samples, a trailing
// partial batch is dropped. If batchSize is zero or not smaller than the number
// of samples, the whole dataset is one batch.
func (d *Dataset) Batches(batchSize int) []*Batch {
	sampleNum := d.NumSamples()
	if sampleNum == 0 {
		return nil
	}
	if batchSize <= 0 || batchSize >= sampleNum {
		return []*Batch{{X: d.X.Clone(), Y: d.Y.Clone()}}
	}

	batches := make([]*Batch, 0, sampleNum/batchSize)
	for start := 0; start+batchSize <= sampleNum; start += batchSize {
		b := &Batch{}
		b.X, _ = d.X.SliceRows(start, start+batchSize)
		if d.Y != nil {
			b.Y, _ = d.Y.SliceRows(start, start+batchSize)
		}
		batches = append(batches, b)
	}
	return batches
}

// Cursor iterates cyclically over a fixed list of batches.
// It starts before the first batch, every Advance moves it by exactly one.
type Cursor struct {
	batches []*Batch
	point   int
	last    int
}

func NewCursor(batches []*Batch) *Cursor {
	return &Cursor{
		batches: batches,
		point:   -1,
		last:    -1,
	}
}

// Advance moves to the next batch, wrapping around at the end
func (c *Cursor) Advance() (*Batch, error) {
	if len(c.batches) == 0 {
		return nil, errorx.New(errcodes.ErrCodeDataExhaustion, "no batch available")
	}
	c.last = c.point
	c.point = (c.point + 1) % len(c.batches)
	return c.batches[c.point], nil
}

// Rewind undoes the latest Advance, a second call is a no-op
func (c *Cursor) Rewind() {
	c.point = c.last
}

// Current returns the batch under the cursor, nil before the first Advance
func (c *Cursor) Current() *Batch {
	if c.point < 0 || len(c.batches) == 0 {
		return nil
	}
	return c.batches[c.point]
}

// Point returns the index of the current batch, -1 before the first Advance
func (c *Cursor) Point() int {
	return c.point
}

// Len returns the number of batches
func (c *Cursor) Len() int {
	return len(c.batches)
}

// Batches returns all batches in order, used to run full epochs
func (c *Cursor) Batches() []*Batch {
	return c.batches
}
