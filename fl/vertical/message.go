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
	"fmt"

	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

// Kind tells which protocol a message belongs to
type Kind uint8

const (
	KindGrad Kind = iota + 1
	KindLoss
)

func (k Kind) String() string {
	switch k {
	case KindGrad:
		return "grad"
	case KindLoss:
		return "loss"
	}
	return "unknown"
}

// Names of the intermediate values exchanged between steps
const (
	MsgU      = "u"
	MsgUPrime = "u'"
	MsgV      = "v"
	MsgW      = "w"
	MsgZ      = "z"
)

// ProtocolMessage carries the intermediate values one step hands to the next.
// Per-sample values are laid out output-major, out x n. Scalars are 1 x 1.
type ProtocolMessage struct {
	Kind   Kind
	Step   int
	Round  uint64
	Values map[string]*tensor.Matrix
}

func newMessage(kind Kind, step int, round uint64) *ProtocolMessage {
	return &ProtocolMessage{
		Kind:   kind,
		Step:   step,
		Round:  round,
		Values: make(map[string]*tensor.Matrix),
	}
}

// Get returns the value called name
func (m *ProtocolMessage) Get(name string) (*tensor.Matrix, error) {
	v, ok := m.Values[name]
	if !ok || v == nil {
		return nil, errorx.New(errcodes.ErrCodeParam, "message %s missing value %s", m, name)
	}
	return v, nil
}

// Scalar returns the 1 x 1 value called name
func (m *ProtocolMessage) Scalar(name string) (float64, error) {
	v, err := m.Get(name)
	if err != nil {
		return 0, err
	}
	if v.Rows != 1 || v.Cols != 1 {
		return 0, errorx.New(errcodes.ErrCodeDimensionMismatch, "message %s value %s is not a scalar", m, name)
	}
	return v.At(0, 0), nil
}

func (m *ProtocolMessage) String() string {
	return fmt.Sprintf("%s#%d@%d", m.Kind, m.Step, m.Round)
}
