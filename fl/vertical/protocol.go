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
	"math"

	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

// State is the last completed step of a protocol as seen by one party
type State uint8

const (
	StateInit State = iota
	StateStep1
	StateStep2
	StateStep3 // complete
)

// roundView is what a protocol step may read from its client during one round
type roundView struct {
	party *Party
	round uint64
	x     *tensor.Matrix
	y     *tensor.Matrix // nil for RoleB
	out   *tensor.Matrix // x·θ
}

// stepMachine enforces the INIT -> 1 -> 2 -> 3 order of one protocol run
type stepMachine struct {
	kind  Kind
	state State
}

func (m *stepMachine) String() string {
	if m.state == StateInit {
		return "INIT"
	}
	prefix := "S"
	if m.kind == KindLoss {
		prefix = "L"
	}
	return fmt.Sprintf("%s%d", prefix, m.state)
}

func (m *stepMachine) reset() {
	m.state = StateInit
}

// stepRoles and stepRequires describe who runs each step and the local state it starts from
var (
	stepRoles    = map[int]Role{1: RoleA, 2: RoleB, 3: RoleA}
	stepRequires = map[int]State{1: StateInit, 2: StateInit, 3: StateStep1}
)

// check rejects a step run by the wrong role, out of order, replayed, or fed
// with a message that is not the output of the previous step of this round
func (m *stepMachine) check(step int, v *roundView, prev *ProtocolMessage) error {
	if v == nil {
		return errorx.New(errcodes.ErrCodeRoundNotStarted, "%s step %d called without an active round", m.kind, step)
	}
	if role := stepRoles[step]; v.party.Role() != role {
		return errorx.New(errcodes.ErrCodeProtocolOrderViolation, "%s step %d must be executed by party %s, not %s",
			m.kind, step, role, v.party.Role())
	}
	if m.state != stepRequires[step] {
		return errorx.New(errcodes.ErrCodeProtocolOrderViolation, "%s step %d called in state %s", m.kind, step, m)
	}
	if step == 1 {
		return nil
	}
	if prev == nil {
		return errorx.New(errcodes.ErrCodeProtocolOrderViolation, "%s step %d called without the message of step %d", m.kind, step, step-1)
	}
	if prev.Kind != m.kind || prev.Step != step-1 || prev.Round != v.round {
		return errorx.New(errcodes.ErrCodeProtocolOrderViolation, "%s step %d of round %d got message %s",
			m.kind, step, v.round, prev)
	}
	return nil
}

// GradProtocol computes both parties' gradients of the Taylor-expanded logistic loss
// for one batch. With a = x_A·θ_A, b = x_B·θ_B and y in {-1, +1}:
//   step 1 (A): u' = a/4 - y/2
//   step 2 (B): w = u' + b/4, z = w·x_B
//   step 3 (A): z' = w·x_A, gradients are z'ᵀ/n and zᵀ/n
type GradProtocol struct {
	sm stepMachine
}

func newGradProtocol() *GradProtocol {
	return &GradProtocol{sm: stepMachine{kind: KindGrad}}
}

// State returns the last completed step known to this party
func (g *GradProtocol) State() State {
	return g.sm.state
}

func (g *GradProtocol) reset() {
	g.sm.reset()
}

func (g *GradProtocol) step1(v *roundView) (*ProtocolMessage, error) {
	if err := g.sm.check(1, v, nil); err != nil {
		return nil, err
	}
	uPrime, err := residual(v.out, v.y)
	if err != nil {
		return nil, err
	}

	msg := newMessage(KindGrad, 1, v.round)
	msg.Values[MsgUPrime] = uPrime
	g.sm.state = StateStep1
	return msg, nil
}

func (g *GradProtocol) step2(v *roundView, prev *ProtocolMessage) (*ProtocolMessage, error) {
	if err := g.sm.check(2, v, prev); err != nil {
		return nil, err
	}
	uPrime, err := prev.Get(MsgUPrime)
	if err != nil {
		return nil, err
	}
	w, err := tensor.Add(uPrime, v.out.T().Scale(0.25))
	if err != nil {
		return nil, errorx.Wrap(err, "u' does not match the batch of party B")
	}
	z, err := tensor.Mul(w, v.x)
	if err != nil {
		return nil, err
	}

	msg := newMessage(KindGrad, 2, v.round)
	msg.Values[MsgW] = w
	msg.Values[MsgZ] = z
	g.sm.state = StateStep2
	return msg, nil
}

func (g *GradProtocol) step3(v *roundView, prev *ProtocolMessage) (wGrad, zGrad *tensor.Matrix, err error) {
	if err := g.sm.check(3, v, prev); err != nil {
		return nil, nil, err
	}
	w, err := prev.Get(MsgW)
	if err != nil {
		return nil, nil, err
	}
	z, err := prev.Get(MsgZ)
	if err != nil {
		return nil, nil, err
	}
	zPrime, err := tensor.Mul(w, v.x)
	if err != nil {
		return nil, nil, errorx.Wrap(err, "w does not match the batch of party A")
	}

	n := 1.0 / float64(v.y.Rows)
	g.sm.state = StateStep3
	return zPrime.T().Scale(n), z.T().Scale(n), nil
}

// LossProtocol estimates the mean logistic loss of one batch with its second order
// Taylor expansion, it is for monitoring only:
//   L1 (A): u = a/4 - y/2, u' = Σ(a²/4 - y·a)
//   L2 (B): v = 2b, w = u' + Σb²/4
//   L3 (A): loss = log(2 + (w + u·v)/n)
type LossProtocol struct {
	sm stepMachine
	u  *tensor.Matrix // kept by A between L1 and L3
}

func newLossProtocol() *LossProtocol {
	return &LossProtocol{sm: stepMachine{kind: KindLoss}}
}

// State returns the last completed step known to this party
func (l *LossProtocol) State() State {
	return l.sm.state
}

func (l *LossProtocol) reset() {
	l.sm.reset()
	l.u = nil
}

func (l *LossProtocol) step1(v *roundView) (*ProtocolMessage, error) {
	if err := l.sm.check(1, v, nil); err != nil {
		return nil, err
	}
	u, err := residual(v.out, v.y)
	if err != nil {
		return nil, err
	}
	var uPrime float64
	for i := 0; i < v.out.Rows; i++ {
		yi := v.y.At(i, 0)
		for j := 0; j < v.out.Cols; j++ {
			a := v.out.At(i, j)
			uPrime += a*a/4 - yi*a
		}
	}

	msg := newMessage(KindLoss, 1, v.round)
	msg.Values[MsgU] = u
	msg.Values[MsgUPrime] = tensor.Column([]float64{uPrime})
	l.u = u.Clone()
	l.sm.state = StateStep1
	return msg, nil
}

func (l *LossProtocol) step2(v *roundView, prev *ProtocolMessage) (*ProtocolMessage, error) {
	if err := l.sm.check(2, v, prev); err != nil {
		return nil, err
	}
	u, err := prev.Get(MsgU)
	if err != nil {
		return nil, err
	}
	uPrime, err := prev.Scalar(MsgUPrime)
	if err != nil {
		return nil, err
	}
	vt := v.out.T()
	if !u.SameShape(vt) {
		return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "u (%dx%d) does not match the batch of party B (%dx%d)",
			u.Rows, u.Cols, vt.Rows, vt.Cols)
	}
	var bb float64
	for _, b := range v.out.Data {
		bb += b * b / 4
	}

	msg := newMessage(KindLoss, 2, v.round)
	msg.Values[MsgV] = vt.Scale(2)
	msg.Values[MsgW] = tensor.Column([]float64{uPrime + bb})
	l.sm.state = StateStep2
	return msg, nil
}

func (l *LossProtocol) step3(v *roundView, prev *ProtocolMessage) (float64, error) {
	if err := l.sm.check(3, v, prev); err != nil {
		return 0, err
	}
	vv, err := prev.Get(MsgV)
	if err != nil {
		return 0, err
	}
	w, err := prev.Scalar(MsgW)
	if err != nil {
		return 0, err
	}
	uv, err := tensor.Dot(l.u, vv)
	if err != nil {
		return 0, err
	}

	l.sm.state = StateStep3
	return math.Log(2 + (w+uv)/float64(v.y.Rows)), nil
}

// residual returns (a/4 - y/2)ᵀ, laid out out x n
func residual(a, y *tensor.Matrix) (*tensor.Matrix, error) {
	if y == nil || y.Rows != a.Rows {
		return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "labels do not match the batch")
	}
	r := tensor.New(a.Cols, a.Rows)
	for i := 0; i < a.Rows; i++ {
		yi := y.At(i, 0)
		for j := 0; j < a.Cols; j++ {
			r.Set(j, i, a.At(i, j)/4-yi/2)
		}
	}
	return r, nil
}
