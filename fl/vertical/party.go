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
	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
)

// Role tells which side of the vertical split a party is on
type Role uint8

const (
	// RoleA holds labels and drives steps 1 and 3
	RoleA Role = iota
	// RoleB holds features only and runs step 2
	RoleB
)

func (r Role) String() string {
	switch r {
	case RoleA:
		return "A"
	case RoleB:
		return "B"
	}
	return "unknown"
}

// Party describes the features a participant owns, it is immutable once created
type Party struct {
	role        Role
	numFeatures int
	numOutput   int
}

func NewParty(role Role, numFeatures, numOutput int) (*Party, error) {
	if role != RoleA && role != RoleB {
		return nil, errorx.New(errcodes.ErrCodeParam, "invalid party role %d", role)
	}
	if numFeatures <= 0 || numOutput <= 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "invalid party shape: features %d, output %d", numFeatures, numOutput)
	}
	return &Party{
		role:        role,
		numFeatures: numFeatures,
		numOutput:   numOutput,
	}, nil
}

func (p *Party) Role() Role {
	return p.role
}

func (p *Party) NumFeatures() int {
	return p.numFeatures
}

func (p *Party) NumOutput() int {
	return p.numOutput
}

// HoldsLabels reports whether the party may load labels
func (p *Party) HoldsLabels() bool {
	return p.role == RoleA
}
