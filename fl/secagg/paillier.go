// Copyright (c) 2021 PaddlePaddle Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package secagg

import (
	"context"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/fed/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
)

type cypherTensor struct {
	rows          int
	cols          int
	precision     int
	contributions int
	values        []*big.Int
}

// PaillierService keeps values encrypted under a key whose decryption exponent is
// split among the participants and the crypto provider. Sums are computed on
// ciphertexts, decryption takes a partial decryption from every holder, and only
// sums of at least two contributions are ever decrypted.
type PaillierService struct {
	publicKey *paillier.PublicKey
	holders   []string
	keyShares map[string]*paillier.KeyShare

	mutex   sync.Mutex
	cyphers map[ShareHandle]*cypherTensor
}

// NewPaillierService splits key among participants and cryptoProvider. The private
// key is not kept, the caller should drop it too.
func NewPaillierService(key *paillier.PrivateKey, participants []string, cryptoProvider string) (*PaillierService, error) {
	holders, err := checkHolders(participants, cryptoProvider)
	if err != nil {
		return nil, err
	}
	shares, err := paillier.SplitKey(key, len(holders))
	if err != nil {
		return nil, errorx.NewCode(err, errorx.ErrCodeCrypto, "failed to split paillier key")
	}
	keyShares := make(map[string]*paillier.KeyShare, len(holders))
	for i, h := range holders {
		keyShares[h] = shares[i]
	}
	pk := key.PublicKey
	return &PaillierService{
		publicKey: &pk,
		holders:   holders,
		keyShares: keyShares,
		cyphers:   make(map[ShareHandle]*cypherTensor),
	}, nil
}

func (p *PaillierService) Submit(ctx context.Context, value *FixedTensor, participants []string, cryptoProvider string) (ShareHandle, error) {
	holders, err := checkHolders(participants, cryptoProvider)
	if err != nil {
		return "", err
	}
	if !sameHolders(holders, p.holders) {
		return "", errorx.New(errcodes.ErrCodeParam, "holders %v do not own the decryption key", holders)
	}
	c := &cypherTensor{
		rows:          value.Rows,
		cols:          value.Cols,
		precision:     value.Precision,
		contributions: 1,
		values:        make([]*big.Int, len(value.Data)),
	}
	for k, v := range value.Data {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		cypher, err := p.publicKey.EncryptSupNegNum(big.NewInt(v))
		if err != nil {
			return "", errorx.NewCode(err, errcodes.ErrCodeAggregationFailure, "failed to encrypt value")
		}
		c.values[k] = cypher
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	handle := ShareHandle(uuid.NewString())
	p.cyphers[handle] = c
	return handle, nil
}

// Reveal collects a partial decryption from every holder. A single contribution
// is never decrypted.
func (p *PaillierService) Reveal(ctx context.Context, handle ShareHandle) (*FixedTensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mutex.Lock()
	c, ok := p.cyphers[handle]
	p.mutex.Unlock()
	if !ok {
		return nil, errorx.New(errcodes.ErrCodeNotFound, "unknown share handle %s", handle)
	}
	if c.contributions < 2 {
		return nil, errorx.New(errcodes.ErrCodeParam, "%s holds %d contribution, only sums of two or more can be revealed",
			handle, c.contributions)
	}

	f := &FixedTensor{
		Rows:      c.rows,
		Cols:      c.cols,
		Precision: c.precision,
		Data:      make([]int64, len(c.values)),
	}
	partials := make([]*big.Int, len(p.holders))
	for k, cypher := range c.values {
		for i, h := range p.holders {
			partials[i] = p.keyShares[h].PartialDecrypt(cypher)
		}
		m, err := p.publicKey.CombinePartials(partials...)
		if err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeAggregationFailure, "failed to decrypt %s", handle)
		}
		f.Data[k] = m.Int64()
	}
	logger.WithFields(logrus.Fields{
		"handle":        handle,
		"contributions": c.contributions,
	}).Debug("paillier sum revealed")
	return f, nil
}

func (p *PaillierService) Sum(ctx context.Context, handles []ShareHandle) (ShareHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(handles) == 0 {
		return "", errorx.New(errcodes.ErrCodeParam, "nothing to sum")
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var parts []*cypherTensor
	seen := make(map[ShareHandle]bool, len(handles))
	for _, h := range handles {
		// a handle added to itself would reveal a multiple of one contribution
		if seen[h] {
			return "", errorx.New(errcodes.ErrCodeParam, "share %s is summed twice", h)
		}
		seen[h] = true
		c, ok := p.cyphers[h]
		if !ok {
			return "", errorx.New(errcodes.ErrCodeNotFound, "unknown share handle %s", h)
		}
		if len(parts) > 0 {
			first := parts[0]
			if c.rows != first.rows || c.cols != first.cols || c.precision != first.precision {
				return "", errorx.New(errcodes.ErrCodeDimensionMismatch, "share %s can not be added to %s", h, handles[0])
			}
		}
		parts = append(parts, c)
	}

	sum := &cypherTensor{
		rows:      parts[0].rows,
		cols:      parts[0].cols,
		precision: parts[0].precision,
		values:    make([]*big.Int, len(parts[0].values)),
	}
	for _, c := range parts {
		sum.contributions += c.contributions
	}
	for k := range sum.values {
		cs := make([]*big.Int, len(parts))
		for i, c := range parts {
			cs[i] = c.values[k]
		}
		sum.values[k] = p.publicKey.CyphersAdd(cs...)
	}
	handle := ShareHandle(uuid.NewString())
	p.cyphers[handle] = sum
	return handle, nil
}

func (p *PaillierService) Discard(ctx context.Context, handle ShareHandle) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.cyphers, handle)
	return nil
}

func (p *PaillierService) Close() error {
	return nil
}
