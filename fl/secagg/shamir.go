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
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/fed/crypto/common/math/rand"
	"github.com/PaddlePaddle/PaddleDTX/fed/crypto/core/secret_share"
	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/storage/ldbstorage"
)

var (
	logger = logrus.WithField("module", "fl.secagg")
)

type shareMeta struct {
	holders   []string
	threshold int
	rows      int
	cols      int
	precision int
}

// ShamirService shares values with Shamir's scheme over the BLS12-381 scalar field.
// Each holder keeps its shares in its own leveldb store.
type ShamirService struct {
	root      string
	threshold int
	prime     *big.Int

	mutex  sync.Mutex
	stores map[string]*ldbstorage.LevelDBStorage
	metas  map[ShareHandle]*shareMeta
}

// NewShamirService keeps holder stores under root, or in memory if root is empty.
// A threshold of zero requires every holder to reveal.
func NewShamirService(root string, threshold int) *ShamirService {
	return &ShamirService{
		root:      root,
		threshold: threshold,
		prime:     secret_share.Order,
		stores:    make(map[string]*ldbstorage.LevelDBStorage),
		metas:     make(map[ShareHandle]*shareMeta),
	}
}

// store must be called with the mutex held
func (s *ShamirService) store(holder string) (*ldbstorage.LevelDBStorage, error) {
	if st, ok := s.stores[holder]; ok {
		return st, nil
	}
	root := ""
	if s.root != "" {
		root = filepath.Join(s.root, holder)
	}
	st, err := ldbstorage.New(root)
	if err != nil {
		return nil, err
	}
	s.stores[holder] = st
	return st, nil
}

func (s *ShamirService) Submit(ctx context.Context, value *FixedTensor, participants []string, cryptoProvider string) (ShareHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	holders, err := checkHolders(participants, cryptoProvider)
	if err != nil {
		return "", err
	}
	threshold := s.threshold
	if threshold <= 0 || threshold > len(holders) {
		threshold = len(holders)
	}

	shares := make([]*ldbstorage.Share, len(holders))
	for i := range holders {
		shares[i] = &ldbstorage.Share{X: i + 1, Values: make([]*big.Int, len(value.Data))}
	}
	// one seeded keystream draws every coefficient of this submission
	stream, err := rand.NewStream(rand.KeyStrengthHard)
	if err != nil {
		return "", errorx.NewCode(err, errcodes.ErrCodeAggregationFailure, "failed to seed share randomness")
	}
	for k, v := range value.Data {
		split, err := secret_share.Split(stream, len(holders), threshold, secret_share.EncodeSigned(big.NewInt(v), s.prime), s.prime)
		if err != nil {
			return "", errorx.NewCode(err, errcodes.ErrCodeAggregationFailure, "failed to split value")
		}
		for i := range holders {
			shares[i].Values[k] = split[i+1]
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	handle := ShareHandle(uuid.NewString())
	if err := s.distribute(handle, holders, shares); err != nil {
		return "", err
	}
	s.metas[handle] = &shareMeta{
		holders:   holders,
		threshold: threshold,
		rows:      value.Rows,
		cols:      value.Cols,
		precision: value.Precision,
	}
	return handle, nil
}

// distribute hands one share to each holder, a failure removes the shares already handed out.
// It must be called with the mutex held.
func (s *ShamirService) distribute(handle ShareHandle, holders []string, shares []*ldbstorage.Share) error {
	for i, holder := range holders {
		err := s.saveShare(holder, handle, shares[i])
		if err == nil {
			continue
		}
		for _, done := range holders[:i] {
			if derr := s.stores[done].Delete(string(handle)); derr != nil {
				logger.WithFields(logrus.Fields{
					"holder": done,
					"handle": handle,
				}).WithError(derr).Error("failed to discard share")
			}
		}
		return errorx.NewCode(err, errcodes.ErrCodeAggregationFailure, "holder %s failed to keep its share", holder)
	}
	return nil
}

func (s *ShamirService) saveShare(holder string, handle ShareHandle, share *ldbstorage.Share) error {
	st, err := s.store(holder)
	if err != nil {
		return err
	}
	return st.Save(map[string]*ldbstorage.Share{string(handle): share})
}

func (s *ShamirService) Reveal(ctx context.Context, handle ShareHandle) (*FixedTensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	meta, ok := s.metas[handle]
	if !ok {
		return nil, errorx.New(errcodes.ErrCodeNotFound, "unknown share handle %s", handle)
	}

	var collected []*ldbstorage.Share
	for _, holder := range meta.holders {
		if len(collected) == meta.threshold {
			break
		}
		st, err := s.store(holder)
		if err != nil {
			continue
		}
		share, err := st.Load(string(handle))
		if err != nil {
			logger.WithField("holder", holder).WithError(err).Warn("holder did not return its share")
			continue
		}
		collected = append(collected, share)
	}
	if len(collected) < meta.threshold {
		return nil, errorx.New(errcodes.ErrCodeAggregationFailure, "only %d of %d shares available for %s", len(collected), meta.threshold, handle)
	}

	f := &FixedTensor{
		Rows:      meta.rows,
		Cols:      meta.cols,
		Precision: meta.precision,
		Data:      make([]int64, meta.rows*meta.cols),
	}
	for k := range f.Data {
		points := make(map[int]*big.Int, len(collected))
		for _, share := range collected {
			points[share.X] = share.Values[k]
		}
		secret, err := secret_share.Retrieve(points, meta.threshold, s.prime)
		if err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeAggregationFailure, "failed to retrieve value")
		}
		f.Data[k] = secret_share.DecodeSigned(secret, s.prime).Int64()
	}
	return f, nil
}

func (s *ShamirService) Sum(ctx context.Context, handles []ShareHandle) (ShareHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(handles) == 0 {
		return "", errorx.New(errcodes.ErrCodeParam, "nothing to sum")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	first, ok := s.metas[handles[0]]
	if !ok {
		return "", errorx.New(errcodes.ErrCodeNotFound, "unknown share handle %s", handles[0])
	}
	for _, h := range handles[1:] {
		meta, ok := s.metas[h]
		if !ok {
			return "", errorx.New(errcodes.ErrCodeNotFound, "unknown share handle %s", h)
		}
		if !sameHolders(meta.holders, first.holders) || meta.threshold != first.threshold ||
			meta.rows != first.rows || meta.cols != first.cols || meta.precision != first.precision {
			return "", errorx.New(errcodes.ErrCodeDimensionMismatch, "share %s can not be added to %s", h, handles[0])
		}
	}

	// each holder adds its own shares locally
	sums := make([]*ldbstorage.Share, len(first.holders))
	for i, holder := range first.holders {
		st, err := s.store(holder)
		if err != nil {
			return "", errorx.NewCode(err, errcodes.ErrCodeAggregationFailure, "holder %s unavailable", holder)
		}
		var sum *ldbstorage.Share
		for _, h := range handles {
			share, err := st.Load(string(h))
			if err != nil {
				return "", errorx.NewCode(err, errcodes.ErrCodeAggregationFailure, "holder %s lost share %s", holder, h)
			}
			if sum == nil {
				sum = &ldbstorage.Share{X: share.X, Values: share.Values}
				continue
			}
			for k := range sum.Values {
				sum.Values[k] = secret_share.AddShares(sum.Values[k], share.Values[k], s.prime)
			}
		}
		sums[i] = sum
	}

	handle := ShareHandle(uuid.NewString())
	if err := s.distribute(handle, first.holders, sums); err != nil {
		return "", err
	}
	meta := *first
	s.metas[handle] = &meta
	return handle, nil
}

func (s *ShamirService) Discard(ctx context.Context, handle ShareHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	meta, ok := s.metas[handle]
	if !ok {
		return nil
	}
	for _, holder := range meta.holders {
		if st, ok := s.stores[holder]; ok {
			if err := st.Delete(string(handle)); err != nil {
				return err
			}
		}
	}
	delete(s.metas, handle)
	return nil
}

func (s *ShamirService) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for name, st := range s.stores {
		if err := st.Close(); err != nil {
			logger.WithField("holder", name).WithError(err).Warn("failed to close store")
		}
	}
	s.stores = make(map[string]*ldbstorage.LevelDBStorage)
	return nil
}
