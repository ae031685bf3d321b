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

package ldbstorage

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
)

const (
	sharePrefix = "share:"
)

// Share is the part of a secret-shared tensor one holder keeps
type Share struct {
	// X is the evaluation point of the holder
	X      int        `json:"x"`
	Values []*big.Int `json:"values"`
}

// LevelDBStorage keeps the shares of one holder
type LevelDBStorage struct {
	root string
	db   *leveldb.DB
}

// New opens a share store under root, an empty root keeps everything in memory
func New(root string) (*LevelDBStorage, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if root == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		if err = os.MkdirAll(filepath.Dir(root), 0755); err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "cannot create store directory")
		}
		db, err = leveldb.OpenFile(root, nil)
	}
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "cannot open leveldb")
	}

	return &LevelDBStorage{
		root: root,
		db:   db,
	}, nil
}

// Save writes the shares of several handles in one batch
func (s *LevelDBStorage) Save(shares map[string]*Share) error {
	batch := leveldb.Batch{}
	for handle, share := range shares {
		value, err := json.Marshal(share)
		if err != nil {
			return errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to marshal share")
		}
		batch.Put(makeShareKey(handle), value)
	}
	if err := s.db.Write(&batch, nil); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to write batch")
	}
	return nil
}

// Load reads the share kept for handle
func (s *LevelDBStorage) Load(handle string) (*Share, error) {
	value, err := s.db.Get(makeShareKey(handle), nil)
	if err == leveldb.ErrNotFound {
		return nil, errorx.New(errcodes.ErrCodeNotFound, "share %s not found", handle)
	}
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to get")
	}

	share := new(Share)
	if err := json.Unmarshal(value, share); err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to unmarshal share")
	}
	return share, nil
}

// Delete drops the shares of handles, missing ones are ignored
func (s *LevelDBStorage) Delete(handles ...string) error {
	batch := leveldb.Batch{}
	for _, handle := range handles {
		batch.Delete(makeShareKey(handle))
	}
	if err := s.db.Write(&batch, nil); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to write batch")
	}
	return nil
}

// List returns every stored handle
func (s *LevelDBStorage) List() ([]string, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(sharePrefix)), nil)
	var handles []string
	for iter.Next() {
		handles = append(handles, string(iter.Key()[len(sharePrefix):]))
	}
	iter.Release()
	return handles, iter.Error()
}

func (s *LevelDBStorage) Close() error {
	return s.db.Close()
}

func makeShareKey(handle string) []byte {
	return []byte(sharePrefix + handle)
}
