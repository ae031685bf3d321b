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
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
)

func testStorage(t *testing.T, s *LevelDBStorage) {
	shares := map[string]*Share{
		"h1": {X: 1, Values: []*big.Int{big.NewInt(7), big.NewInt(-3)}},
		"h2": {X: 1, Values: []*big.Int{big.NewInt(11)}},
	}
	require.NoError(t, s.Save(shares))

	got, err := s.Load("h1")
	require.NoError(t, err)
	require.Equal(t, 1, got.X)
	require.Len(t, got.Values, 2)
	require.Equal(t, int64(-3), got.Values[1].Int64())

	handles, err := s.List()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"h1", "h2"}, handles)

	require.NoError(t, s.Delete("h1", "missing"))
	_, err = s.Load("h1")
	require.True(t, errorx.Is(err, errcodes.ErrCodeNotFound))

	require.NoError(t, s.Close())
	require.Error(t, s.Save(shares))
}

func TestMemStorage(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	testStorage(t, s)
}

func TestFileStorage(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "stores", "alice"))
	require.NoError(t, err)
	testStorage(t, s)
}
