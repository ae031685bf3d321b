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

package secret_share

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PaddlePaddle/PaddleDTX/fed/crypto/common/math/rand"
)

func TestSplitAndRetrieve(t *testing.T) {
	secret := big.NewInt(-271828)
	shares, err := Split(nil, 5, 3, EncodeSigned(secret, Order), Order)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	subset := map[int]*big.Int{1: shares[1], 3: shares[3], 5: shares[5]}
	r, err := Retrieve(subset, 3, Order)
	require.NoError(t, err)
	require.Equal(t, 0, secret.Cmp(DecodeSigned(r, Order)))

	_, err = Retrieve(map[int]*big.Int{1: shares[1]}, 3, Order)
	require.Equal(t, NotEnoughSharesError, err)
}

func TestAdditiveShares(t *testing.T) {
	stream, err := rand.NewStream(rand.KeyStrengthHard)
	require.NoError(t, err)

	a, b := big.NewInt(1500), big.NewInt(-700)
	sa, err := Split(stream, 3, 3, EncodeSigned(a, Order), Order)
	require.NoError(t, err)
	sb, err := Split(stream, 3, 3, EncodeSigned(b, Order), Order)
	require.NoError(t, err)

	sum := make(map[int]*big.Int)
	for i := range sa {
		sum[i] = AddShares(sa[i], sb[i], Order)
	}
	r, err := Retrieve(sum, 3, Order)
	require.NoError(t, err)
	require.Equal(t, int64(800), DecodeSigned(r, Order).Int64())
}

func TestSplitInvalid(t *testing.T) {
	_, err := Split(nil, 1, 1, big.NewInt(1), Order)
	require.Equal(t, InvalidTotalShareNumberError, err)
	_, err = Split(nil, 3, 4, big.NewInt(1), Order)
	require.Equal(t, InvalidShareNumberError, err)
}
