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
	"errors"
	"io"
	"math/big"

	bls12_381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	polynomial "github.com/PaddlePaddle/PaddleDTX/fed/crypto/common/math/big_polynomial"
)

var (
	InvalidTotalShareNumberError = errors.New("totalShareNumber must be greater than one")
	InvalidShareNumberError      = errors.New("minimumShareNumber must be within [1, totalShareNumber]")
	NotEnoughSharesError         = errors.New("not enough shares to retrieve the secret")
)

// Order is the default field order, the scalar field of BLS12-381
var Order = bls12_381_fr.Modulus()

// Split splits secret into totalShareNumber shares indexed 1..totalShareNumber,
// any minimumShareNumber of which retrieve it. Polynomial coefficients are read
// from r, crypto/rand if r is nil.
func Split(r io.Reader, totalShareNumber, minimumShareNumber int, secret, prime *big.Int) (map[int]*big.Int, error) {
	if totalShareNumber < 2 {
		return nil, InvalidTotalShareNumberError
	}
	if minimumShareNumber < 1 || minimumShareNumber > totalShareNumber {
		return nil, InvalidShareNumberError
	}

	pc := polynomial.New(prime)
	poly, err := pc.RandomGenerate(r, minimumShareNumber-1, secret)
	if err != nil {
		return nil, err
	}

	shares := make(map[int]*big.Int, totalShareNumber)
	for x := 1; x <= totalShareNumber; x++ {
		shares[x] = pc.Evaluate(poly, big.NewInt(int64(x)))
	}
	return shares, nil
}

// Retrieve recovers the secret from at least minimumShareNumber shares
func Retrieve(shares map[int]*big.Int, minimumShareNumber int, prime *big.Int) (*big.Int, error) {
	if len(shares) < minimumShareNumber {
		return nil, NotEnoughSharesError
	}
	return polynomial.New(prime).InterpolateAtZero(shares)
}

// AddShares adds two shares of the same index, the result is a share of the sum of the secrets
func AddShares(a, b, prime *big.Int) *big.Int {
	s := new(big.Int).Add(a, b)
	return s.Mod(s, prime)
}

// EncodeSigned maps a signed integer into [0, prime), negatives land in the upper half
func EncodeSigned(v, prime *big.Int) *big.Int {
	return new(big.Int).Mod(v, prime)
}

// DecodeSigned is the inverse of EncodeSigned
func DecodeSigned(v, prime *big.Int) *big.Int {
	half := new(big.Int).Rsh(prime, 1)
	r := new(big.Int).Mod(v, prime)
	if r.Cmp(half) > 0 {
		r.Sub(r, prime)
	}
	return r
}
