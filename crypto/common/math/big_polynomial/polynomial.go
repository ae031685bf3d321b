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

package big_polynomial

import (
	"errors"
	"io"
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/fed/crypto/common/math/rand"
)

var (
	ErrDuplicatePoint = errors.New("points must have distinct x coordinates")
	ErrNoPoints       = errors.New("at least one point is required")
)

// PolynomialClient does polynomial arithmetic over the Galois field GF(prime).
// Coefficients are ordered from the constant term upward.
type PolynomialClient struct {
	prime *big.Int
}

func New(prime *big.Int) *PolynomialClient {
	return &PolynomialClient{prime: prime}
}

// RandomGenerate returns a random polynomial of exactly the given degree whose constant term is intercept.
// Coefficients are drawn from r, crypto/rand if r is nil.
func (pc *PolynomialClient) RandomGenerate(r io.Reader, degree int, intercept *big.Int) ([]*big.Int, error) {
	result := make([]*big.Int, degree+1)
	result[0] = new(big.Int).Mod(intercept, pc.prime)

	for i := 1; i <= degree; i++ {
		for {
			c, err := rand.Int(r, pc.prime)
			if err != nil {
				return nil, err
			}
			// the leading coefficient can not be zero or the degree drops
			if i < degree || c.Sign() != 0 {
				result[i] = c
				break
			}
		}
	}
	return result, nil
}

// Evaluate computes p(x) mod prime with Horner's rule
func (pc *PolynomialClient) Evaluate(coefficients []*big.Int, x *big.Int) *big.Int {
	degree := len(coefficients) - 1
	result := new(big.Int).Set(coefficients[degree])
	for i := degree - 1; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, coefficients[i])
		result.Mod(result, pc.prime)
	}
	return result.Mod(result, pc.prime)
}

// InterpolateAtZero returns p(0) for the polynomial through points without building p
func (pc *PolynomialClient) InterpolateAtZero(points map[int]*big.Int) (*big.Int, error) {
	xs, ys, err := pc.split(points)
	if err != nil {
		return nil, err
	}
	secret := big.NewInt(0)
	for i := range xs {
		num, den := big.NewInt(1), big.NewInt(1)
		for j := range xs {
			if i == j {
				continue
			}
			num.Mul(num, new(big.Int).Neg(xs[j]))
			num.Mod(num, pc.prime)
			den.Mul(den, new(big.Int).Sub(xs[i], xs[j]))
			den.Mod(den, pc.prime)
		}
		term := new(big.Int).Mul(ys[i], num)
		term.Mul(term, new(big.Int).ModInverse(den, pc.prime))
		secret.Add(secret, term)
		secret.Mod(secret, pc.prime)
	}
	return secret, nil
}

func (pc *PolynomialClient) split(points map[int]*big.Int) (xs, ys []*big.Int, err error) {
	if len(points) == 0 {
		return nil, nil, ErrNoPoints
	}
	seen := make(map[string]bool, len(points))
	for k, v := range points {
		x := new(big.Int).Mod(big.NewInt(int64(k)), pc.prime)
		if seen[x.String()] {
			return nil, nil, ErrDuplicatePoint
		}
		seen[x.String()] = true
		xs = append(xs, x)
		ys = append(ys, v)
	}
	return xs, ys, nil
}
