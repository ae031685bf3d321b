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

package paillier

import (
	cryptoRand "crypto/rand"
	"errors"
	"math/big"
)

var (
	DefaultPrimeLength = 512
)

var (
	ErrPrimePEqualsQ      = errors.New("prime P should not equal Q")
	ErrMsgOutOfRange      = errors.New("msg to be encrypted must within [0,N)")
	ErrInvalidShareNumber = errors.New("a key is split into at least two shares")
	ErrNoPartials         = errors.New("no partial decryption to combine")
)

var one = big.NewInt(1)

type PrivateKey struct {
	PublicKey
	Lambda *big.Int // λ
	Mu     *big.Int // μ
}

type PublicKey struct {
	N *big.Int
	G *big.Int
}

// GeneratePrivateKey generates a key pair with two primes of primeLength bits.
// Equal length primes guarantee gcd(pq, (p-1)(q-1)) = 1, so g = n+1 can be used.
func GeneratePrivateKey(primeLength int) (*PrivateKey, error) {
	var p *big.Int
	errChanFindP := make(chan error, 1)
	go func() {
		var err error
		p, err = cryptoRand.Prime(cryptoRand.Reader, primeLength)
		errChanFindP <- err
	}()

	q, errFindQ := cryptoRand.Prime(cryptoRand.Reader, primeLength)
	errFindP := <-errChanFindP
	if errFindQ != nil {
		return nil, errFindQ
	}
	if errFindP != nil {
		return nil, errFindP
	}
	if p.Cmp(q) == 0 {
		return nil, ErrPrimePEqualsQ
	}

	n := new(big.Int).Mul(p, q)
	g := new(big.Int).Add(n, one)

	// λ = (p-1)(q-1), μ = λ^-1 mod n
	lambda := new(big.Int).Mul(new(big.Int).Sub(p, one), new(big.Int).Sub(q, one))
	mu := new(big.Int).ModInverse(lambda, n)

	return &PrivateKey{
		PublicKey: PublicKey{N: n, G: g},
		Lambda:    lambda,
		Mu:        mu,
	}, nil
}

// Encrypt computes c = g^m * r^n mod n^2 for m in [0, n)
func (pk *PublicKey) Encrypt(m *big.Int) (*big.Int, error) {
	if m.Sign() < 0 || m.Cmp(pk.N) >= 0 {
		return nil, ErrMsgOutOfRange
	}
	return pk.encrypt(m)
}

// EncryptSupNegNum encrypts m < n, a negative m is encrypted as m mod n
func (pk *PublicKey) EncryptSupNegNum(m *big.Int) (*big.Int, error) {
	if m.Cmp(pk.N) >= 0 {
		return nil, ErrMsgOutOfRange
	}
	return pk.encrypt(new(big.Int).Mod(m, pk.N))
}

func (pk *PublicKey) encrypt(m *big.Int) (*big.Int, error) {
	r, err := pk.randomR()
	if err != nil {
		return nil, err
	}
	nSquare := pk.nSquare()
	gExpM := new(big.Int).Exp(pk.G, m, nSquare)
	rExpN := new(big.Int).Exp(r, pk.N, nSquare)
	return new(big.Int).Mod(new(big.Int).Mul(gExpM, rExpN), nSquare), nil
}

// randomR returns r in (0, n) with gcd(r, n) = 1
func (pk *PublicKey) randomR() (*big.Int, error) {
	for {
		r, err := cryptoRand.Int(cryptoRand.Reader, pk.N)
		if err != nil {
			return nil, err
		}
		if r.Sign() != 0 && new(big.Int).GCD(nil, nil, r, pk.N).Cmp(one) == 0 {
			return r, nil
		}
	}
}

func (pk *PublicKey) nSquare() *big.Int {
	return new(big.Int).Mul(pk.N, pk.N)
}

// CyphersAdd returns E(m1+m2+...) from E(m1), E(m2), ...
func (pk *PublicKey) CyphersAdd(cyphers ...*big.Int) *big.Int {
	nSquare := pk.nSquare()
	result := big.NewInt(1)
	for _, cypher := range cyphers {
		result = new(big.Int).Mod(new(big.Int).Mul(result, cypher), nSquare)
	}
	return result
}

// Decrypt computes L(c^λ mod n^2) * μ mod n, L(x) = (x-1)/n
func (sk *PrivateKey) Decrypt(cypher *big.Int) *big.Int {
	cExpLambda := new(big.Int).Exp(cypher, sk.Lambda, sk.nSquare())
	lx := new(big.Int).Div(new(big.Int).Sub(cExpLambda, one), sk.N)
	return new(big.Int).Mod(new(big.Int).Mul(lx, sk.Mu), sk.N)
}

// DecryptSupNegNum decrypts into (-n/2, n/2], D'(c) = ((D(c) + n/2) mod n) - n/2
func (sk *PrivateKey) DecryptSupNegNum(cypher *big.Int) *big.Int {
	halfN := new(big.Int).Rsh(sk.N, 1)
	result := sk.Decrypt(cypher)
	result.Add(result, halfN)
	result.Mod(result, sk.N)
	return result.Sub(result, halfN)
}

// KeyShare is one additive share of the decryption exponent d = λ·μ.
// Every share is needed to decrypt, any smaller set learns nothing about d.
type KeyShare struct {
	PublicKey
	Index    int
	Exponent *big.Int
}

// SplitKey splits the decryption exponent of sk into total additive shares modulo n·λ.
// c^(n·λ) = 1 mod n^2 for every ciphertext, so the exponents only add up modulo n·λ.
func SplitKey(sk *PrivateKey, total int) ([]*KeyShare, error) {
	if total < 2 {
		return nil, ErrInvalidShareNumber
	}
	order := new(big.Int).Mul(sk.N, sk.Lambda)
	d := new(big.Int).Mul(sk.Lambda, sk.Mu)
	d.Mod(d, order)

	shares := make([]*KeyShare, total)
	rest := new(big.Int).Set(d)
	for i := 0; i < total-1; i++ {
		e, err := cryptoRand.Int(cryptoRand.Reader, order)
		if err != nil {
			return nil, err
		}
		rest.Sub(rest, e)
		shares[i] = &KeyShare{PublicKey: sk.PublicKey, Index: i + 1, Exponent: e}
	}
	rest.Mod(rest, order)
	shares[total-1] = &KeyShare{PublicKey: sk.PublicKey, Index: total, Exponent: rest}
	return shares, nil
}

// PartialDecrypt returns c^d_i mod n^2
func (ks *KeyShare) PartialDecrypt(cypher *big.Int) *big.Int {
	return new(big.Int).Exp(cypher, ks.Exponent, ks.nSquare())
}

// CombinePartials multiplies the partial decryptions of every share and returns the
// plaintext in (-n/2, n/2]. The product is c^(λ·μ) = 1 + m·n mod n^2.
func (pk *PublicKey) CombinePartials(partials ...*big.Int) (*big.Int, error) {
	if len(partials) == 0 {
		return nil, ErrNoPartials
	}
	nSquare := pk.nSquare()
	x := big.NewInt(1)
	for _, p := range partials {
		x.Mul(x, p)
		x.Mod(x, nSquare)
	}
	m := new(big.Int).Div(new(big.Int).Sub(x, one), pk.N)
	m.Mod(m, pk.N)

	halfN := new(big.Int).Rsh(pk.N, 1)
	if m.Cmp(halfN) > 0 {
		m.Sub(m, pk.N)
	}
	return m, nil
}
