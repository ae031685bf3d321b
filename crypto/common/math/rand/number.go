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

package rand

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"io"
	"math/big"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/pbkdf2"
)

const (
	KeyStrengthEasy = iota
	KeyStrengthMiddle
	KeyStrengthHard
)

var (
	ErrInvalidEntropyLength = errors.New("entropy length must be within [128, 256] and a multiple of 32")
	ErrStrengthNotSupported = errors.New("key strength not supported")
	ErrInvalidBound         = errors.New("random bound must be positive")
)

// GenerateEntropy reads bitSize bits from the system entropy source
func GenerateEntropy(bitSize int) ([]byte, error) {
	if (bitSize%32) != 0 || bitSize < 128 || bitSize > 256 {
		return nil, ErrInvalidEntropyLength
	}

	entropy := make([]byte, bitSize/8)
	_, err := rand.Read(entropy)
	return entropy, err
}

// GenerateSeedWithStrengthAndKeyLen stretches fresh entropy of the given strength into keyLength bytes
func GenerateSeedWithStrengthAndKeyLen(strength int, keyLength int) ([]byte, error) {
	var entropyBitLength int
	switch strength {
	case KeyStrengthEasy:
		entropyBitLength = 128
	case KeyStrengthMiddle:
		entropyBitLength = 192
	case KeyStrengthHard:
		entropyBitLength = 256
	default:
		return nil, ErrStrengthNotSupported
	}

	entropy, err := GenerateEntropy(entropyBitLength)
	if err != nil {
		return nil, err
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return pbkdf2.Key(entropy, salt, 2048, keyLength, sha512.New), nil
}

// Int returns a uniform random integer in [0, bound) read from r, crypto/rand if r is nil
func Int(r io.Reader, bound *big.Int) (*big.Int, error) {
	if bound == nil || bound.Sign() <= 0 {
		return nil, ErrInvalidBound
	}
	if r == nil {
		r = rand.Reader
	}
	return rand.Int(r, bound)
}

// Stream is a ChaCha20 keystream keyed by a PBKDF2 seed
type Stream struct {
	cipher *chacha20.Cipher
}

// NewStream seeds a keystream from fresh entropy of the given strength.
// One stream serves many draws, entropy is only read once.
func NewStream(strength int) (*Stream, error) {
	seed, err := GenerateSeedWithStrengthAndKeyLen(strength, chacha20.KeySize+chacha20.NonceSize)
	if err != nil {
		return nil, err
	}
	c, err := chacha20.NewUnauthenticatedCipher(seed[:chacha20.KeySize], seed[chacha20.KeySize:])
	if err != nil {
		return nil, err
	}
	return &Stream{cipher: c}, nil
}

func (s *Stream) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	s.cipher.XORKeyStream(p, p)
	return len(p), nil
}
