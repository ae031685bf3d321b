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

package errcodes

// error code list
const (
	// 00xx common error
	ErrCodeInternal = "FL0001" // internal error
	ErrCodeParam    = "FL0002" // parameters error
	ErrCodeConfig   = "FL0003" // configuration error
	ErrCodeNotFound = "FL0004" // target not found
	ErrCodeEncoding = "FL0005" // encoding error

	// 01xx federated learning errors
	ErrCodeDataExhaustion         = "FL0101" // no batch available, cyclic advance is undefined
	ErrCodeProtocolOrderViolation = "FL0102" // protocol step called without its predecessor message, or twice
	ErrCodeDimensionMismatch      = "FL0103" // feature or label shapes are inconsistent between parties
	ErrCodeAggregationFailure     = "FL0104" // a participant failed to produce its share for a parameter
	ErrCodeRoundNotStarted        = "FL0105" // operation requires an active round
	ErrCodeDataset                = "FL0106" // dataset can not be read or parsed
)
