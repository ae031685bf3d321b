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

package errorx

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error is a coded error, it is serialized as {"code":..,"message":..}
// so that it survives being passed around as a plain string
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	s, _ := json.Marshal(e)
	return string(s)
}

// New creates an error from code and message
func New(code, format string, args ...interface{}) error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewCode creates an error by wrapping an existing error from outer package,
//  the original code is dropped
func NewCode(err error, code, format string, args ...interface{}) error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...) + ": " + err.Error(),
	}
}

// Wrap wraps error with a message, the code of err is kept
func Wrap(err error, format string, args ...interface{}) error {
	m := fmt.Sprintf(format, args...)
	return fmt.Errorf(m+": %w", err)
}

// Is compares the code of err with code
func Is(err error, code string) bool {
	if err == nil {
		return false
	}
	c, _ := Parse(err)
	return c == code
}

// Parse retrieves code and message
// 1. try to retrieve errorx.Error from err chain
// 2. try to unmarshal err.Error() into errorx.Error
// 3. or else an internal error with original err.Error()
func Parse(err error) (code, message string) {
	var newErr *Error
	if errors.As(err, &newErr) {
		return newErr.Code, newErr.Message
	}

	var e Error
	if nerr := json.Unmarshal([]byte(err.Error()), &e); nerr == nil && len(e.Code) > 0 {
		return e.Code, e.Message
	}

	return ErrCodeInternal, err.Error()
}
