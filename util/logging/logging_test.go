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

package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/PaddlePaddle/PaddleDTX/fed/config"
)

func TestInitLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := InitLog(&config.Log{Level: "debug", Path: dir}, "fed.log", true)
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, l.Level)
	require.NotNil(t, l.Format)

	_, err = os.Stat(dir)
	require.NoError(t, err)

	_, err = l.Writer.Write([]byte("hello\n"))
	require.NoError(t, err)
}

func TestInitLogStderr(t *testing.T) {
	l, err := InitLog(&config.Log{Level: "no-such-level"}, "fed.log", false)
	require.NoError(t, err)
	require.Equal(t, DefaultLevel, l.Level)
	require.Equal(t, os.Stderr, l.Writer)
	require.Nil(t, l.Format)

	_, err = InitLog(nil, "fed.log", false)
	require.Error(t, err)
}
