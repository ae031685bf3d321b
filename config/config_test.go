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

package config

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
)

func TestInitConfig(t *testing.T) {
	path := "./../conf/config.toml"

	err := InitConfig(path)
	require.NoError(t, err)

	fedConf, err := json.MarshalIndent(GetFedConf(), "", "    ")
	require.NoError(t, err)
	t.Logf("fedConf: %s", string(fedConf))
	t.Logf("Log: %+v", GetLogConf())

	conf := GetFedConf()
	require.Equal(t, 4, conf.BatchSize)
	require.Equal(t, 0.1, conf.LearningRate)
	require.True(t, conf.FedHorizontal.EncryptWeight)
	require.False(t, conf.FedHorizontal.DumpSamples)
	require.Equal(t, []string{"alice", "bob", "carol"}, conf.SecAgg.Participants)
	require.Equal(t, "crypto_provider", conf.SecAgg.CryptoProvider)
	require.Equal(t, 3, conf.SecAgg.Precision)
	require.Equal(t, 2, conf.FedVertical.FeaturesA)
	require.Equal(t, "debug", GetLogConf().Level)
}

func TestInitConfigDefaults(t *testing.T) {
	content := `
[fed]
    learning_rate = 0.01
    batch_size = 8
`
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))

	require.NoError(t, InitConfig(path))
	conf := GetFedConf()
	require.Equal(t, DefaultDevice, conf.Device)
	require.Equal(t, 1, conf.FedEpoch)
	require.Equal(t, DefaultPrecision, conf.SecAgg.Precision)
	require.Equal(t, SecAggBackendShamir, conf.SecAgg.Backend)
	require.NotNil(t, conf.FedHorizontal)
	require.NotNil(t, conf.FedVertical)
}

func TestInitConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"missing fed": `
[log]
    level = "info"
`,
		"zero batch": `
[fed]
    learning_rate = 0.01
`,
		"encrypt without participants": `
[fed]
    learning_rate = 0.01
    batch_size = 4
    [fed.fed_horizontal]
        encrypt_weight = true
`,
		"encrypt a single client": `
[fed]
    learning_rate = 0.01
    batch_size = 4
    [fed.fed_horizontal]
        num_clients = 1
        encrypt_weight = true
    [fed.secagg]
        participants = ["alice", "bob"]
        crypto_provider = "crypto_provider"
`,
		"unknown backend": `
[fed]
    learning_rate = 0.01
    batch_size = 4
    [fed.secagg]
        backend = "garbled"
`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))

			err := InitConfig(path)
			require.Error(t, err)
			require.True(t, errorx.Is(err, errorx.ErrCodeConfig))
		})
	}
}
