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
	"github.com/spf13/viper"

	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
)

const (
	DefaultPrecision = 3
	DefaultDevice    = "cpu"

	SecAggBackendShamir   = "shamir"
	SecAggBackendPaillier = "paillier"
)

var (
	logConf *Log
	fedConf *FedConf
)

// FedConf is the configuration of one simulation
type FedConf struct {
	NumFeatures   int                `mapstructure:"num_features"`
	NumClasses    int                `mapstructure:"num_classes"`
	Device        string             `mapstructure:"device"`
	LearningRate  float64            `mapstructure:"learning_rate"`
	FedEpoch      int                `mapstructure:"fed_epoch"`
	BatchSize     int                `mapstructure:"batch_size"`
	Rounds        int                `mapstructure:"rounds"`
	OutputPath    string             `mapstructure:"output_path"`
	DataPath      string             `mapstructure:"data_path"`
	FedHorizontal *FedHorizontalConf `mapstructure:"fed_horizontal"`
	FedVertical   *FedVerticalConf   `mapstructure:"fed_vertical"`
	SecAgg        *SecAggConf        `mapstructure:"secagg"`
}

// FedHorizontalConf configures horizontal clients
type FedHorizontalConf struct {
	NumClients    int  `mapstructure:"num_clients"`
	EncryptWeight bool `mapstructure:"encrypt_weight"`
	// DumpSamples turns on per-class raw sample dumps, research use only
	DumpSamples bool `mapstructure:"dump_samples"`
}

// FedVerticalConf configures the two vertical parties
type FedVerticalConf struct {
	Label         string `mapstructure:"label"`
	LabelName     string `mapstructure:"label_name"`
	FeaturesA     int    `mapstructure:"features_a"`
	EvalInterval  int    `mapstructure:"eval_interval"`
	HomoKeyLength int    `mapstructure:"homo_key_length"`
}

// SecAggConf configures the secret-sharing service
type SecAggConf struct {
	Backend        string   `mapstructure:"backend"`
	Participants   []string `mapstructure:"participants"`
	CryptoProvider string   `mapstructure:"crypto_provider"`
	Precision      int      `mapstructure:"precision"`
	StorePath      string   `mapstructure:"store_path"`
}

type Log struct {
	Level string
	Path  string
}

func InitConfig(configPath string) error {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	logConf = new(Log)
	if sub := v.Sub("log"); sub != nil {
		if err := sub.Unmarshal(logConf); err != nil {
			return err
		}
	}

	sub := v.Sub("fed")
	if sub == nil {
		return errorx.New(errorx.ErrCodeConfig, "missing config: fed")
	}
	conf := new(FedConf)
	if err := sub.Unmarshal(conf); err != nil {
		return err
	}
	conf.fillDefaults()
	if err := conf.Validate(); err != nil {
		return err
	}
	fedConf = conf
	return nil
}

func (c *FedConf) fillDefaults() {
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if c.FedEpoch == 0 {
		c.FedEpoch = 1
	}
	if c.FedHorizontal == nil {
		c.FedHorizontal = new(FedHorizontalConf)
	}
	if c.FedVertical == nil {
		c.FedVertical = new(FedVerticalConf)
	}
	if c.SecAgg == nil {
		c.SecAgg = new(SecAggConf)
	}
	if c.SecAgg.Precision == 0 {
		c.SecAgg.Precision = DefaultPrecision
	}
	if c.SecAgg.Backend == "" {
		c.SecAgg.Backend = SecAggBackendShamir
	}
}

// Validate checks the values that would otherwise fail deep inside a round
func (c *FedConf) Validate() error {
	if c.BatchSize <= 0 {
		return errorx.New(errorx.ErrCodeConfig, "invalid config: fed.batch_size should be positive, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return errorx.New(errorx.ErrCodeConfig, "invalid config: fed.learning_rate should be positive")
	}
	if c.SecAgg.Backend != SecAggBackendShamir && c.SecAgg.Backend != SecAggBackendPaillier {
		return errorx.New(errorx.ErrCodeConfig, "invalid config: fed.secagg.backend[%s]", c.SecAgg.Backend)
	}
	if c.FedHorizontal.EncryptWeight {
		if c.FedHorizontal.NumClients < 2 {
			return errorx.New(errorx.ErrCodeConfig, "invalid config: encrypt_weight needs at least 2 clients, a sum of one update is the update")
		}
		if len(c.SecAgg.Participants) < 2 {
			return errorx.New(errorx.ErrCodeConfig, "invalid config: encrypt_weight needs at least 2 secagg participants")
		}
		if c.SecAgg.CryptoProvider == "" {
			return errorx.New(errorx.ErrCodeConfig, "missing config: fed.secagg.crypto_provider")
		}
	}
	return nil
}

func GetFedConf() *FedConf {
	return fedConf
}

func GetLogConf() *Log {
	return logConf
}
