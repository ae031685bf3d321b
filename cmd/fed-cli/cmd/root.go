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

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/PaddlePaddle/PaddleDTX/fed/config"
	"github.com/PaddlePaddle/PaddleDTX/fed/dataset"
	"github.com/PaddlePaddle/PaddleDTX/fed/util/logging"
)

const logFileName = "fed.log"

var (
	configPath string
	dataPath   string
	rounds     int
)

// rootCmd represents the base command that is called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fed-cli",
	Short: "simulate horizontal and vertical federated learning on one machine",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(configPath); err != nil {
			return err
		}
		l, err := logging.InitLog(config.GetLogConf(), logFileName, true)
		if err != nil {
			return err
		}
		l.Apply()

		conf := config.GetFedConf()
		if cmd.Flags().Changed("data") {
			conf.DataPath = dataPath
		}
		if cmd.Flags().Changed("rounds") {
			conf.Rounds = rounds
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func commonFlags() *flag.FlagSet {
	fs := flag.NewFlagSet("common", flag.ExitOnError)
	fs.StringVarP(&configPath, "conf", "c", "conf/config.toml", "path of the configuration file")
	fs.StringVarP(&dataPath, "data", "d", "", "csv file with a header row, overrides fed.data_path")
	fs.IntVarP(&rounds, "rounds", "r", 0, "number of global rounds, overrides fed.rounds")
	return fs
}

// signalContext is cancelled on interrupt, a running round is aborted
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-quit:
			logrus.Info("stopping ...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(quit)
	}()
	return ctx, cancel
}

func readRows(conf *config.FedConf) ([][]string, error) {
	return dataset.ReadRowsFromFile(conf.DataPath)
}

func init() {
	rootCmd.PersistentFlags().AddFlagSet(commonFlags())
	rootCmd.AddCommand(verticalCmd)
	rootCmd.AddCommand(horizontalCmd)
}
