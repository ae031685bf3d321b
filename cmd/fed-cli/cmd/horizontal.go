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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PaddlePaddle/PaddleDTX/fed/config"
	"github.com/PaddlePaddle/PaddleDTX/fed/dataset"
	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/fl/horizontal"
	"github.com/PaddlePaddle/PaddleDTX/fed/fl/orchestrator"
	"github.com/PaddlePaddle/PaddleDTX/fed/fl/secagg"
)

// horizontalCmd trains softmax regression on samples dealt to several clients
var horizontalCmd = &cobra.Command{
	Use:   "horizontal",
	Short: "run horizontal softmax regression with optional secure aggregation",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf := config.GetFedConf()
		rows, err := readRows(conf)
		if err != nil {
			return err
		}
		ds, err := dataset.ImportForClassification(rows, conf.FedVertical.Label)
		if err != nil {
			return err
		}
		if ds.X.Cols != conf.NumFeatures || len(ds.Classes) > conf.NumClasses {
			return errorx.New(errcodes.ErrCodeConfig, "dataset has %d features and %d classes, configured %d and %d",
				ds.X.Cols, len(ds.Classes), conf.NumFeatures, conf.NumClasses)
		}
		numClients := conf.FedHorizontal.NumClients
		if numClients <= 0 {
			numClients = 1
		}
		parts, err := ds.SplitRows(numClients)
		if err != nil {
			return err
		}

		var (
			service secagg.Service
			adapter *secagg.Adapter
		)
		if conf.FedHorizontal.EncryptWeight {
			if service, err = secagg.NewService(conf.SecAgg); err != nil {
				return err
			}
			defer service.Close()
			adapter = secagg.NewAdapter(service, conf.SecAgg)
		}

		clients := make([]*horizontal.Client, len(parts))
		for i, p := range parts {
			if clients[i], err = horizontal.NewClient(fmt.Sprint(i), conf, p.Batches(conf.BatchSize), adapter); err != nil {
				return err
			}
		}
		trainer := orchestrator.NewHorizontalTrainer(clients, orchestrator.NewAggregator(service),
			horizontal.InitParams(conf.NumFeatures, conf.NumClasses))

		ctx, cancel := signalContext()
		defer cancel()
		var last []*horizontal.LocalUpdate
		for r := 0; r < conf.Rounds; r++ {
			updates, err := trainer.RunRound(ctx)
			if err != nil {
				return err
			}
			for _, u := range updates {
				fmt.Printf("round %d client %s: train_loss=%.3f train_acc=%.1f%% drift=%.4f\n", r+1, u.UID, u.Loss, u.Acc, u.Drift)
			}
			last = updates
		}
		for _, u := range last {
			fmt.Printf("client %s, last epoch:\n%s", u.UID, u.Confusion.Summary())
		}
		global := trainer.Global()
		for _, name := range global.Names() {
			fmt.Printf("%s: %v\n", name, global[name])
		}
		return nil
	},
}
