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
	"github.com/PaddlePaddle/PaddleDTX/fed/fl/orchestrator"
	"github.com/PaddlePaddle/PaddleDTX/fed/fl/vertical"
)

// verticalCmd trains logistic regression split by columns between party A and party B
var verticalCmd = &cobra.Command{
	Use:   "vertical",
	Short: "run two-party vertical logistic regression",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf := config.GetFedConf()
		rows, err := readRows(conf)
		if err != nil {
			return err
		}
		ds, err := dataset.ImportForLogReg(rows, conf.FedVertical.Label, conf.FedVertical.LabelName)
		if err != nil {
			return err
		}
		dsA, dsB, err := ds.SplitColumns(conf.FedVertical.FeaturesA)
		if err != nil {
			return err
		}

		partyA, err := vertical.NewParty(vertical.RoleA, dsA.X.Cols, 1)
		if err != nil {
			return err
		}
		partyB, err := vertical.NewParty(vertical.RoleB, dsB.X.Cols, 1)
		if err != nil {
			return err
		}
		clientA, err := vertical.NewClient(partyA, dsA.Batches(conf.BatchSize))
		if err != nil {
			return err
		}
		clientB, err := vertical.NewClient(partyB, dsB.Batches(conf.BatchSize))
		if err != nil {
			return err
		}

		results := new(vertical.EvalResults)
		trainer, err := orchestrator.NewVerticalTrainer(clientA, clientB, conf, results)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()
		losses, err := trainer.Run(ctx, conf.Rounds)
		if err != nil {
			return err
		}

		for i := 0; i < results.Len(); i++ {
			fmt.Printf("step %d: train_loss=%.4f train_acc=%.1f%%\n", results.Steps[i], results.Loss[i], results.Acc[i])
		}
		if len(losses) > 0 {
			fmt.Printf("finished %d rounds, last approximate loss %.4f\n", len(losses), losses[len(losses)-1])
		}
		wa, wb := trainer.Params()
		fmt.Printf("party A weights: %v\nparty B weights: %v\n", wa[vertical.ParamWeight], wb[vertical.ParamWeight])
		return nil
	},
}
