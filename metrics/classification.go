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

package metrics

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"text/tabwriter"

	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
)

// probabilities are clipped into [eps, 1-eps] before taking logs
const eps = 1e-12

// ConfusionMatrix is a nested map of actual and predicted class counts
type ConfusionMatrix map[int]map[int]int

// NewConfusionMatrix builds a ConfusionMatrix from real and predicted class indices,
// the same index of realClasses and predClasses must refer to the same sample
func NewConfusionMatrix(realClasses, predClasses []int) (ConfusionMatrix, error) {
	if len(realClasses) != len(predClasses) {
		return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "realClasses and predClasses not match: %d != %d", len(realClasses), len(predClasses))
	}
	if len(realClasses) == 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "realClasses and predClasses are empty")
	}

	cm := make(ConfusionMatrix)
	for i, rc := range realClasses {
		if _, ok := cm[rc]; !ok {
			cm[rc] = make(map[int]int)
		}
		cm[rc][predClasses[i]]++
	}
	return cm, nil
}

func (cm ConfusionMatrix) check(class int) error {
	if _, ok := cm[class]; !ok {
		return errorx.New(errcodes.ErrCodeNotFound, "unknown class value[%d]", class)
	}
	return nil
}

// GetTruePositives returns the number of samples of class predicted as class
func (cm ConfusionMatrix) GetTruePositives(class int) (float64, error) {
	if err := cm.check(class); err != nil {
		return 0, err
	}
	return float64(cm[class][class]), nil
}

// GetFalsePositives returns the number of samples of other classes predicted as class
func (cm ConfusionMatrix) GetFalsePositives(class int) (float64, error) {
	if err := cm.check(class); err != nil {
		return 0, err
	}
	ret := 0.0
	for k := range cm {
		if k != class {
			ret += float64(cm[k][class])
		}
	}
	return ret, nil
}

// GetFalseNegatives returns the number of samples of class predicted as something else
func (cm ConfusionMatrix) GetFalseNegatives(class int) (float64, error) {
	if err := cm.check(class); err != nil {
		return 0, err
	}
	ret := 0.0
	for k, n := range cm[class] {
		if k != class {
			ret += float64(n)
		}
	}
	return ret, nil
}

func (cm ConfusionMatrix) GetPrecision(class int) (float64, error) {
	tp, err := cm.GetTruePositives(class)
	if err != nil {
		return 0, err
	}
	fp, _ := cm.GetFalsePositives(class)
	if tp+fp == 0 {
		return 0, nil
	}
	return tp / (tp + fp), nil
}

func (cm ConfusionMatrix) GetRecall(class int) (float64, error) {
	tp, err := cm.GetTruePositives(class)
	if err != nil {
		return 0, err
	}
	fn, _ := cm.GetFalseNegatives(class)
	if tp+fn == 0 {
		return 0, nil
	}
	return tp / (tp + fn), nil
}

// GetF1Score computes the harmonic mean of Precision and Recall
func (cm ConfusionMatrix) GetF1Score(class int) (float64, error) {
	precision, err := cm.GetPrecision(class)
	if err != nil {
		return 0, err
	}
	recall, _ := cm.GetRecall(class)
	if precision == 0 && recall == 0 {
		return 0, nil
	}
	return 2 * precision * recall / (precision + recall), nil
}

// GetAccuracy computes (number of correctly classified instances) / total instances
func (cm ConfusionMatrix) GetAccuracy() float64 {
	correct, total := 0, 0
	for i := range cm {
		for j, n := range cm[i] {
			if i == j {
				correct += n
			}
			total += n
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// Summary renders per-class precision, recall and F1 as a table
func (cm ConfusionMatrix) Summary() string {
	classes := make([]int, 0, len(cm))
	for k := range cm {
		classes = append(classes, k)
	}
	sort.Ints(classes)

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 8, 1, ' ', 0)
	fmt.Fprintln(w, "Class\tPrecision\tRecall\tF1 Score")
	for _, c := range classes {
		p, _ := cm.GetPrecision(c)
		r, _ := cm.GetRecall(c)
		f, _ := cm.GetF1Score(c)
		fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%.4f\n", c, p, r, f)
	}
	w.Flush()
	fmt.Fprintf(&buf, "Overall accuracy: %.4f\n", cm.GetAccuracy())
	return buf.String()
}

// Sigmoid is the logistic function
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// BinaryCrossEntropy returns the mean of -[t*log(p) + (1-t)*log(1-p)], targets are 0 or 1
func BinaryCrossEntropy(probs, targets []float64) (float64, error) {
	if len(probs) != len(targets) || len(probs) == 0 {
		return 0, errorx.New(errcodes.ErrCodeDimensionMismatch, "probs and targets not match: %d != %d", len(probs), len(targets))
	}
	var sum float64
	for i, p := range probs {
		p = math.Min(math.Max(p, eps), 1-eps)
		sum -= targets[i]*math.Log(p) + (1-targets[i])*math.Log(1-p)
	}
	return sum / float64(len(probs)), nil
}

// KLDivergence returns sum(p * log(p/q)) over the entries where p is not zero
func KLDivergence(p, q []float64) (float64, error) {
	if len(p) != len(q) {
		return 0, errorx.New(errcodes.ErrCodeDimensionMismatch, "p and q not match: %d != %d", len(p), len(q))
	}
	var d float64
	for i := range p {
		if p[i] != 0 {
			d += p[i] * math.Log(p[i]/math.Max(q[i], eps))
		}
	}
	return d, nil
}
