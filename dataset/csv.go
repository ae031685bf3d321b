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

package dataset

import (
	"bytes"
	"encoding/csv"
	"io/ioutil"
	"sort"
	"strconv"

	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

// Dataset holds samples as rows of X, with labels in Y as an n x 1 column.
// Y is nil for a party holding no labels.
type Dataset struct {
	FeatureNames []string
	X            *tensor.Matrix
	Y            *tensor.Matrix
	// Classes lists class names by index for classification datasets
	Classes []string
}

// NumSamples returns the number of rows
func (d *Dataset) NumSamples() int {
	if d.X == nil {
		return 0
	}
	return d.X.Rows
}

// ReadRowsFromFile reads every row of a csv file, header included
func ReadRowsFromFile(path string) ([][]string, error) {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeDataset, "failed to read file %s", path)
	}
	rows, err := csv.NewReader(bytes.NewReader(content)).ReadAll()
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeDataset, "failed to parse csv file %s", path)
	}
	return rows, nil
}

// ImportForLogReg builds a binary dataset from csv rows, the first row names the columns.
// Samples whose label column equals labelName get y = +1, all others y = -1.
func ImportForLogReg(fileRows [][]string, label, labelName string) (*Dataset, error) {
	return importRows(fileRows, label, func(v string) (float64, error) {
		if v == labelName {
			return 1, nil
		}
		return -1, nil
	}, nil)
}

// ImportForClassification builds a multi-class dataset, labels become class indices
// in lexical order of the class names
func ImportForClassification(fileRows [][]string, label string) (*Dataset, error) {
	labelIdx, err := columnIndex(fileRows, label)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for _, row := range fileRows[1:] {
		if labelIdx < len(row) {
			set[row[labelIdx]] = true
		}
	}
	classes := make([]string, 0, len(set))
	for c := range set {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	return importRows(fileRows, label, func(v string) (float64, error) {
		return float64(index[v]), nil
	}, classes)
}

// ImportFeatures builds an unlabeled dataset from every column
func ImportFeatures(fileRows [][]string) (*Dataset, error) {
	return importRows(fileRows, "", nil, nil)
}

func importRows(fileRows [][]string, label string, parseLabel func(string) (float64, error), classes []string) (*Dataset, error) {
	if len(fileRows) == 0 {
		return nil, errorx.New(errcodes.ErrCodeDataset, "empty file content")
	}
	header := fileRows[0]
	labelIdx := -1
	if parseLabel != nil {
		var err error
		if labelIdx, err = columnIndex(fileRows, label); err != nil {
			return nil, err
		}
	}

	d := &Dataset{Classes: classes}
	for i, name := range header {
		if i != labelIdx {
			d.FeatureNames = append(d.FeatureNames, name)
		}
	}

	samples := len(fileRows) - 1
	d.X = tensor.New(samples, len(d.FeatureNames))
	if labelIdx >= 0 {
		d.Y = tensor.New(samples, 1)
	}
	for s, row := range fileRows[1:] {
		if len(row) != len(header) {
			return nil, errorx.New(errcodes.ErrCodeDimensionMismatch, "row %d has %d columns, header has %d", s+1, len(row), len(header))
		}
		col := 0
		for i, v := range row {
			if i == labelIdx {
				y, err := parseLabel(v)
				if err != nil {
					return nil, err
				}
				d.Y.Set(s, 0, y)
				continue
			}
			value, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, errorx.NewCode(err, errcodes.ErrCodeDataset, "failed to parse value at row %d column %s", s+1, header[i])
			}
			d.X.Set(s, col, value)
			col++
		}
	}
	return d, nil
}

func columnIndex(fileRows [][]string, name string) (int, error) {
	if len(fileRows) == 0 {
		return -1, errorx.New(errcodes.ErrCodeDataset, "empty file content")
	}
	for i, h := range fileRows[0] {
		if h == name {
			return i, nil
		}
	}
	return -1, errorx.New(errcodes.ErrCodeDataset, "label column %s not found", name)
}

// SplitColumns splits d vertically, the first featuresA columns and the labels go to
// the first dataset, the remaining columns to the second which holds no labels
func (d *Dataset) SplitColumns(featuresA int) (*Dataset, *Dataset, error) {
	xa, err := d.X.SliceCols(0, featuresA)
	if err != nil {
		return nil, nil, err
	}
	xb, err := d.X.SliceCols(featuresA, d.X.Cols)
	if err != nil {
		return nil, nil, err
	}
	a := &Dataset{
		FeatureNames: append([]string(nil), d.FeatureNames[:featuresA]...),
		X:            xa,
		Y:            d.Y.Clone(),
		Classes:      d.Classes,
	}
	b := &Dataset{
		FeatureNames: append([]string(nil), d.FeatureNames[featuresA:]...),
		X:            xb,
	}
	return a, b, nil
}

// SplitRows deals samples round-robin into n disjoint datasets
func (d *Dataset) SplitRows(n int) ([]*Dataset, error) {
	if n <= 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "invalid number of parts: %d", n)
	}
	idx := make([][]int, n)
	for i := 0; i < d.NumSamples(); i++ {
		idx[i%n] = append(idx[i%n], i)
	}
	parts := make([]*Dataset, n)
	for p := range parts {
		parts[p] = &Dataset{
			FeatureNames: d.FeatureNames,
			X:            d.X.PickRows(idx[p]),
			Classes:      d.Classes,
		}
		if d.Y != nil {
			parts[p].Y = d.Y.PickRows(idx[p])
		}
	}
	return parts, nil
}
