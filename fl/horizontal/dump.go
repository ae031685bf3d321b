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

package horizontal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang/snappy"
	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/fed/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
	"github.com/PaddlePaddle/PaddleDTX/fed/tensor"
)

const (
	// DumpFilePattern names the per-class sample dump, %d is the class index
	DumpFilePattern = "victim_%d.csv.sz"
	// GSampleGlob matches the precomputed sample file under the output path
	GSampleGlob = "G_sample.*"
)

type classWriter struct {
	file   *os.File
	snappy *snappy.Writer
	csv    *csv.Writer
	rows   int
}

// SampleDumper appends raw samples to one snappy framed csv file per class.
// Rows are streamed to disk as they arrive.
type SampleDumper struct {
	dir     string
	writers map[int]*classWriter
}

func NewSampleDumper(dir string) (*SampleDumper, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to create dump directory")
	}
	return &SampleDumper{
		dir:     dir,
		writers: make(map[int]*classWriter),
	}, nil
}

// Append writes every row of x to the file of its class in y
func (d *SampleDumper) Append(x, y *tensor.Matrix) error {
	for i := 0; i < x.Rows; i++ {
		w, err := d.writer(int(y.Data[i]))
		if err != nil {
			return err
		}
		row := make([]string, x.Cols)
		for j, v := range x.Row(i) {
			row[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.csv.Write(row); err != nil {
			return errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to write sample")
		}
		w.rows++
	}
	return nil
}

func (d *SampleDumper) writer(class int) (*classWriter, error) {
	if w, ok := d.writers[class]; ok {
		return w, nil
	}
	f, err := os.Create(filepath.Join(d.dir, fmt.Sprintf(DumpFilePattern, class)))
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to create dump file")
	}
	sw := snappy.NewBufferedWriter(f)
	w := &classWriter{
		file:   f,
		snappy: sw,
		csv:    csv.NewWriter(sw),
	}
	d.writers[class] = w
	return w, nil
}

// Close flushes and closes every class file
func (d *SampleDumper) Close() error {
	var firstErr error
	for class, w := range d.writers {
		w.csv.Flush()
		err := w.csv.Error()
		if err == nil {
			err = w.snappy.Close()
		}
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
		if err != nil && firstErr == nil {
			firstErr = errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to close dump of class %d", class)
		}
		logger.WithFields(logrus.Fields{
			"class": class,
			"rows":  w.rows,
		}).Debug("sample dump closed")
	}
	d.writers = make(map[int]*classWriter)
	return firstErr
}

// LocateGSample logs the precomputed sample file under dir if there is one, it is never loaded
func LocateGSample(dir string) (string, bool) {
	if dir == "" {
		return "", false
	}
	matches, err := filepath.Glob(filepath.Join(dir, GSampleGlob))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	info, err := os.Stat(matches[0])
	if err != nil {
		return "", false
	}
	logger.WithFields(logrus.Fields{
		"path": matches[0],
		"size": info.Size(),
	}).Info("found precomputed sample file")
	return matches[0], true
}
