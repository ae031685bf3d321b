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
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/fed/config"
	"github.com/PaddlePaddle/PaddleDTX/fed/errorx"
)

// Logging maintains the state associated with the simulator logging system
type Logging struct {
	// Format is the log record format specifier for the Logging instance
	Format *logrus.TextFormatter

	// logrus log level, default info
	Level logrus.Level

	// Writer is the sink for encoded and formatted log records.
	Writer io.Writer
}

const (
	TimeFormat   = "2006-01-02 15:04:05"
	DefaultLevel = logrus.InfoLevel
)

// InitLog initiates Logging instance.
// If conf.Path is empty, records go to stderr instead of rotated files.
func InitLog(conf *config.Log, fileName string, isSetFormat bool) (*Logging, error) {
	if conf == nil {
		return nil, errorx.New(errorx.ErrCodeConfig, "missing config: log")
	}
	logging := &Logging{
		Level: parseLevel(conf.Level),
	}

	if len(conf.Path) == 0 {
		logging.Writer = os.Stderr
	} else {
		writer, err := logging.writer(conf.Path, fileName)
		if err != nil {
			return nil, errorx.Wrap(err, "get log writer error")
		}
		logging.Writer = writer
	}

	if isSetFormat {
		logging.Format = &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: TimeFormat,
		}
	}
	return logging, nil
}

// Apply sets the standard logrus logger up with l
func (l *Logging) Apply() {
	logrus.SetOutput(l.Writer)
	logrus.SetLevel(l.Level)
	if l.Format != nil {
		logrus.SetFormatter(l.Format)
	}
}

// writer creates the log directory if needed and returns a rotating writer.
// Log files are cut every hour and kept for 30 days, fileName always links
// to the latest one.
func (l *Logging) writer(logPath, fileName string) (io.Writer, error) {
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		if err := os.MkdirAll(logPath, 0777); err != nil {
			return nil, errorx.New(errorx.ErrCodeConfig, "mkdir logs error, err :%v", err)
		}
	}
	logFileName := filepath.Join(logPath, fileName)

	logStd, err := rotatelogs.New(
		logFileName+".%Y%m%d%H",
		rotatelogs.WithLinkName(logFileName),
		rotatelogs.WithMaxAge(720*time.Hour),
		rotatelogs.WithRotationTime(time.Hour),
	)
	if err != nil {
		return nil, errorx.NewCode(err, errorx.ErrCodeInternal, "new rotatelogs error")
	}
	return logStd, nil
}

func parseLevel(level string) logrus.Level {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return DefaultLevel
	}
	return l
}
