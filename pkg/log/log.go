/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package log

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
)

type LogLevel int32

const (
	LogPrefix     = "[go-oscbridge] "
	ErrorPrefix   = "[error] "
	WarningPrefix = "[warn] "
	InfoPrefix    = "[info] "
	DebugPrefix   = "[debug] "
	HelpLevels    = "Must be one of: error, warning, info, debug."
)

const (
	ErrorLevel LogLevel = iota
	WarningLevel
	InfoLevel
	DebugLevel
)

var levelMapping = map[string]LogLevel{
	"error":   ErrorLevel,
	"warning": WarningLevel,
	"info":    InfoLevel,
	"debug":   DebugLevel,
}

// Logger is a leveled wrapper around the standard logger. Level changes
// are visible to goroutines that are logging concurrently.
type Logger struct {
	level atomic.Int32
	*log.Logger
}

var logger = newLogger(os.Stderr)

func newLogger(out io.Writer) *Logger {
	l := &Logger{Logger: log.New(out, LogPrefix, log.LstdFlags)}
	l.level.Store(int32(InfoLevel))
	return l
}

// ParseLevel converts a level name to LogLevel.
func ParseLevel(strLevel string) (LogLevel, error) {
	level, ok := levelMapping[strLevel]
	if !ok {
		return ErrorLevel, errors.New("Wrong log level. " + HelpLevels)
	}
	return level, nil
}

func SetLevel(strLevel string) error {
	level, err := ParseLevel(strLevel)
	if err != nil {
		return err
	}
	logger.level.Store(int32(level))
	return nil
}

func Level() LogLevel {
	return LogLevel(logger.level.Load())
}

func Init(out io.Writer, strLevel string) {
	logger.SetOutput(out)
	if err := SetLevel(strLevel); err != nil {
		panic(err)
	}
}

func enabled(level LogLevel) bool {
	return Level() >= level
}

func Error(format string, v ...interface{}) {
	if enabled(ErrorLevel) {
		logger.Println(fmt.Sprintf(ErrorPrefix+format, v...))
	}
}

func Warning(format string, v ...interface{}) {
	if enabled(WarningLevel) {
		logger.Println(fmt.Sprintf(WarningPrefix+format, v...))
	}
}

func Info(format string, v ...interface{}) {
	if enabled(InfoLevel) {
		logger.Println(fmt.Sprintf(InfoPrefix+format, v...))
	}
}

func Debug(format string, v ...interface{}) {
	if enabled(DebugLevel) {
		logger.Println(fmt.Sprintf(DebugPrefix+format, v...))
	}
}

// Writer returns the destination of the package logger. The API access log
// is written there too.
func Writer() io.Writer {
	return logger.Writer()
}
