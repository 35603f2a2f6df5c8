// Package logflags configures the per-layer loggers used by sdb.
package logflags

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// layer is a part of the debugger that can be switched to debug output
// with --log-output.
type layer int

const (
	debuggerLayer layer = iota
	ptraceLayer
	bininfoLayer
	terminalLayer
	numLayers
)

var layerNames = [numLayers]string{"debugger", "ptrace", "bininfo", "terminal"}

func (l layer) String() string {
	return layerNames[l]
}

func layerByName(name string) (layer, bool) {
	for l, n := range layerNames {
		if n == name {
			return layer(l), true
		}
	}
	return 0, false
}

// enabled records which layers log at debug level.
var enabled [numLayers]bool

var logOut io.WriteCloser

var textFormatterInstance = &textFormatter{}

func makeLogger(level logrus.Level, fields Fields) Logger {
	if newLogger != nil {
		return newLogger(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = level
	return entryLogger{logger}
}

// loggerFor returns a logger tagged with l that only lets errors through
// unless l was enabled by Setup.
func loggerFor(l layer) Logger {
	level := logrus.ErrorLevel
	if enabled[l] {
		level = logrus.DebugLevel
	}
	return makeLogger(level, Fields{"layer": l.String()})
}

// DebuggerLogger returns a logger for the session controller.
func DebuggerLogger() Logger { return loggerFor(debuggerLayer) }

// PtraceLogger returns a logger for the native ptrace backend.
func PtraceLogger() Logger { return loggerFor(ptraceLayer) }

// BinInfoLogger returns a logger for the ELF loader.
func BinInfoLogger() Logger { return loggerFor(bininfoLayer) }

// TerminalLogger returns a logger for the command dispatcher.
func TerminalLogger() Logger { return loggerFor(terminalLayer) }

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets debugger flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "sdb-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = debuggerLayer.String()
	}
	for _, name := range strings.Split(logstr, ",") {
		if l, ok := layerByName(name); ok {
			enabled[l] = true
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}

// textFormatter is a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
type textFormatter struct {
}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s ", entry.Time.Format("2006-01-02T15:04:05Z07:00"), strings.ToLower(entry.Level.String()))
	if layer, ok := entry.Data["layer"]; ok {
		fmt.Fprintf(&b, "layer=%v ", layer)
	}
	for k, v := range entry.Data {
		if k == "layer" {
			continue
		}
		fmt.Fprintf(&b, "%s=%v ", k, v)
	}
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return []byte(b.String()), nil
}
