// Package logging builds the logrus loggers used by the primus processes.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

const timeFormat = "2006-01-02 15:04:05"

// Formatter writes one line per entry: time, level, message, then the
// fields sorted by key. Levels are colored when Color is set.
type Formatter struct {
	Color bool
}

func levelColor(l logrus.Level) *color.Color {
	switch l {
	case logrus.TraceLevel:
		return color.New(color.FgCyan)
	case logrus.DebugLevel:
		return color.New(color.FgGreen)
	case logrus.InfoLevel:
		return color.New(color.FgWhite)
	case logrus.WarnLevel:
		return color.New(color.FgBlue)
	default:
		return color.New(color.FgRed)
	}
}

func levelName(l logrus.Level) string {
	if l == logrus.WarnLevel {
		return "WARN"
	}
	return strings.ToUpper(l.String())
}

func (f *Formatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	level := levelName(e.Level)
	if f.Color {
		c := levelColor(e.Level)
		c.EnableColor()
		level = c.Sprint(level)
	}
	fmt.Fprintf(&b, "%s %s %s", e.Time.Format(timeFormat), level, e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := e.Data[k]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		s := fmt.Sprint(v)
		if strings.ContainsAny(s, " \t\"") {
			s = fmt.Sprintf("%q", s)
		}
		fmt.Fprintf(&b, " %s=%s", k, s)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// New returns a logger writing to out at the named level. Colors are used
// when out is a terminal and NO_COLOR is unset.
func New(level string, out io.Writer) (*logrus.Logger, error) {
	lvl := logrus.InfoLevel
	if level != "" {
		var err error
		if lvl, err = logrus.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	colored := false
	if f, ok := out.(*os.File); ok && isTerminal(f) {
		colored = true
		out = colorable.NewColorable(f)
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	l.SetFormatter(&Formatter{Color: colored})
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func isTerminal(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
