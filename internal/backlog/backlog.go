// Package backlog supplies the numbers the leader verifies and records the
// verdicts it reaches.
package backlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/dreamware/primus/internal/cluster"
)

// ErrMalformed is returned for a backlog line that is not an integer.
var ErrMalformed = errors.New("backlog: malformed number")

// Source yields numbers in order. ok is false once the backlog is exhausted.
type Source interface {
	Next() (number int64, ok bool, err error)
}

// Sink records final verdicts.
type Sink interface {
	AppendResult(number int64, kind cluster.VerdictKind) error
	AppendUnresolved(number int64) error
}

// FormatResult renders one results line.
func FormatResult(number int64, kind cluster.VerdictKind) string {
	return fmt.Sprintf("%d - %s", number, kind)
}

// FileSource reads one number per line. The file is re-read on every call
// so numbers appended while running are picked up; only the cursor is kept
// in memory. Blank lines are skipped.
type FileSource struct {
	path   string
	mu     sync.Mutex
	cursor int
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Next() (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	index := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if index < s.cursor {
			index++
			continue
		}

		s.cursor++
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return 0, true, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		return n, true, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, false, err
	}
	return 0, false, nil
}

// Cursor returns how many numbers have been handed out.
func (s *FileSource) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// FileSink appends "<number> - <verdict>" lines to a file.
type FileSink struct {
	path string
	mu   sync.Mutex
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) AppendResult(number int64, kind cluster.VerdictKind) error {
	return s.append(FormatResult(number, kind))
}

func (s *FileSink) AppendUnresolved(number int64) error {
	return s.append(FormatResult(number, cluster.KindUnresolved))
}

func (s *FileSink) append(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
