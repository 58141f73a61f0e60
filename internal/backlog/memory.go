package backlog

import (
	"sync"

	"github.com/dreamware/primus/internal/cluster"
)

// SliceSource hands out a fixed list of numbers.
type SliceSource struct {
	numbers []int64
	mu      sync.Mutex
	cursor  int
}

func NewSliceSource(numbers ...int64) *SliceSource {
	return &SliceSource{numbers: numbers}
}

func (s *SliceSource) Next() (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.numbers) {
		return 0, false, nil
	}
	n := s.numbers[s.cursor]
	s.cursor++
	return n, true, nil
}

// MemorySink keeps result lines in memory.
type MemorySink struct {
	lines []string
	mu    sync.Mutex
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) AppendResult(number int64, kind cluster.VerdictKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, FormatResult(number, kind))
	return nil
}

func (s *MemorySink) AppendUnresolved(number int64) error {
	return s.AppendResult(number, cluster.KindUnresolved)
}

// Lines returns a copy of the recorded lines.
func (s *MemorySink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}
