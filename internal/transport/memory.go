package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/dreamware/primus/internal/cluster"
)

// Memory delivers calls straight into the handlers registered for each
// address. Several simulated peers can share one Memory in a single process.
type Memory struct {
	mu       sync.RWMutex
	handlers map[string]http.Handler
	down     map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		handlers: make(map[string]http.Handler),
		down:     make(map[string]bool),
	}
}

// Register makes h reachable at addr.
func (m *Memory) Register(addr string, h http.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[addr] = h
}

func (m *Memory) Unregister(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, addr)
}

// SetDown makes calls to addr fail with ErrNoRoute until cleared.
func (m *Memory) SetDown(addr string, down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down[addr] = down
}

func (m *Memory) Post(ctx context.Context, addr, path string, body, out any) error {
	return m.do(ctx, http.MethodPost, addr, path, body, out)
}

func (m *Memory) Get(ctx context.Context, addr, path string, out any) error {
	return m.do(ctx, http.MethodGet, addr, path, nil, out)
}

func (m *Memory) do(ctx context.Context, method, addr, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	h, ok := m.handlers[addr]
	down := m.down[addr]
	m.mu.RUnlock()
	if !ok || down {
		return fmt.Errorf("%s %s%s: %w", method, addr, path, ErrNoRoute)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, "http://"+addr+path, reader).WithContext(ctx)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code >= 300 {
		return fmt.Errorf("%s %s%s: %w", method, addr, path, &cluster.StatusError{URL: addr + path, Code: rec.Code})
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(rec.Body).Decode(out)
}
