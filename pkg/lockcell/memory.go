package lockcell

import (
	"context"
	"sync"
)

// Memory is an in-process Cell. It records how often each primitive was
// used so tests can assert on the protocol's traffic.
type Memory struct {
	mu       sync.Mutex
	holder   Token
	held     bool
	reads    int
	claims   int
	releases int
}

// NewMemory returns an empty cell.
func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryHeldBy returns a cell already held by token.
func NewMemoryHeldBy(token Token) *Memory {
	return &Memory{holder: token, held: true}
}

// Read implements Cell.
func (m *Memory) Read(ctx context.Context) (Token, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	return m.holder, m.held, nil
}

// TryClaim implements Cell.
func (m *Memory) TryClaim(ctx context.Context, token Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims++
	m.holder = token
	m.held = true
	return nil
}

// Release implements Releaser.
func (m *Memory) Release(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	m.holder = 0
	m.held = false
	return nil
}

// Reads returns the number of Read calls.
func (m *Memory) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Claims returns the number of TryClaim calls.
func (m *Memory) Claims() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claims
}

// Releases returns the number of Release calls.
func (m *Memory) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}
