package verify

import (
	"context"
	"sync"
)

// Mock implements Gateway for testing. Results are keyed by authority ID;
// unknown IDs return a negative result. An Err, if set, is returned for
// every call.
type Mock struct {
	mu      sync.Mutex
	results map[string]*Result
	calls   []string
	Err     error
	// Block, if non-nil, is closed by the test to release in-flight calls.
	Block chan struct{}
}

// NewMock creates an empty Mock gateway.
func NewMock() *Mock {
	return &Mock{results: make(map[string]*Result)}
}

// SetResult registers the result for an authority ID.
func (m *Mock) SetResult(authorityID string, res *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[authorityID] = res
}

// Calls returns the authority IDs looked up so far.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Verify implements Gateway.
func (m *Mock) Verify(ctx context.Context, authorityID string) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, authorityID)
	block := m.Block
	err := m.Err
	res, ok := m.results[authorityID]
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Result{Verified: false, Reason: "authority not found"}, nil
	}
	return res, nil
}
