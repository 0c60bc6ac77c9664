package helpers

import (
	"sync"

	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

// MockPusher records every timer snapshot pushed to it
type MockPusher struct {
	pushed map[api.TaskID][]api.TimerSnapshot
	err    error
	mu     sync.Mutex
}

// NewMockPusher creates an empty MockPusher
func NewMockPusher() *MockPusher {
	return &MockPusher{
		pushed: map[api.TaskID][]api.TimerSnapshot{},
	}
}

// PushTimerSnapshot records the snapshot, then returns the configured error
func (p *MockPusher) PushTimerSnapshot(
	id api.TaskID, snap api.TimerSnapshot,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed[id] = append(p.pushed[id], snap)
	return p.err
}

// SetError makes every subsequent push fail with err
func (p *MockPusher) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Pushed returns the snapshots pushed for a task, oldest first
func (p *MockPusher) Pushed(id api.TaskID) []api.TimerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]api.TimerSnapshot, len(p.pushed[id]))
	copy(res, p.pushed[id])
	return res
}

// Last returns the most recent snapshot pushed for a task
func (p *MockPusher) Last(id api.TaskID) (api.TimerSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.pushed[id]
	if len(list) == 0 {
		return api.TimerSnapshot{}, false
	}
	return list[len(list)-1], true
}
