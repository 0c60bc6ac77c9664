package store

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

// Memory is an in-process Store guarded by a single mutex
type Memory struct {
	tasks         map[api.TaskID]*api.Task
	notifications map[api.UserID][]*api.Notification
	mu            sync.Mutex
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		tasks:         map[api.TaskID]*api.Task{},
		notifications: map[api.UserID][]*api.Notification{},
	}
}

func (m *Memory) CreateTask(_ context.Context, t *api.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prepareTask(t, time.Now())
	if _, ok := m.tasks[t.ID]; ok {
		return ErrTaskExists
	}
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *Memory) GetTask(_ context.Context, id api.TaskID) (*api.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.Clone(), nil
}

func (m *Memory) UpdateTask(
	_ context.Context, id api.TaskID, fn UpdateFunc,
) (*api.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}

	upd := cur.Clone()
	if err := fn(upd); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return cur.Clone(), nil
		}
		return nil, err
	}
	upd.ID = id
	upd.UpdatedAt = time.Now()
	m.tasks[id] = upd
	return upd.Clone(), nil
}

func (m *Memory) ListActiveTimers(_ context.Context) ([]*api.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []*api.Task
	for _, t := range m.tasks {
		if t.Timer.Active {
			res = append(res, t.Clone())
		}
	}
	return res, nil
}

func (m *Memory) DeleteTask(_ context.Context, id api.TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *Memory) AddNotification(
	_ context.Context, n *api.Notification,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prepareNotification(n, time.Now())
	cp := *n
	m.notifications[n.RecipientID] = append(
		m.notifications[n.RecipientID], &cp,
	)
	return nil
}

func (m *Memory) ListUnread(
	_ context.Context, user api.UserID,
) ([]*api.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []*api.Notification
	for _, n := range m.notifications[user] {
		if !n.Read {
			cp := *n
			res = append(res, &cp)
		}
	}
	sortNewestFirst(res)
	return res, nil
}

func (m *Memory) MarkRead(
	_ context.Context, user api.UserID, id api.NotificationID,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notifications[user] {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return ErrNotificationNotFound
}

func (m *Memory) MarkAllRead(
	_ context.Context, user api.UserID,
) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, n := range m.notifications[user] {
		if !n.Read {
			n.Read = true
			count++
		}
	}
	return count, nil
}

func (m *Memory) DeleteNotification(
	_ context.Context, user api.UserID, id api.NotificationID,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.notifications[user]
	idx := slices.IndexFunc(list, func(n *api.Notification) bool {
		return n.ID == id
	})
	if idx < 0 {
		return ErrNotificationNotFound
	}
	m.notifications[user] = slices.Delete(list, idx, idx+1)
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func sortNewestFirst(list []*api.Notification) {
	slices.SortStableFunc(list, func(a, b *api.Notification) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
}
