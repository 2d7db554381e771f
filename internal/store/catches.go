package store

import (
	"sync"

	"fish-tracker/internal/model"
)

type catchStore struct {
	mu   sync.RWMutex
	data map[model.Namespace][]model.Catch
}

func newCatchStore() *catchStore {
	return &catchStore{data: make(map[model.Namespace][]model.Catch)}
}

func (m *catchStore) append(ns model.Namespace, c model.Catch) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[ns] = append(m.data[ns], c)
}

func (m *catchStore) list(ns model.Namespace) []model.Catch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.data[ns]
	result := make([]model.Catch, len(rows))
	copy(result, rows)
	return result
}

func (m *catchStore) count(ns model.Namespace) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[ns])
}

func (m *catchStore) remove(ns model.Namespace, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.data[ns]
	for i, c := range rows {
		if c.ID == id {
			m.data[ns] = append(rows[:i:i], rows[i+1:]...)
			return true
		}
	}
	return false
}

func (m *catchStore) removeOldest(ns model.Namespace, n int) int {
	if n <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.data[ns]
	if n > len(rows) {
		n = len(rows)
	}
	m.data[ns] = append([]model.Catch(nil), rows[n:]...)
	return n
}

func (m *catchStore) purgeUser(user string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ns := range m.data {
		if ns.User == user {
			delete(m.data, ns)
		}
	}
}

func (m *catchStore) snapshot() map[model.Namespace][]model.Catch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[model.Namespace][]model.Catch, len(m.data))
	for ns, rows := range m.data {
		if len(rows) == 0 {
			continue
		}
		out[ns] = append([]model.Catch(nil), rows...)
	}
	return out
}
