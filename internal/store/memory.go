package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"fish-tracker/internal/logging"
	"fish-tracker/internal/model"
)

// Memory keeps everything in maps. With a StateFile it reloads a JSON snapshot
// on start and rewrites it atomically after every mutation.
type Memory struct {
	mu sync.RWMutex

	stateFile string
	persistMu sync.Mutex

	usersByID    map[string]model.User
	userIDByName map[string]string
	admins       map[string]model.Admin

	catches *catchStore
}

type MemoryOptions struct {
	StateFile string
}

func NewMemory(opts MemoryOptions) *Memory {
	s := &Memory{
		stateFile:    opts.StateFile,
		usersByID:    make(map[string]model.User),
		userIDByName: make(map[string]string),
		admins:       make(map[string]model.Admin),
		catches:      newCatchStore(),
	}

	if s.stateFile != "" {
		if err := s.loadFromFile(s.stateFile); err != nil {
			logging.Warn().Err(err).Str("file", s.stateFile).Msg("memory store: load failed")
		}
	}
	return s
}

type persistedUser struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Key          string    `json:"fernetKey"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

type persistedAdmin struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type persistedCollection struct {
	Kind     model.Kind    `json:"kind"`
	User     string        `json:"user"`
	Gamemode string        `json:"gamemode"`
	Catches  []model.Catch `json:"catches"`
}

type persistedState struct {
	Version     int                   `json:"version"`
	Users       []persistedUser       `json:"users"`
	Admins      []persistedAdmin      `json:"admins"`
	Collections []persistedCollection `json:"collections"`
	SavedAt     int64                 `json:"savedAt"`
}

func (s *Memory) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var file persistedState
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Version != 1 {
		return errors.New("unsupported state version")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range file.Users {
		if u.ID == "" || u.Name == "" {
			continue
		}
		s.usersByID[u.ID] = model.User{ID: u.ID, Name: u.Name, Key: u.Key, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt}
		s.userIDByName[u.Name] = u.ID
	}
	for _, a := range file.Admins {
		if a.Username == "" {
			continue
		}
		s.admins[a.Username] = model.Admin{Username: a.Username, PasswordHash: a.PasswordHash, Role: a.Role, CreatedAt: a.CreatedAt}
	}
	for _, c := range file.Collections {
		ns := model.Namespace{Kind: c.Kind, User: c.User, Gamemode: c.Gamemode}
		for _, row := range c.Catches {
			s.catches.append(ns, row)
		}
	}
	return nil
}

func (s *Memory) snapshotLocked() persistedState {
	state := persistedState{Version: 1, SavedAt: time.Now().UnixMilli()}
	for _, u := range s.usersByID {
		state.Users = append(state.Users, persistedUser{ID: u.ID, Name: u.Name, Key: u.Key, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt})
	}
	sort.Slice(state.Users, func(i, j int) bool { return state.Users[i].ID < state.Users[j].ID })
	for _, a := range s.admins {
		state.Admins = append(state.Admins, persistedAdmin{Username: a.Username, PasswordHash: a.PasswordHash, Role: a.Role, CreatedAt: a.CreatedAt})
	}
	sort.Slice(state.Admins, func(i, j int) bool { return state.Admins[i].Username < state.Admins[j].Username })
	for ns, rows := range s.catches.snapshot() {
		state.Collections = append(state.Collections, persistedCollection{Kind: ns.Kind, User: ns.User, Gamemode: ns.Gamemode, Catches: rows})
	}
	sort.Slice(state.Collections, func(i, j int) bool {
		return state.Collections[i].key() < state.Collections[j].key()
	})
	return state
}

func (c persistedCollection) key() string {
	return string(c.Kind) + "\x00" + c.User + "\x00" + c.Gamemode
}

// persist must be called after the mutation's lock has been released.
func (s *Memory) persist() {
	path := s.stateFile
	if path == "" {
		return
	}

	// Snapshot under persistMu so writes reach the file in mutation order.
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	state := s.snapshotLocked()
	s.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		logging.Error().Err(err).Str("dir", dir).Msg("memory store: mkdir failed")
		return
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		logging.Error().Err(err).Msg("memory store: marshal failed")
		return
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		logging.Error().Err(err).Msg("memory store: create temp failed")
		return
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		logging.Error().Err(err).Msg("memory store: chmod temp failed")
		return
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		logging.Error().Err(err).Msg("memory store: write temp failed")
		return
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		logging.Error().Err(err).Msg("memory store: sync temp failed")
		return
	}
	if err := tmp.Close(); err != nil {
		logging.Error().Err(err).Msg("memory store: close temp failed")
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		logging.Error().Err(err).Msg("memory store: rename failed")
	}
}

func (s *Memory) CreateUser(_ context.Context, u model.User) error {
	s.mu.Lock()
	if _, ok := s.usersByID[u.ID]; ok {
		s.mu.Unlock()
		return ErrConflict
	}
	if _, ok := s.userIDByName[u.Name]; ok {
		s.mu.Unlock()
		return ErrConflict
	}
	s.usersByID[u.ID] = u
	s.userIDByName[u.Name] = u.ID
	s.mu.Unlock()

	s.persist()
	return nil
}

func (s *Memory) UserByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByID[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (s *Memory) UserByName(_ context.Context, name string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userIDByName[name]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return s.usersByID[id], nil
}

func (s *Memory) ListUsers(_ context.Context, q UserQuery) ([]model.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(q.Search)
	result := make([]model.User, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		if search == "" || strings.Contains(strings.ToLower(u.Name), search) {
			result = append(result, u)
		}
	}
	sortUsers(result)
	return page(result, q.Offset, q.Limit), len(result), nil
}

func sortUsers(users []model.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
}

func (s *Memory) CountUsersSince(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.usersByID {
		if !u.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Memory) UpdateUser(_ context.Context, u model.User) error {
	s.mu.Lock()
	existing, ok := s.usersByID[u.ID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if existing.Name != u.Name {
		if _, taken := s.userIDByName[u.Name]; taken {
			s.mu.Unlock()
			return ErrConflict
		}
		delete(s.userIDByName, existing.Name)
		s.userIDByName[u.Name] = u.ID
	}
	s.usersByID[u.ID] = u
	s.mu.Unlock()

	s.persist()
	return nil
}

func (s *Memory) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	u, ok := s.usersByID[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.usersByID, id)
	delete(s.userIDByName, u.Name)
	s.mu.Unlock()

	s.persist()
	return nil
}

func (s *Memory) CreateAdmin(_ context.Context, a model.Admin) error {
	s.mu.Lock()
	if _, ok := s.admins[a.Username]; ok {
		s.mu.Unlock()
		return ErrConflict
	}
	s.admins[a.Username] = a
	s.mu.Unlock()

	s.persist()
	return nil
}

func (s *Memory) AdminByUsername(_ context.Context, username string) (model.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.admins[username]
	if !ok {
		return model.Admin{}, ErrNotFound
	}
	return a, nil
}

func (s *Memory) ListAdmins(_ context.Context) ([]model.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Admin, 0, len(s.admins))
	for _, a := range s.admins {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func (s *Memory) DeleteAdmin(_ context.Context, username string) error {
	s.mu.Lock()
	if _, ok := s.admins[username]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.admins, username)
	s.mu.Unlock()

	s.persist()
	return nil
}

func (s *Memory) AppendCatch(_ context.Context, ns model.Namespace, c model.Catch) error {
	s.catches.append(ns, c)
	s.persist()
	return nil
}

func (s *Memory) ListCatches(_ context.Context, ns model.Namespace) ([]model.Catch, error) {
	return s.catches.list(ns), nil
}

func (s *Memory) CountCatches(_ context.Context, ns model.Namespace) (int, error) {
	return s.catches.count(ns), nil
}

func (s *Memory) DeleteCatch(_ context.Context, ns model.Namespace, id string) error {
	if !s.catches.remove(ns, id) {
		return ErrNotFound
	}
	s.persist()
	return nil
}

func (s *Memory) DeleteCatches(_ context.Context, ns model.Namespace, n int) (int, error) {
	removed := s.catches.removeOldest(ns, n)
	if removed > 0 {
		s.persist()
	}
	return removed, nil
}

func (s *Memory) PurgeUserCatches(_ context.Context, userName string) error {
	s.catches.purgeUser(userName)
	s.persist()
	return nil
}

func (s *Memory) Ping(context.Context) error { return nil }

func (s *Memory) Close() error { return nil }
