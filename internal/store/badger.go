package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"fish-tracker/internal/model"
)

// Key prefixes. Catch keys sort by append order inside their namespace:
// catch:<kind>\x00<user>\x00<gamemode>\x00<sequence, zero padded>\x00<id>
const (
	userKeyPrefix     = "user:"
	userNameKeyPrefix = "user_name:"
	adminKeyPrefix    = "admin:"
	catchKeyPrefix    = "catch:"
)

const catchSeqKey = "seq:catch"

type Badger struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadger opens (or creates) a badger database in dir.
func OpenBadger(dir string) (*Badger, error) {
	if dir == "" {
		return nil, errors.New("badger: data dir is required")
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", dir, err)
	}
	s, err := NewBadger(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewBadger(db *badger.DB) (*Badger, error) {
	seq, err := db.GetSequence([]byte(catchSeqKey), 128)
	if err != nil {
		return nil, fmt.Errorf("badger: catch sequence: %w", err)
	}
	return &Badger{db: db, seq: seq}, nil
}

type badgerUser struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Key          string    `json:"fernetKey"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

type badgerAdmin struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

func namespacePrefix(ns model.Namespace) []byte {
	return []byte(catchKeyPrefix + string(ns.Kind) + "\x00" + ns.User + "\x00" + ns.Gamemode + "\x00")
}

func catchKey(ns model.Namespace, seq uint64, id string) []byte {
	return append(namespacePrefix(ns), fmt.Sprintf("%020d\x00%s", seq, id)...)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return txn.Set(key, data)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scan calls fn for every value under prefix in key order.
func scan(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if err := item.Value(func(val []byte) error { return fn(key, val) }); err != nil {
			return err
		}
	}
	return nil
}

func toUser(u badgerUser) model.User {
	return model.User{ID: u.ID, Name: u.Name, Key: u.Key, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt}
}

func fromUser(u model.User) badgerUser {
	return badgerUser{ID: u.ID, Name: u.Name, Key: u.Key, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt}
}

func (s *Badger) CreateUser(_ context.Context, u model.User) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{[]byte(userKeyPrefix + u.ID), []byte(userNameKeyPrefix + u.Name)} {
			found, err := exists(txn, key)
			if err != nil {
				return err
			}
			if found {
				return ErrConflict
			}
		}
		if err := setJSON(txn, []byte(userKeyPrefix+u.ID), fromUser(u)); err != nil {
			return err
		}
		return txn.Set([]byte(userNameKeyPrefix+u.Name), []byte(u.ID))
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrConflict
	}
	return err
}

func (s *Badger) UserByID(_ context.Context, id string) (model.User, error) {
	var u badgerUser
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(userKeyPrefix+id), &u)
	})
	if err != nil {
		return model.User{}, err
	}
	return toUser(u), nil
}

func (s *Badger) UserByName(_ context.Context, name string) (model.User, error) {
	var u badgerUser
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userNameKeyPrefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, []byte(userKeyPrefix+string(id)), &u)
	})
	if err != nil {
		return model.User{}, err
	}
	return toUser(u), nil
}

func (s *Badger) allUsers() ([]model.User, error) {
	var users []model.User
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, []byte(userKeyPrefix), func(_, val []byte) error {
			var u badgerUser
			if err := json.Unmarshal(val, &u); err != nil {
				return err
			}
			users = append(users, toUser(u))
			return nil
		})
	})
	return users, err
}

func (s *Badger) ListUsers(_ context.Context, q UserQuery) ([]model.User, int, error) {
	users, err := s.allUsers()
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	search := strings.ToLower(q.Search)
	result := make([]model.User, 0, len(users))
	for _, u := range users {
		if search == "" || strings.Contains(strings.ToLower(u.Name), search) {
			result = append(result, u)
		}
	}
	sortUsers(result)
	return page(result, q.Offset, q.Limit), len(result), nil
}

func (s *Badger) CountUsersSince(_ context.Context, since time.Time) (int, error) {
	users, err := s.allUsers()
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	n := 0
	for _, u := range users {
		if !u.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Badger) UpdateUser(_ context.Context, u model.User) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var existing badgerUser
		if err := getJSON(txn, []byte(userKeyPrefix+u.ID), &existing); err != nil {
			return err
		}
		if existing.Name != u.Name {
			found, err := exists(txn, []byte(userNameKeyPrefix+u.Name))
			if err != nil {
				return err
			}
			if found {
				return ErrConflict
			}
			if err := txn.Delete([]byte(userNameKeyPrefix + existing.Name)); err != nil {
				return err
			}
			if err := txn.Set([]byte(userNameKeyPrefix+u.Name), []byte(u.ID)); err != nil {
				return err
			}
		}
		return setJSON(txn, []byte(userKeyPrefix+u.ID), fromUser(u))
	})
}

func (s *Badger) DeleteUser(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var existing badgerUser
		if err := getJSON(txn, []byte(userKeyPrefix+id), &existing); err != nil {
			return err
		}
		if err := txn.Delete([]byte(userKeyPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(userNameKeyPrefix + existing.Name))
	})
}

func (s *Badger) CreateAdmin(_ context.Context, a model.Admin) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(adminKeyPrefix + a.Username)
		found, err := exists(txn, key)
		if err != nil {
			return err
		}
		if found {
			return ErrConflict
		}
		return setJSON(txn, key, badgerAdmin(a))
	})
}

func (s *Badger) AdminByUsername(_ context.Context, username string) (model.Admin, error) {
	var a badgerAdmin
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(adminKeyPrefix+username), &a)
	})
	if err != nil {
		return model.Admin{}, err
	}
	return model.Admin(a), nil
}

func (s *Badger) ListAdmins(_ context.Context) ([]model.Admin, error) {
	admins := make([]model.Admin, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, []byte(adminKeyPrefix), func(_, val []byte) error {
			var a badgerAdmin
			if err := json.Unmarshal(val, &a); err != nil {
				return err
			}
			admins = append(admins, model.Admin(a))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].Username < admins[j].Username })
	return admins, nil
}

func (s *Badger) DeleteAdmin(_ context.Context, username string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(adminKeyPrefix + username)
		found, err := exists(txn, key)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		return txn.Delete(key)
	})
}

func (s *Badger) AppendCatch(_ context.Context, ns model.Namespace, c model.Catch) error {
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("badger: next sequence: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, catchKey(ns, n, c.ID), c)
	})
}

func (s *Badger) ListCatches(_ context.Context, ns model.Namespace) ([]model.Catch, error) {
	rows := make([]model.Catch, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, namespacePrefix(ns), func(_, val []byte) error {
			var c model.Catch
			if err := json.Unmarshal(val, &c); err != nil {
				return err
			}
			rows = append(rows, c)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list catches: %w", err)
	}
	return rows, nil
}

func (s *Badger) CountCatches(_ context.Context, ns model.Namespace) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := namespacePrefix(ns)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *Badger) DeleteCatch(_ context.Context, ns model.Namespace, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var target []byte
		suffix := "\x00" + id
		err := scan(txn, namespacePrefix(ns), func(key, _ []byte) error {
			if target == nil && strings.HasSuffix(string(key), suffix) {
				target = key
			}
			return nil
		})
		if err != nil {
			return err
		}
		if target == nil {
			return ErrNotFound
		}
		return txn.Delete(target)
	})
}

func (s *Badger) DeleteCatches(_ context.Context, ns model.Namespace, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	removed := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		var keys [][]byte
		err := scan(txn, namespacePrefix(ns), func(key, _ []byte) error {
			if len(keys) < n {
				keys = append(keys, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Badger) PurgeUserCatches(_ context.Context, userName string) error {
	for _, kind := range []model.Kind{model.KindFish, model.KindCrab} {
		prefix := []byte(catchKeyPrefix + string(kind) + "\x00" + userName + "\x00")
		if err := s.db.DropPrefix(prefix); err != nil {
			return fmt.Errorf("purge %s catches: %w", kind, err)
		}
	}
	return nil
}

func (s *Badger) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: closed")
	}
	return nil
}

func (s *Badger) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}
