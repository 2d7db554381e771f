// Package gate opens and validates sealed catch submissions before anything
// is written to the store.
//
// A submission is a Fernet token minted by the client with the submitting
// user's key. The gate resolves the user, opens the token, and checks that the
// decrypted JSON has exactly the shape of the declared event kind. It keeps no
// state between calls and performs no writes.
package gate

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
	"fish-tracker/internal/model"
	"fish-tracker/internal/store"
)

// UserLookup resolves a user id to its record. A missing user is reported as
// store.ErrNotFound.
type UserLookup interface {
	UserByID(ctx context.Context, id string) (model.User, error)
}

// Unbounded disables the freshness check; only the HMAC tag is verified.
const Unbounded time.Duration = 0

// fernet version byte, timestamp, IV and HMAC.
const minEnvelopeLen = 1 + 8 + 16 + 32

type Gate struct {
	users UserLookup
	ttl   time.Duration
}

// New returns a gate that looks users up in users and rejects tokens older
// than ttl. A ttl of Unbounded accepts tokens of any age.
func New(users UserLookup, ttl time.Duration) *Gate {
	if ttl < 0 {
		ttl = Unbounded
	}
	return &Gate{users: users, ttl: ttl}
}

func (g *Gate) TTL() time.Duration { return g.ttl }

type Result struct {
	// UserName is the canonical name, used as the storage namespace segment.
	UserName string
	Event    model.CatchEvent
}

// Open authenticates token as a submission of kind by userID.
func (g *Gate) Open(ctx context.Context, kind model.Kind, userID string, token []byte) (Result, error) {
	if !kind.Valid() {
		return Result{}, ErrUnknownKind
	}
	if userID == "" {
		return Result{}, ErrMissingUser
	}
	token = bytes.TrimSpace(token)
	if len(token) == 0 {
		return Result{}, ErrEmptyToken
	}

	user, err := g.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, ErrUserNotFound
		}
		return Result{}, fmt.Errorf("lookup user: %w", err)
	}
	if user.Name == "" {
		return Result{}, fmt.Errorf("%w: missing name", ErrIncompleteUser)
	}
	if user.Key == "" {
		return Result{}, fmt.Errorf("%w: missing key", ErrIncompleteUser)
	}
	key, err := fernet.DecodeKey(user.Key)
	if err != nil {
		return Result{}, fmt.Errorf("%w: unusable key: %v", ErrIncompleteUser, err)
	}

	payload := fernet.VerifyAndDecrypt(token, g.libraryTTL(), []*fernet.Key{key})
	if payload == nil {
		return Result{}, decryptFailure(token)
	}

	ev, err := Decode(kind, payload)
	if err != nil {
		return Result{}, err
	}
	return Result{UserName: user.Name, Event: ev}, nil
}

// fernet-go enforces any ttl >= 0 and skips the age check only for negative ones.
func (g *Gate) libraryTTL() time.Duration {
	if g.ttl == Unbounded {
		return -1
	}
	return g.ttl
}

// decryptFailure narrows the cause for server-side logs only.
func decryptFailure(token []byte) error {
	raw := make([]byte, base64.URLEncoding.DecodedLen(len(token)))
	n, err := base64.URLEncoding.Decode(raw, token)
	if err != nil || n < minEnvelopeLen || raw[0] != 0x80 {
		return fmt.Errorf("%w: malformed envelope", ErrDecrypt)
	}
	return fmt.Errorf("%w: tag mismatch or token expired", ErrDecrypt)
}

// Seal mints a token for ev with the base64 key. It is what the client mod
// does before submitting.
func Seal(key string, ev model.CatchEvent) ([]byte, error) {
	k, err := fernet.DecodeKey(key)
	if err != nil {
		return nil, err
	}
	payload, err := Encode(ev)
	if err != nil {
		return nil, err
	}
	return fernet.EncryptAndSign(payload, k)
}
