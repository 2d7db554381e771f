package gate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"fish-tracker/internal/model"
)

type fishPayload struct {
	Fish   string `json:"fish"`
	Rarity int    `json:"rarity"`
}

type crabPayload struct {
	Fish string `json:"fish"`
}

// Encode renders ev in its wire shape.
func Encode(ev model.CatchEvent) ([]byte, error) {
	switch e := ev.(type) {
	case model.FishCatch:
		return json.Marshal(fishPayload{Fish: e.Name, Rarity: e.Rarity})
	case model.CrabCatch:
		return json.Marshal(crabPayload{Fish: model.CrabMarker})
	default:
		return nil, ErrUnknownKind
	}
}

// Decode parses a decrypted payload and enforces the exact key set of kind.
func Decode(kind model.Kind, payload []byte) (model.CatchEvent, error) {
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: not UTF-8", ErrBadJSON)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data", ErrBadJSON)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, shapeErr(kind, "payload is not an object")
	}

	switch kind {
	case model.KindFish:
		return decodeFish(obj)
	case model.KindCrab:
		return decodeCrab(obj)
	default:
		return nil, ErrUnknownKind
	}
}

func decodeFish(obj map[string]any) (model.CatchEvent, error) {
	if err := exactKeys(model.KindFish, obj, "fish", "rarity"); err != nil {
		return nil, err
	}
	name, ok := obj["fish"].(string)
	if !ok || name == "" {
		return nil, shapeErr(model.KindFish, `"fish" must be a non-empty string`)
	}
	num, ok := obj["rarity"].(json.Number)
	if !ok {
		return nil, shapeErr(model.KindFish, `"rarity" must be a number`)
	}
	code, err := num.Int64()
	if err != nil || int64(int(code)) != code {
		return nil, shapeErr(model.KindFish, `"rarity" must be an integer`)
	}
	return model.FishCatch{Name: name, Rarity: int(code)}, nil
}

func decodeCrab(obj map[string]any) (model.CatchEvent, error) {
	if err := exactKeys(model.KindCrab, obj, "fish"); err != nil {
		return nil, err
	}
	if v, ok := obj["fish"].(string); !ok || v != model.CrabMarker {
		return nil, shapeErr(model.KindCrab, `"fish" must be "crab"`)
	}
	return model.CrabCatch{}, nil
}

func exactKeys(kind model.Kind, obj map[string]any, keys ...string) error {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return shapeErr(kind, "missing key %q", k)
		}
	}
	if len(obj) != len(keys) {
		for k := range obj {
			if !contains(keys, k) {
				return shapeErr(kind, "unexpected key %q", k)
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
