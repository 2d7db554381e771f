package model

import "time"

type Kind string

const (
	KindFish Kind = "fish"
	KindCrab Kind = "crab"
)

func (k Kind) Valid() bool {
	return k == KindFish || k == KindCrab
}

// Gamemodes lists the server partitions a catch can belong to.
var Gamemodes = []string{"oneblock", "earth", "survival", "factions", "boxsmp"}

func ValidGamemode(gamemode string) bool {
	for _, g := range Gamemodes {
		if g == gamemode {
			return true
		}
	}
	return false
}

// CrabMarker is the value of the "fish" field in every crab payload and row.
const CrabMarker = "crab"

type User struct {
	ID           string
	Name         string
	Key          string
	PasswordHash string
	CreatedAt    time.Time
}

const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

type Admin struct {
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// CatchEvent is a validated submission: either a FishCatch or a CrabCatch.
type CatchEvent interface {
	Kind() Kind
}

type FishCatch struct {
	Name   string
	Rarity int
}

func (FishCatch) Kind() Kind { return KindFish }

type CrabCatch struct{}

func (CrabCatch) Kind() Kind { return KindCrab }

// Namespace addresses one append-only collection of catches.
type Namespace struct {
	Kind     Kind
	User     string
	Gamemode string
}

func (ns Namespace) String() string {
	return string(ns.Kind) + "_" + ns.User + "_" + ns.Gamemode
}

// Catch is a stored row. Rarity keeps the raw code and is nil for crabs.
type Catch struct {
	ID        string    `json:"id"`
	Fish      string    `json:"fish"`
	Rarity    *int      `json:"rarity,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCatch builds the row appended for ev.
func NewCatch(id string, ev CatchEvent, now time.Time) Catch {
	switch e := ev.(type) {
	case FishCatch:
		rarity := e.Rarity
		return Catch{ID: id, Fish: e.Name, Rarity: &rarity, Timestamp: now}
	default:
		return Catch{ID: id, Fish: CrabMarker, Timestamp: now}
	}
}
