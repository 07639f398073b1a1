// Package spawn decides where new players appear and binds them to their
// connection's player slots.
package spawn

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/dcrodman/netmanager/internal/world"
)

// Method selects how GetStartPosition picks among the registered positions.
type Method int

const (
	Random Method = iota
	RoundRobin
)

func (m Method) String() string {
	if m == RoundRobin {
		return "round_robin"
	}
	return "random"
}

// ParseMethod accepts the names used in the config file.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "random":
		return Random, nil
	case "round_robin", "roundrobin":
		return RoundRobin, nil
	default:
		return Random, fmt.Errorf("unknown spawn method %q", s)
	}
}

// StartPositions is the ordered set of spawn points registered by the loaded
// scene.
type StartPositions struct {
	method    Method
	rng       *rand.Rand
	positions []world.StartPosition
	cursor    int
}

// NewStartPositions creates an empty set. rng is only used by the Random
// method; nil uses a time-seeded source.
func NewStartPositions(method Method, rng *rand.Rand) *StartPositions {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &StartPositions{method: method, rng: rng}
}

func (s *StartPositions) Method() Method { return s.method }

func (s *StartPositions) Register(p world.StartPosition) {
	s.positions = append(s.positions, p)
}

func (s *StartPositions) Unregister(p world.StartPosition) {
	for i, existing := range s.positions {
		if existing == p {
			s.positions = append(s.positions[:i], s.positions[i+1:]...)
			return
		}
	}
}

// Clear drops every position and rewinds the round-robin cursor.
func (s *StartPositions) Clear() {
	s.positions = nil
	s.cursor = 0
}

// Len returns the number of registered positions, including dead ones that
// haven't been pruned yet.
func (s *StartPositions) Len() int { return len(s.positions) }

// GetStartPosition prunes positions that are no longer valid and picks one of
// the rest. Returns false when none are left.
func (s *StartPositions) GetStartPosition() (world.StartPosition, bool) {
	s.prune()
	if len(s.positions) == 0 {
		return nil, false
	}

	if s.method == RoundRobin {
		if s.cursor >= len(s.positions) {
			s.cursor = 0
		}
		p := s.positions[s.cursor]
		s.cursor++
		return p, true
	}
	return s.positions[s.rng.Intn(len(s.positions))], true
}

func (s *StartPositions) prune() {
	live := s.positions[:0]
	for _, p := range s.positions {
		if p != nil && p.Valid() {
			live = append(live, p)
		}
	}
	for i := len(live); i < len(s.positions); i++ {
		s.positions[i] = nil
	}
	s.positions = live
}
