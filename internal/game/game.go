// Package game implements the scored overlay for capture sessions: timed
// turns with a randomly chosen bias instruction, bucketing every detected
// anomaly by significance tier and deviation direction.
package game

import (
	"math/rand"
	"sync"
	"time"

	"github.com/bitpulse/bitpulse/pkg/types"
)

// Instruction tells the participant which bias to attempt during a turn.
type Instruction string

const (
	FavorOnes  Instruction = "Generate more 1's"
	FavorZeros Instruction = "Generate more 0's"
)

// BucketScores counts anomalies for one turn, keyed by significance tier and
// deviation direction. Anomalies without a tier are not counted.
type BucketScores struct {
	StrongUp   int
	MediumUp   int
	WeakUp     int
	StrongDown int
	MediumDown int
	WeakDown   int
}

// TotalUp returns all upward-deviation anomalies.
func (b BucketScores) TotalUp() int { return b.StrongUp + b.MediumUp + b.WeakUp }

// TotalDown returns all downward-deviation anomalies.
func (b BucketScores) TotalDown() int { return b.StrongDown + b.MediumDown + b.WeakDown }

// Total returns all counted anomalies.
func (b BucketScores) Total() int { return b.TotalUp() + b.TotalDown() }

func (b *BucketScores) merge(other BucketScores) {
	b.StrongUp += other.StrongUp
	b.MediumUp += other.MediumUp
	b.WeakUp += other.WeakUp
	b.StrongDown += other.StrongDown
	b.MediumDown += other.MediumDown
	b.WeakDown += other.WeakDown
}

// Turn is one timed scoring interval. Once archived into history a turn is
// never mutated again.
type Turn struct {
	Instruction Instruction
	Duration    time.Duration
	StartTime   time.Time
	Scores      BucketScores
}

// Expired reports whether the turn's duration has elapsed at now.
func (t Turn) Expired(now time.Time) bool {
	return now.Sub(t.StartTime) >= t.Duration
}

// Remaining returns the time left in the turn at now, floored at zero.
func (t Turn) Remaining(now time.Time) time.Duration {
	left := t.Duration - now.Sub(t.StartTime)
	if left < 0 {
		return 0
	}
	return left
}

// Options configures turn generation. The zero value selects the defaults;
// the clock and random source hooks exist for tests.
type Options struct {
	MinTurn time.Duration // inclusive lower bound for turn duration
	MaxTurn time.Duration // exclusive upper bound
	Now     func() time.Time
	Rand    *rand.Rand
}

// State tracks the active turn, the archived history, and the finished flag.
//
// State is shared by exactly two tasks: the capture/replay loop classifying
// anomalies and the turn timer rotating turns. One exclusive mutex serializes
// every mutation, so a classification for position P is always applied before
// the turn whose window included P can be archived.
type State struct {
	mu       sync.Mutex
	minTurn  time.Duration
	maxTurn  time.Duration
	now      func() time.Time
	rng      *rand.Rand
	current  *Turn
	history  []Turn
	finished bool
}

// NewState creates a game with no active turn.
func NewState(opts Options) *State {
	if opts.MinTurn <= 0 {
		opts.MinTurn = 10 * time.Second
	}
	if opts.MaxTurn <= opts.MinTurn {
		opts.MaxTurn = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &State{
		minTurn: opts.MinTurn,
		maxTurn: opts.MaxTurn,
		now:     opts.Now,
		rng:     opts.Rand,
	}
}

// StartTurn archives the active turn (if any) and starts a new one with a
// freshly randomized instruction and duration. It is a no-op once the game
// has finished.
func (s *State) StartTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startTurnLocked()
}

func (s *State) startTurnLocked() {
	if s.finished {
		return
	}
	if s.current != nil {
		s.history = append(s.history, *s.current)
	}

	instruction := FavorOnes
	if s.rng.Intn(2) == 1 {
		instruction = FavorZeros
	}
	duration := s.minTurn + time.Duration(s.rng.Float64()*float64(s.maxTurn-s.minTurn))

	s.current = &Turn{
		Instruction: instruction,
		Duration:    duration,
		StartTime:   s.now(),
	}
}

// rotateIfExpired archives an expired active turn and starts the next one.
// With no active turn it starts the first. Returns true if a turn started.
func (s *State) rotateIfExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return false
	}
	if s.current != nil && !s.current.Expired(s.now()) {
		return false
	}
	s.startTurnLocked()
	return true
}

// AddAnomaly buckets an anomaly into the active turn by significance tier
// and z-score direction. Ignored with no active turn, after the game
// finishes, or for anomalies without a tier.
func (s *State) AddAnomaly(a types.AnomalyResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.finished {
		return
	}

	up := a.ZScore > 0
	scores := &s.current.Scores
	switch a.Significance {
	case types.SigStrong:
		if up {
			scores.StrongUp++
		} else {
			scores.StrongDown++
		}
	case types.SigMedium:
		if up {
			scores.MediumUp++
		} else {
			scores.MediumDown++
		}
	case types.SigWeak:
		if up {
			scores.WeakUp++
		} else {
			scores.WeakDown++
		}
	}
}

// Finish archives the active turn and marks the game terminal. No further
// turn rotation or scoring happens afterward.
func (s *State) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	if s.current != nil {
		s.history = append(s.history, *s.current)
		s.current = nil
	}
	s.finished = true
}

// Finished reports whether Finish has been called.
func (s *State) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Overall sums bucket scores over the archived history only. The active
// turn, if any, is excluded until it is archived.
func (s *State) Overall() BucketScores {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total BucketScores
	for _, turn := range s.history {
		total.merge(turn.Scores)
	}
	return total
}

// Snapshot is a consistent copy of the game state for rendering.
type Snapshot struct {
	Current   *Turn // nil when no turn is active
	History   []Turn
	Finished  bool
	Remaining time.Duration
}

// Snapshot returns a copy of the state safe to read without the lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Finished: s.finished}
	if s.current != nil {
		turn := *s.current
		snap.Current = &turn
		snap.Remaining = turn.Remaining(s.now())
	}
	snap.History = append([]Turn(nil), s.history...)
	return snap
}
