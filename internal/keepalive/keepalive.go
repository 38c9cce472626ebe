// Package keepalive implements the weighted-sampling periodic ping
// scheduler (spec.md C10): every tick it samples a bounded number of
// tracked machines, favoring those with the most recent successful ping, and escalates
// repeated failures to a caller-supplied handler. Grounded on the teacher's
// ticker-driven background loop
// (atvirokodosprendimai/wgmesh/pkg/daemon/cache.go StartCacheSaver), with
// the sampling itself adapted from the exponential-decay weighting spec.md
// §4.7 specifies.
package keepalive

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Defaults per spec.md §4.7 / §6.
const (
	DefaultInterval            = 15 * time.Second
	DefaultMaxMachinesPerCycle = 20
	DefaultMinWeight           = 0.05
	DefaultHalfLife            = 60 * time.Second
	DefaultMissedThreshold     = 3
)

// PingSender sends a keepalive probe to a machine at endpoint and reports
// whether it succeeded.
type PingSender func(peer, machine, endpoint string) bool

// EndpointProvider resolves a machine's current best endpoint.
type EndpointProvider func(peer, machine string) (string, bool)

// FailureHandler is invoked once a machine's missed-ping count reaches the
// configured threshold; the machine is then dropped from tracking.
type FailureHandler func(peer, machine, endpoint string)

type trackedMachine struct {
	peer               string
	machine            string
	lastSuccessfulPing time.Time
	missedPings        int
}

// Scheduler periodically samples tracked machines and pings them.
type Scheduler struct {
	interval            time.Duration
	maxMachinesPerCycle int
	minWeight           float64
	halfLife            time.Duration
	missedThreshold     int

	pingSender       PingSender
	endpointProvider EndpointProvider
	failureHandler   FailureHandler

	mu       sync.Mutex
	machines map[string]*trackedMachine // "peer|machine" -> record

	stopCh chan struct{}
	doneCh chan struct{}
}

// Config configures a Scheduler; zero-valued fields take spec defaults.
type Config struct {
	Interval            time.Duration
	MaxMachinesPerCycle int
	MinWeight           float64
	HalfLife            time.Duration
	MissedThreshold     int
}

// New constructs a Scheduler. The three callbacks are required.
func New(cfg Config, pingSender PingSender, endpointProvider EndpointProvider, failureHandler FailureHandler) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxMachinesPerCycle <= 0 {
		cfg.MaxMachinesPerCycle = DefaultMaxMachinesPerCycle
	}
	if cfg.MinWeight <= 0 {
		cfg.MinWeight = DefaultMinWeight
	}
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = DefaultHalfLife
	}
	if cfg.MissedThreshold <= 0 {
		cfg.MissedThreshold = DefaultMissedThreshold
	}
	return &Scheduler{
		interval:            cfg.Interval,
		maxMachinesPerCycle: cfg.MaxMachinesPerCycle,
		minWeight:           cfg.MinWeight,
		halfLife:            cfg.HalfLife,
		missedThreshold:     cfg.MissedThreshold,
		pingSender:          pingSender,
		endpointProvider:    endpointProvider,
		failureHandler:      failureHandler,
		machines:            make(map[string]*trackedMachine),
	}
}

// Track begins monitoring (peer, machine); a no-op if already tracked.
func (s *Scheduler) Track(peer, machine string) {
	key := peer + "|" + machine
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.machines[key]; ok {
		return
	}
	s.machines[key] = &trackedMachine{peer: peer, machine: machine, lastSuccessfulPing: time.Now()}
}

// RecordSuccessfulCommunication resets missed_pings for (peer, machine)
// because a message arrived independently of any scheduled probe.
func (s *Scheduler) RecordSuccessfulCommunication(peer, machine string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tm, ok := s.machines[peer+"|"+machine]; ok {
		tm.missedPings = 0
		tm.lastSuccessfulPing = time.Now()
	}
}

// Start begins the periodic ticking loop in a background goroutine. Stop
// cancels it.
func (s *Scheduler) Start(ctx context.Context) {
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run(ctx)
}

// Stop halts the scheduler and waits for the loop to exit.
func (s *Scheduler) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick samples up to maxMachinesPerCycle tracked machines (weighted by
// recency) and pings each.
func (s *Scheduler) tick() {
	sample := s.sample()
	for _, tm := range sample {
		endpoint, ok := s.endpointProvider(tm.peer, tm.machine)
		if !ok {
			continue
		}
		if s.pingSender(tm.peer, tm.machine, endpoint) {
			s.mu.Lock()
			tm.missedPings = 0
			tm.lastSuccessfulPing = time.Now()
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		tm.missedPings++
		failed := tm.missedPings >= s.missedThreshold
		if failed {
			delete(s.machines, tm.peer+"|"+tm.machine)
		}
		s.mu.Unlock()

		if failed {
			s.failureHandler(tm.peer, tm.machine, endpoint)
		}
	}
}

// sample performs weighted sampling without replacement, up to
// maxMachinesPerCycle, weight w = max(minWeight, 0.5^(age/halfLife)).
func (s *Scheduler) sample() []*trackedMachine {
	s.mu.Lock()
	now := time.Now()
	candidates := make([]*trackedMachine, 0, len(s.machines))
	weights := make([]float64, 0, len(s.machines))
	for _, tm := range s.machines {
		age := now.Sub(tm.lastSuccessfulPing)
		w := math.Pow(0.5, age.Seconds()/s.halfLife.Seconds())
		if w < s.minWeight {
			w = s.minWeight
		}
		candidates = append(candidates, tm)
		weights = append(weights, w)
	}
	s.mu.Unlock()

	n := s.maxMachinesPerCycle
	if n > len(candidates) {
		n = len(candidates)
	}

	chosen := make([]*trackedMachine, 0, n)
	used := make([]bool, len(candidates))
	for i := 0; i < n; i++ {
		total := 0.0
		for j, w := range weights {
			if !used[j] {
				total += w
			}
		}
		if total <= 0 {
			break
		}
		pick := rand.Float64() * total
		cum := 0.0
		for j, w := range weights {
			if used[j] {
				continue
			}
			cum += w
			if pick <= cum {
				used[j] = true
				chosen = append(chosen, candidates[j])
				break
			}
		}
	}
	return chosen
}
