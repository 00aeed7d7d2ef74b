// Package simulate generates synthetic driver offers for open trip requests,
// standing in for a real driver fleet.
package simulate

import (
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/sched"
)

// Config bounds the generated offers. Variance is a fraction: a candidate
// bids offeredPrice * (1 + u) with u uniform in [-Variance, +Variance].
// Bids never drop below MinPrice.
type Config struct {
	Variance float64
	MinPrice float64
	DelayMin time.Duration
	DelayMax time.Duration
}

func DefaultConfig() Config {
	return Config{
		Variance: 0.10,
		MinPrice: 5.0,
		DelayMin: 1 * time.Second,
		DelayMax: 4 * time.Second,
	}
}

// Simulator schedules one delayed offer per candidate driver. The random
// source and scheduler are injected so tests can drive it deterministically.
type Simulator struct {
	cfg   Config
	sched sched.Scheduler
	log   *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func New(cfg Config, s sched.Scheduler, rng *rand.Rand, log *slog.Logger) *Simulator {
	if cfg.MinPrice <= 0 {
		cfg.MinPrice = DefaultConfig().MinPrice
	}
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	return &Simulator{cfg: cfg, sched: s, rng: rng, log: log}
}

// Run tracks the scheduled emissions for one trip request so they can be
// suppressed when the request dies.
type Run struct {
	mu        sync.Mutex
	timers    []sched.Timer
	cancelled bool
}

// Cancel stops every not-yet-fired emission. Late timers that already raced
// past Stop are still suppressed by the cancelled flag.
func (r *Run) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
}

func (r *Run) live() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.cancelled
}

// Start schedules one offer per candidate. Prices and delays are drawn
// up-front under the lock, so a given seed yields the same offer set
// regardless of timer interleaving. Delivery happens one offer at a time
// through deliver; the callee owns ordering and state guards.
func (s *Simulator) Start(requestID string, offeredPrice float64, candidates []models.Driver, deliver func(models.Offer)) *Run {
	run := &Run{}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range candidates {
		offer := models.Offer{DriverID: d.ID, Price: s.bid(offeredPrice)}
		delay := s.delay()
		run.mu.Lock()
		run.timers = append(run.timers, s.sched.After(delay, func() {
			if !run.live() {
				return
			}
			deliver(offer)
		}))
		run.mu.Unlock()
		if s.log != nil {
			s.log.Debug("offer scheduled",
				"request_id", requestID, "driver_id", d.ID,
				"price", offer.Price, "delay_ms", delay.Milliseconds())
		}
	}
	return run
}

func (s *Simulator) bid(offeredPrice float64) float64 {
	u := (s.rng.Float64()*2 - 1) * s.cfg.Variance
	p := offeredPrice * (1 + u)
	if p < s.cfg.MinPrice {
		p = s.cfg.MinPrice
	}
	return math.Round(p*100) / 100
}

func (s *Simulator) delay() time.Duration {
	span := s.cfg.DelayMax - s.cfg.DelayMin
	if span <= 0 {
		return s.cfg.DelayMin
	}
	return s.cfg.DelayMin + time.Duration(s.rng.Int63n(int64(span)))
}
