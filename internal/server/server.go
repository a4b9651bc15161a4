// Package server implements the server wrapper described in spec.md
// section 2: it wires a Delegator and a Sampler onto their own goroutines
// behind one shared shutdown flag, and surfaces their live state as
// Prometheus metrics.
//
// Grounded on the teacher's server.Server (options struct, Start/Stop
// lifecycle, an atomic running flag) generalized from a WebSocket
// accept-loop wrapper to a delegator-poll-loop + sampler-loop wrapper, per
// SPEC_FULL.md section 2.1 and section 5 (the shared running flag is this
// package's atomic.Bool).
//
// Author: momentics <momentics@gmail.com>
package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/stateline/internal/applog"
	"github.com/momentics/stateline/internal/chainarray"
	"github.com/momentics/stateline/internal/convergence"
	"github.com/momentics/stateline/internal/endpoint"
	"github.com/momentics/stateline/internal/sampler"
)

// Delegator is the minimal surface the server wrapper needs from
// internal/delegator.Delegator for metrics reporting.
type Delegator interface {
	QueueLen() int
	WorkerCount() int
	PendingBatchCount() int
}

// Metrics holds the Prometheus collectors the server wrapper reports, per
// SPEC_FULL.md section 2.1. Queue depth, worker count, pending batches and
// per-dimension RHat are set on every logging tick; SamplesEmitted is
// incremented by Run after every sampler step.
type Metrics struct {
	QueueDepth    prometheus.Gauge
	WorkerCount   prometheus.Gauge
	PendingBatches prometheus.Gauge
	SamplesEmitted prometheus.Counter
	RHat          *prometheus.GaugeVec
}

// NewMetrics constructs and registers a Metrics set against reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stateline", Subsystem: "delegator", Name: "queue_depth",
			Help: "Number of jobs waiting for a worker.",
		}),
		WorkerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stateline", Subsystem: "delegator", Name: "worker_count",
			Help: "Number of currently connected workers.",
		}),
		PendingBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stateline", Subsystem: "delegator", Name: "pending_batches",
			Help: "Number of in-flight batches awaiting completion.",
		}),
		SamplesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stateline", Subsystem: "sampler", Name: "samples_emitted_total",
			Help: "Total number of chain samples appended across all chains.",
		}),
		RHat: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stateline", Subsystem: "convergence", Name: "rhat",
			Help: "Estimated potential scale reduction per dimension.",
		}, []string{"dim"}),
	}
	reg.MustRegister(m.QueueDepth, m.WorkerCount, m.PendingBatches, m.SamplesEmitted, m.RHat)
	return m
}

// Config configures the server wrapper's run loop.
type Config struct {
	NSamplesTotal  int
	LoggingRate    time.Duration
	InitialSample  []float64
}

// Server owns the delegator's poll loop and the sampler's run loop, each
// on its own goroutine, coordinated by a single shared atomic running
// flag, per spec.md section 5.
type Server struct {
	cfg Config

	delegatorRouter *endpoint.Router
	delegator       Delegator
	sampler         *sampler.Sampler
	chains          *chainarray.ChainArray
	convergence     *convergence.Diagnostic

	metrics *Metrics

	running atomic.Bool
	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
}

// New constructs a Server wiring together the delegator's router, the
// sampler, the chain array it drains convergence samples from, and a
// Metrics set. metrics may be nil to disable Prometheus reporting.
func New(cfg Config, delegatorRouter *endpoint.Router, delegator Delegator, smp *sampler.Sampler, chains *chainarray.ChainArray, conv *convergence.Diagnostic, metrics *Metrics) *Server {
	return &Server{
		cfg:             cfg,
		delegatorRouter: delegatorRouter,
		delegator:       delegator,
		sampler:         smp,
		chains:          chains,
		convergence:     conv,
		metrics:         metrics,
	}
}

// Run starts the delegator poll loop and drives the sampler to
// NSamplesTotal samples (or until Stop is called), then flushes and
// closes the chain array. It blocks until the sampler loop exits.
func (s *Server) Run() error {
	s.running.Store(true)

	if s.convergence != nil {
		nTemps := s.chains.NTemps()
		s.sampler.SetOnAppend(func(chainID int, state chainarray.State) {
			if chainID%nTemps == 0 {
				s.convergence.Update(chainID/nTemps, state.Sample)
			}
		})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.delegatorRouter.Poll(&s.running); err != nil {
			s.fail(fmt.Errorf("server: delegator poll: %w", err))
		}
	}()

	if s.metrics != nil && s.cfg.LoggingRate > 0 {
		s.wg.Add(1)
		go s.reportLoop()
	}

	if err := s.sampler.Init(s.cfg.InitialSample); err != nil {
		s.Stop()
		s.wg.Wait()
		return fmt.Errorf("server: sampler init: %w", err)
	}

	target := s.cfg.NSamplesTotal
	count := 0
	for s.running.Load() && (target <= 0 || count < target) {
		if err := s.sampler.Step(); err != nil {
			applog.With("server").Error("sampler step failed", "err", err)
			s.fail(fmt.Errorf("server: sampler step: %w", err))
			break
		}
		count++
		if s.metrics != nil {
			s.metrics.SamplesEmitted.Inc()
		}
	}

	if err := s.sampler.Flush(); err != nil {
		applog.With("server").Error("sampler flush failed", "err", err)
	}
	if s.chains != nil {
		if err := s.chains.Close(); err != nil {
			applog.With("server").Error("chain array close failed", "err", err)
		}
	}
	s.Stop()
	s.wg.Wait()
	return s.err
}

// Stop clears the shared running flag; in-flight poll iterations and the
// current sampler step complete before the loops actually exit, per
// spec.md section 5's cooperative cancellation contract.
func (s *Server) Stop() { s.running.Store(false) }

func (s *Server) fail(err error) {
	s.errOnce.Do(func() { s.err = err })
	s.Stop()
}

func (s *Server) reportLoop() {
	defer s.wg.Done()
	t := time.NewTicker(s.cfg.LoggingRate)
	defer t.Stop()
	for range t.C {
		if !s.running.Load() {
			return
		}
		s.metrics.QueueDepth.Set(float64(s.delegator.QueueLen()))
		s.metrics.WorkerCount.Set(float64(s.delegator.WorkerCount()))
		s.metrics.PendingBatches.Set(float64(s.delegator.PendingBatchCount()))
		if s.convergence != nil {
			for dim, r := range s.convergence.RHat() {
				s.metrics.RHat.WithLabelValues(fmt.Sprintf("%d", dim)).Set(r)
			}
		}
	}
}
