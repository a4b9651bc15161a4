// Package sampler implements the single-threaded, cooperative MCMC driver
// loop described in spec.md section 4.9: it interleaves job submission
// with the parallel-tempering swap protocol, driving both the adapters
// and the chain array forward one job result at a time.
//
// Grounded on the teacher's internal/concurrency.EventLoop.Run structure
// (tight loop, blocking receive, dispatch, no explicit locking since the
// loop owns all the state it touches) generalized to block on
// Requester.Retrieve instead of a ring buffer, per SPEC_FULL.md section 4.
//
// Author: momentics <momentics@gmail.com>
package sampler

import (
	"fmt"
	"math"

	"github.com/momentics/stateline/internal/adapt"
	"github.com/momentics/stateline/internal/chainarray"
	"github.com/momentics/stateline/internal/requester"
)

// Requester is the minimal surface the sampler needs from
// internal/requester.Requester.
type Requester interface {
	Submit(batchID uint32, data []float64) bool
	Retrieve() requester.Result
}

// Chains is the minimal surface the sampler needs from
// internal/chainarray.ChainArray.
type Chains interface {
	NumChains() int
	NStacks() int
	NTemps() int
	IsColdest(id int) bool
	IsHottest(id int) bool
	StackOf(id int) int
	LastState(id int) (chainarray.State, bool)
	Length(id int) int
	Sigma(id int) float64
	Beta(id int) float64
	SetSigma(id int, sigma float64)
	SetBeta(id int, beta float64)
	Initialise(id int, sample []float64, energy, sigma, beta float64) error
	Append(id int, sample []float64, energy float64) (bool, error)
	Swap(i, j int) (chainarray.SwapType, error)
	FlushAll() error
}

// Proposer is the minimal surface the sampler needs from
// internal/proposal.Proposer.
type Proposer interface {
	Propose(chainID int, sample []float64, sigma float64) []float64
	Update(chainID int, stepVector []float64)
}

// Adapter is the minimal surface the sampler needs from internal/adapt.Adapter.
type Adapter interface {
	Update(chainID, temp int, x1, x2 float64, outcome bool)
	Predict(temp int, x2 float64) float64
	ComputeSigma(chainID, temp int, negLogBeta float64) float64
	Value(chainID int) float64
	ComputeBetaStack(stackBaseChainID int, coldestBeta float64, logBetaFactor float64) []float64
}

// Config configures the sampler's swap cadence, per spec.md section 4.9.
type Config struct {
	SwapInterval int
}

// Sampler drives one full MCMC run across a ChainArray: one outstanding
// job per chain at a time, per spec.md section 4.9.
type Sampler struct {
	cfg Config

	chains       Chains
	sigmaAdapter Adapter
	betaAdapter  Adapter
	proposer     Proposer
	req          Requester

	propStates  [][]float64
	locked      []bool
	outstanding int

	// onAppend, if set, is invoked after every successful Append with the
	// chain id and its newly recorded state; internal/server wires this to
	// feed internal/convergence's EPSR diagnostic from the coldest chains.
	onAppend func(chainID int, state chainarray.State)
}

// SetOnAppend registers a callback invoked after every Append. It is not
// safe to change concurrently with Step/Init/Flush.
func (s *Sampler) SetOnAppend(fn func(chainID int, state chainarray.State)) {
	s.onAppend = fn
}

// New constructs a Sampler over the given chain array, adapters, proposer
// and requester.
func New(cfg Config, chains Chains, sigmaAdapter, betaAdapter Adapter, proposer Proposer, req Requester) *Sampler {
	n := chains.NumChains()
	return &Sampler{
		cfg:          cfg,
		chains:       chains,
		sigmaAdapter: sigmaAdapter,
		betaAdapter:  betaAdapter,
		proposer:     proposer,
		req:          req,
		propStates:   make([][]float64, n),
		locked:       make([]bool, n),
	}
}

// Outstanding reports the number of chains with a job in flight; it is
// always >= 0 and <= NumChains(), per spec.md section 8 property 7.
func (s *Sampler) Outstanding() int { return s.outstanding }

// Init submits the initial sample for every chain, waits for every
// result, fixes up each stack's beta ladder from the coldest chain's
// beta=1 anchor, and submits the first proposal for every chain from
// hottest to coldest, per spec.md section 4.9's initialization algorithm.
func (s *Sampler) Init(initial []float64) error {
	n := s.chains.NumChains()
	for id := 0; id < n; id++ {
		s.req.Submit(uint32(id), append([]float64(nil), initial...))
		s.outstanding++
	}

	energies := make([]float64, n)
	for i := 0; i < n; i++ {
		res := s.req.Retrieve()
		id := int(res.BatchID)
		energies[id] = sumFloat64(res.Data)
		s.outstanding--
	}

	nTemps := s.chains.NTemps()
	for stack := 0; stack < s.chains.NStacks(); stack++ {
		base := stack * nTemps
		const coldestBeta = 1.0
		coldSigma := s.sigmaAdapter.ComputeSigma(base, 0, -math.Log(coldestBeta))
		betas := s.betaAdapter.ComputeBetaStack(base, coldestBeta, adapt.LogBetaFactor)
		for t := 0; t < nTemps; t++ {
			id := base + t
			beta := betas[t]
			sigma := coldSigma
			if t > 0 {
				sigma = s.sigmaAdapter.ComputeSigma(id, t, -math.Log(beta))
			}
			if err := s.chains.Initialise(id, initial, energies[id], sigma, beta); err != nil {
				return fmt.Errorf("sampler: init chain %d: %w", id, err)
			}
		}
	}

	for stack := 0; stack < s.chains.NStacks(); stack++ {
		base := stack * nTemps
		for t := nTemps - 1; t >= 0; t-- {
			s.propose(base + t)
		}
	}
	return nil
}

// Step blocks on one job result and advances exactly the chain it belongs
// to, per spec.md section 4.9's step() protocol.
func (s *Sampler) Step() error {
	res := s.req.Retrieve()
	id := int(res.BatchID)
	energy := sumFloat64(res.Data)
	s.outstanding--

	prev, ok := s.chains.LastState(id)
	if !ok {
		return fmt.Errorf("sampler: result for chain %d before Init", id)
	}
	accepted, err := s.chains.Append(id, s.propStates[id], energy)
	if err != nil {
		return fmt.Errorf("sampler: append chain %d: %w", id, err)
	}
	state, _ := s.chains.LastState(id)
	if s.onAppend != nil {
		s.onAppend(id, state)
	}

	temp := id % s.chains.NTemps()
	negLogBeta := -math.Log(state.Beta)
	s.sigmaAdapter.Update(id, temp, math.Log(state.Sigma), negLogBeta, accepted)
	s.chains.SetSigma(id, s.sigmaAdapter.ComputeSigma(id, temp, negLogBeta))

	if accepted {
		step := make([]float64, len(state.Sample))
		for i := range step {
			step[i] = state.Sample[i] - prev.Sample[i]
		}
		s.proposer.Update(id, step)
	}

	switch {
	case s.locked[id]:
		if err := s.resolveSwap(id); err != nil {
			return err
		}
	case s.chains.IsHottest(id) && s.chains.NTemps() > 1 &&
		s.cfg.SwapInterval > 0 && s.chains.Length(id)%s.cfg.SwapInterval == 0:
		s.locked[id-1] = true
	default:
		s.propose(id)
	}
	return nil
}

// resolveSwap attempts chains.Swap(id, id+1) for a chain that was waiting
// on its hotter neighbor, then propagates the unlock down the ladder, per
// spec.md section 4.9's swap-logic branch.
func (s *Sampler) resolveSwap(id int) error {
	s.locked[id] = false

	coldBeta := s.chains.Beta(id)
	hotBeta := s.chains.Beta(id + 1)

	outcome, err := s.chains.Swap(id, id+1)
	if err != nil {
		return fmt.Errorf("sampler: swap(%d,%d): %w", id, id+1, err)
	}
	temp := id % s.chains.NTemps()

	// Per original_source/src/infer/adaptive.cpp's betaUpdate: train on the
	// scale-invariant ratio target = (coldBeta/hotBeta - 1) / exp(logBetaFactor),
	// not the absolute -log(hotBeta), so the regression learns a transferable
	// rate relationship. ComputeBetaStack's inverse, (1+exp(predict+logBetaFactor))*temp,
	// only reproduces temp_{i+1} = temp_i * coldBeta/hotBeta when trained this
	// way, in the same direct (non-negated) log-space convention the sigma
	// adapter uses for its own x1.
	target := clipBetaTarget((coldBeta/hotBeta - 1) / math.Exp(adapt.LogBetaFactor))
	s.betaAdapter.Update(id, temp, math.Log(target), -math.Log(coldBeta), outcome == chainarray.Accept)

	if s.chains.IsColdest(id) {
		s.recomputeBetaLadder(s.chains.StackOf(id))
	}

	s.propose(id + 1)
	if !s.chains.IsColdest(id) {
		s.locked[id-1] = true
	} else {
		s.propose(id)
	}
	return nil
}

// betaTargetLogBound mirrors the [-10,10] log-space clip spec.md section
// 4.8 applies to predictions; clipBetaTarget applies it to the beta
// adapter's ratio target before training, since internal/adapt's update
// does no clipping of its own (unlike the original's generic update()).
const betaTargetLogBound = 10.0

func clipBetaTarget(target float64) float64 {
	lo, hi := math.Exp(-betaTargetLogBound), math.Exp(betaTargetLogBound)
	switch {
	case target < lo:
		return lo
	case target > hi:
		return hi
	default:
		return target
	}
}

// recomputeBetaLadder re-derives every rung's beta for the stack owning
// chain base from the coldest chain's current beta (always 1.0), per
// spec.md section 4.9: "If id is the coldest in its stack, recompute the
// stack's beta ladder."
func (s *Sampler) recomputeBetaLadder(stack int) {
	nTemps := s.chains.NTemps()
	base := stack * nTemps
	coldBeta := s.chains.Beta(base)
	betas := s.betaAdapter.ComputeBetaStack(base, coldBeta, adapt.LogBetaFactor)
	for t, beta := range betas {
		s.chains.SetBeta(base+t, beta)
	}
}

// propose draws and submits the next proposal for chain id, per spec.md
// section 4.9's propose(id).
func (s *Sampler) propose(id int) {
	last, ok := s.chains.LastState(id)
	if !ok {
		return
	}
	sample := s.proposer.Propose(id, last.Sample, s.chains.Sigma(id))
	s.req.Submit(uint32(id), sample)
	s.propStates[id] = sample
	s.outstanding++
}

// Flush drains every outstanding job, appending each result to its chain
// without proposing again, then forces every chain to flush its cache to
// disk, per spec.md section 4.9's flush().
func (s *Sampler) Flush() error {
	for s.outstanding > 0 {
		res := s.req.Retrieve()
		id := int(res.BatchID)
		energy := sumFloat64(res.Data)
		s.outstanding--
		if _, err := s.chains.Append(id, s.propStates[id], energy); err != nil {
			return fmt.Errorf("sampler: flush append chain %d: %w", id, err)
		}
	}
	return s.chains.FlushAll()
}

func sumFloat64(vs []float64) float64 {
	var total float64
	for _, v := range vs {
		total += v
	}
	return total
}
