package chainarray

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"time"
)

// DefaultFlushInterval is how often caches are flushed to disk, per
// spec.md section 4.7 ("periodically... default every 10 s of wall time").
const DefaultFlushInterval = 10 * time.Second

// Config configures a ChainArray's shape and persistence.
type Config struct {
	NStacks        int
	NTemps         int
	OutputPath     string // directory for <stack_index>.csv files; empty disables persistence
	Recover        bool
	Dimensionality int // sample width, required for Recover to parse CSV rows correctly
	FlushInterval  time.Duration

	// RandFloat64 draws a uniform [0,1) value for Metropolis/swap
	// acceptance; nil uses a time-seeded math/rand source. Tests inject a
	// deterministic source here to make accept/reject outcomes exact.
	RandFloat64 func() float64
}

// ChainArray holds nStacks*nTemps logical chains, per spec.md section 3.
type ChainArray struct {
	cfg    Config
	chains []*chain

	sigma []float64
	beta  []float64

	lastFlush   time.Time
	randFloat64 func() float64
}

// New constructs a ChainArray per cfg, opening (and, if cfg.Recover is
// set, reading back) the cold-chain CSV files.
func New(cfg Config) (*ChainArray, error) {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	n := cfg.NStacks * cfg.NTemps
	randFn := cfg.RandFloat64
	if randFn == nil {
		src := rand.New(rand.NewSource(time.Now().UnixNano()))
		randFn = src.Float64
	}
	ca := &ChainArray{
		cfg:         cfg,
		chains:      make([]*chain, n),
		sigma:       make([]float64, n),
		beta:        make([]float64, n),
		lastFlush:   time.Now(),
		randFloat64: randFn,
	}
	for stack := 0; stack < cfg.NStacks; stack++ {
		for temp := 0; temp < cfg.NTemps; temp++ {
			id := stack*cfg.NTemps + temp
			cold := temp == 0
			path := ""
			if cold && cfg.OutputPath != "" {
				path = filepath.Join(cfg.OutputPath, fmt.Sprintf("%d.csv", stack))
			}
			ca.chains[id] = newChain(cold, path)
		}
	}
	if cfg.Recover {
		dim := cfg.Dimensionality
		for stack := 0; stack < cfg.NStacks; stack++ {
			id := stack * cfg.NTemps
			c := ca.chains[id]
			if c.csvPath == "" {
				continue
			}
			if dim <= 0 {
				dim = guessDimFromCSV(c.csvPath)
			}
			s, ok, err := recoverLast(c.csvPath, dim)
			if err != nil {
				return nil, err
			}
			if ok {
				c.cache = append(c.cache, s)
				ca.sigma[id] = s.Sigma
				ca.beta[id] = s.Beta
			}
		}
	}
	return ca, nil
}

// guessDimFromCSV is the fallback used when Config.Dimensionality is unset.
// Without a header row there is no way to know d from the file alone, so
// callers that enable Recover should always set Dimensionality explicitly.
func guessDimFromCSV(path string) int {
	return 0
}

func (ca *ChainArray) chainAt(id int) (*chain, error) {
	if id < 0 || id >= len(ca.chains) {
		return nil, fmt.Errorf("chainarray: chain id %d out of range", id)
	}
	return ca.chains[id], nil
}

// LastState returns the most recently recorded State for chain id.
func (ca *ChainArray) LastState(id int) (State, bool) {
	c, err := ca.chainAt(id)
	if err != nil {
		return State{}, false
	}
	return c.last()
}

// Length reports how many States are currently cached for chain id.
func (ca *ChainArray) Length(id int) int {
	c, err := ca.chainAt(id)
	if err != nil {
		return 0
	}
	return c.length()
}

// SetSigma updates the current proposal scale used for the next Append on
// chain id.
func (ca *ChainArray) SetSigma(id int, sigma float64) { ca.sigma[id] = sigma }

// SetBeta updates the current inverse temperature used for the next
// Append on chain id.
func (ca *ChainArray) SetBeta(id int, beta float64) { ca.beta[id] = beta }

func (ca *ChainArray) Sigma(id int) float64 { return ca.sigma[id] }
func (ca *ChainArray) Beta(id int) float64  { return ca.beta[id] }

// Initialise force-accepts the given sample/energy as chain id's first
// State, fixing its sigma and beta.
func (ca *ChainArray) Initialise(id int, sample []float64, energy, sigma, beta float64) error {
	c, err := ca.chainAt(id)
	if err != nil {
		return err
	}
	ca.sigma[id] = sigma
	ca.beta[id] = beta
	return c.push(State{
		Sample:   append([]float64(nil), sample...),
		Energy:   energy,
		Sigma:    sigma,
		Beta:     beta,
		Accepted: true,
		SwapType: NoAttempt,
	})
}

// Append forms a new State for chain id from the proposed sample/energy,
// applies Metropolis acceptance against the chain's last State, and
// returns whether it was accepted. On rejection, a copy of the previous
// State is pushed with Accepted=false, so the chain grows by exactly one
// element per call regardless of outcome.
func (ca *ChainArray) Append(id int, sample []float64, energy float64) (bool, error) {
	c, err := ca.chainAt(id)
	if err != nil {
		return false, err
	}
	prev, ok := c.last()
	if !ok {
		return false, fmt.Errorf("chainarray: append to chain %d before Initialise", id)
	}

	beta := ca.beta[id]
	dE := energy - prev.Energy
	acceptProb := math.Exp(-beta * dE)
	accepted := acceptProb >= 1 || ca.randFloat64() < acceptProb

	var next State
	if accepted {
		next = State{
			Sample:   append([]float64(nil), sample...),
			Energy:   energy,
			Sigma:    ca.sigma[id],
			Beta:     beta,
			Accepted: true,
			SwapType: NoAttempt,
		}
	} else {
		next = prev.clone()
		next.Sigma = ca.sigma[id]
		next.Beta = beta
		next.Accepted = false
		next.SwapType = NoAttempt
	}
	if err := c.push(next); err != nil {
		return accepted, err
	}
	if time.Since(ca.lastFlush) >= ca.cfg.FlushInterval {
		if err := ca.FlushAll(); err != nil {
			return accepted, err
		}
	}
	return accepted, nil
}

// Swap attempts to swap the most recent States of two adjacent-temperature
// chains in the same stack, per spec.md section 4.7. i must be the colder
// (lower id) chain.
func (ca *ChainArray) Swap(i, j int) (SwapType, error) {
	if j != i+1 {
		return NoAttempt, fmt.Errorf("chainarray: swap requires adjacent ids, got %d,%d", i, j)
	}
	if i/ca.cfg.NTemps != j/ca.cfg.NTemps {
		return NoAttempt, fmt.Errorf("chainarray: swap requires same stack, got %d,%d", i, j)
	}
	cold, err := ca.chainAt(i)
	if err != nil {
		return NoAttempt, err
	}
	hot, err := ca.chainAt(j)
	if err != nil {
		return NoAttempt, err
	}
	coldState, ok := cold.last()
	if !ok {
		return NoAttempt, fmt.Errorf("chainarray: swap on uninitialised chain %d", i)
	}
	hotState, ok := hot.last()
	if !ok {
		return NoAttempt, fmt.Errorf("chainarray: swap on uninitialised chain %d", j)
	}

	p := math.Exp((hotState.Energy - coldState.Energy) * (hotState.Beta - coldState.Beta))
	accept := p >= 1 || ca.randFloat64() < p

	outcome := Reject
	if accept {
		outcome = Accept
		coldState.Sample, hotState.Sample = hotState.Sample, coldState.Sample
		coldState.Energy, hotState.Energy = hotState.Energy, coldState.Energy
		coldState.Accepted, hotState.Accepted = hotState.Accepted, coldState.Accepted
	}
	coldState.SwapType = outcome
	hotState.SwapType = NoAttempt

	if err := cold.replaceLast(coldState); err != nil {
		return outcome, err
	}
	if err := hot.replaceLast(hotState); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// FlushAll forces every cold chain's cache to disk.
func (ca *ChainArray) FlushAll() error {
	ca.lastFlush = time.Now()
	for _, c := range ca.chains {
		if err := c.flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes every open CSV file.
func (ca *ChainArray) Close() error {
	for _, c := range ca.chains {
		if err := c.close(); err != nil {
			return err
		}
	}
	return nil
}

// NumChains reports the total chain count (nStacks*nTemps).
func (ca *ChainArray) NumChains() int { return len(ca.chains) }

// NTemps reports the configured temperature-ladder length per stack.
func (ca *ChainArray) NTemps() int { return ca.cfg.NTemps }

// NStacks reports the configured number of stacks.
func (ca *ChainArray) NStacks() int { return ca.cfg.NStacks }

// IsColdest reports whether id is the temperature-0 chain of its stack.
func (ca *ChainArray) IsColdest(id int) bool { return id%ca.cfg.NTemps == 0 }

// IsHottest reports whether id is the highest-temperature chain of its stack.
func (ca *ChainArray) IsHottest(id int) bool { return id%ca.cfg.NTemps == ca.cfg.NTemps-1 }

// StackOf returns the stack index owning chain id.
func (ca *ChainArray) StackOf(id int) int { return id / ca.cfg.NTemps }
