package adapt

import "math"

// DefaultWindow is the exponential moving window length for the
// observability accept/swap rate (spec.md section 4.8: "default 1000").
const DefaultWindow = 1000

// Config configures an Adapter's target rate and priors.
type Config struct {
	NTemps     int
	TargetRate float64 // optimalAcceptRate or optimalSwapRate
	Prior      float64 // 0 uses DefaultPrior
	Window     int     // 0 uses DefaultWindow
}

// Adapter is the shared shape behind both the sigma and beta adapters: one
// 3-weight regression per temperature rung, current cached output value
// per chain, and a logging-only moving-average rate per chain.
type Adapter struct {
	cfg    Config
	models []*regression // indexed by temperature rung
	values map[int]float64
	rate   map[int]float64 // EMA of accepted/swap outcomes, for logging only
}

// New constructs an Adapter with nTemps independent regressions.
func New(cfg Config) *Adapter {
	if cfg.Prior <= 0 {
		cfg.Prior = DefaultPrior
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	models := make([]*regression, cfg.NTemps)
	for i := range models {
		models[i] = newRegression(cfg.Prior)
	}
	return &Adapter{
		cfg:    cfg,
		models: models,
		values: make(map[int]float64),
		rate:   make(map[int]float64),
	}
}

// Update folds one outcome observation into the temperature rung's
// regression and its logging-only moving-average rate. temp is the
// chain's rung index (0 = coldest); x1, x2 are the model's two predictors
// (e.g. log(sigma) and -log(beta) for the sigma adapter).
func (a *Adapter) Update(chainID, temp int, x1, x2 float64, outcome bool) {
	y := 0.0
	if outcome {
		y = 1.0
	}
	a.models[temp].update(x1, x2, y)

	alpha := 2.0 / (float64(a.cfg.Window) + 1)
	prev, ok := a.rate[chainID]
	if !ok {
		a.rate[chainID] = y
		return
	}
	a.rate[chainID] = prev + alpha*(y-prev)
}

// Predict inverts temp's regression to find the x1 value that would
// achieve the configured target rate given x2, clipped to [-10,10].
func (a *Adapter) Predict(temp int, x2 float64) float64 {
	return a.models[temp].predictX1(x2, a.cfg.TargetRate)
}

// ComputeSigma computes exp(Predict(temp, negLogBeta)) and caches it for
// chainID, per spec.md section 4.8.
func (a *Adapter) ComputeSigma(chainID, temp int, negLogBeta float64) float64 {
	v := math.Exp(a.Predict(temp, negLogBeta))
	a.values[chainID] = v
	return v
}

// Value returns the last cached output for chainID (0 if never computed).
func (a *Adapter) Value(chainID int) float64 { return a.values[chainID] }

// Rate returns the logging-only moving-average outcome rate for chainID.
func (a *Adapter) Rate(chainID int) float64 { return a.rate[chainID] }

// LogBetaFactor is the constant offset spec.md section 4.8 adds inside the
// exponential when walking the beta ladder; 0 is the neutral default and
// matches the configuration table's silence on a non-zero default.
const LogBetaFactor = 0.0

// ComputeBetaStack walks the temperature ladder from the coldest chain of
// a stack (rung 0) upward, setting temp_{i+1} = (1+exp(predict(i,
// log(temp_i)) + log_beta_factor)) * temp_i and caching beta = 1/temp for
// every rung into values. coldestBeta is the current beta of rung 0 (its
// inverse gives temp_0).
func (a *Adapter) ComputeBetaStack(stackBaseChainID int, coldestBeta float64, logBetaFactor float64) []float64 {
	betas := make([]float64, a.cfg.NTemps)
	temp := 1.0 / coldestBeta
	betas[0] = coldestBeta
	a.values[stackBaseChainID] = coldestBeta
	for i := 0; i < a.cfg.NTemps-1; i++ {
		next := (1 + math.Exp(a.Predict(i, math.Log(temp))+logBetaFactor)) * temp
		temp = next
		beta := 1.0 / temp
		betas[i+1] = beta
		a.values[stackBaseChainID+i+1] = beta
	}
	return betas
}
