package chainarray

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// defaultCacheSize bounds how many States a single chain keeps in memory;
// older entries are dropped once CSV spill (for temp-0 chains) or outright
// discarded (for hotter chains, which are never science output).
const defaultCacheSize = 256

// chain is one logical Markov chain: a bounded in-memory cache, and for
// temperature-0 chains only, an append-only CSV writer.
type chain struct {
	cache []State

	cold    bool
	csvPath string
	file    *os.File
	writer  *csv.Writer

	// pendingRow is the most recently pushed State's CSV row, held back
	// from the writer until the chain's next push commits it. A swap can
	// still mutate the just-appended state in place (replaceLast) before
	// then, so the row actually handed to the csv.Writer is always the
	// final, post-swap-resolution one — never a stale duplicate.
	pendingRow []string
}

func newChain(cold bool, csvPath string) *chain {
	return &chain{cold: cold, csvPath: csvPath}
}

// push appends s to the cache (trimming to defaultCacheSize) and, if this
// is a cold chain with persistence configured, commits the previous push's
// held-back row to CSV and holds s's own row back in turn.
func (c *chain) push(s State) error {
	c.cache = append(c.cache, s)
	if len(c.cache) > defaultCacheSize {
		c.cache = c.cache[len(c.cache)-defaultCacheSize:]
	}
	if c.cold && c.csvPath != "" {
		if err := c.ensureOpen(); err != nil {
			return err
		}
		if c.pendingRow != nil {
			c.writer.Write(c.pendingRow)
		}
		c.pendingRow = rowFor(s)
	}
	return nil
}

// replaceLast overwrites the most recent cached State (used by swap, which
// mutates the already-appended state's sample/energy/swap_type in place).
// Since the row for that State is still held in pendingRow rather than
// already handed to the csv.Writer, correcting it here means the file
// never sees the pre-swap row at all, only the final one.
func (c *chain) replaceLast(s State) error {
	if len(c.cache) == 0 {
		return fmt.Errorf("chainarray: replaceLast on empty chain")
	}
	c.cache[len(c.cache)-1] = s
	if c.cold && c.csvPath != "" {
		if err := c.ensureOpen(); err != nil {
			return err
		}
		c.pendingRow = rowFor(s)
	}
	return nil
}

func (c *chain) last() (State, bool) {
	if len(c.cache) == 0 {
		return State{}, false
	}
	return c.cache[len(c.cache)-1], true
}

func (c *chain) length() int { return len(c.cache) }

func (c *chain) ensureOpen() error {
	if c.writer != nil {
		return nil
	}
	f, err := os.OpenFile(c.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("chainarray: open %s: %w", c.csvPath, err)
	}
	c.file = f
	c.writer = csv.NewWriter(f)
	return nil
}

func (c *chain) flush() error {
	if c.writer == nil {
		return nil
	}
	c.writer.Flush()
	return c.writer.Error()
}

func (c *chain) close() error {
	if c.writer != nil && c.pendingRow != nil {
		c.writer.Write(c.pendingRow)
		c.pendingRow = nil
	}
	if err := c.flush(); err != nil {
		return err
	}
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}

// rowFor formats a State as a CSV row: sample_0..sample_{d-1}, energy,
// sigma, beta, accepted(0|1), swap_type(0|1|2), per spec.md section 6.
func rowFor(s State) []string {
	row := make([]string, 0, len(s.Sample)+5)
	for _, v := range s.Sample {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	row = append(row,
		strconv.FormatFloat(s.Energy, 'g', -1, 64),
		strconv.FormatFloat(s.Sigma, 'g', -1, 64),
		strconv.FormatFloat(s.Beta, 'g', -1, 64),
		boolDigit(s.Accepted),
		strconv.Itoa(int(s.SwapType)),
	)
	return row
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// recoverLast reads an existing CSV file back and reconstructs only the
// last row as a State, per spec.md section 4.7's recovery contract
// ("in-memory history for other chains starts empty").
func recoverLast(csvPath string, dim int) (State, bool, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("chainarray: recover open %s: %w", csvPath, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var last []string
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		last = rec
	}
	if last == nil {
		return State{}, false, nil
	}
	if len(last) < dim+5 {
		return State{}, false, fmt.Errorf("chainarray: malformed CSV row in %s", csvPath)
	}
	s := State{Sample: make([]float64, dim)}
	for i := 0; i < dim; i++ {
		s.Sample[i], _ = strconv.ParseFloat(last[i], 64)
	}
	s.Energy, _ = strconv.ParseFloat(last[dim], 64)
	s.Sigma, _ = strconv.ParseFloat(last[dim+1], 64)
	s.Beta, _ = strconv.ParseFloat(last[dim+2], 64)
	s.Accepted = last[dim+3] == "1"
	st, _ := strconv.Atoi(last[dim+4])
	s.SwapType = SwapType(st)
	return s, true, nil
}
