package models

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Dipole is a simulated (or experimental reference) dipole waveform:
// a current time series sampled on a monotonically increasing time base.
type Dipole struct {
	Times []float64 `json:"times"`
	Data  []float64 `json:"data"`
}

// Len returns the number of samples.
func (d *Dipole) Len() int {
	return len(d.Times)
}

// Window returns the indices [lo, hi) of samples with tstart <= t <= tstop.
func (d *Dipole) Window(tstart, tstop float64) (lo, hi int) {
	lo = len(d.Times)
	for i, t := range d.Times {
		if t >= tstart {
			lo = i
			break
		}
	}
	hi = lo
	for hi < len(d.Times) && d.Times[hi] <= tstop {
		hi++
	}
	return lo, hi
}

// Truncate returns a copy of the dipole cut off at time at. A non-positive
// cutoff returns the full waveform.
func (d *Dipole) Truncate(at float64) *Dipole {
	if at <= 0 {
		return d.Clone()
	}
	_, hi := d.Window(d.Times[0], at)
	out := &Dipole{
		Times: make([]float64, hi),
		Data:  make([]float64, hi),
	}
	copy(out.Times, d.Times[:hi])
	copy(out.Data, d.Data[:hi])
	return out
}

// Clone returns an independent copy of the waveform.
func (d *Dipole) Clone() *Dipole {
	out := &Dipole{
		Times: make([]float64, len(d.Times)),
		Data:  make([]float64, len(d.Data)),
	}
	copy(out.Times, d.Times)
	copy(out.Data, d.Data)
	return out
}

// Validate checks that the waveform is well formed: equal-length series,
// at least two samples, strictly increasing time base.
func (d *Dipole) Validate() error {
	if len(d.Times) != len(d.Data) {
		return fmt.Errorf("dipole has %d times but %d samples", len(d.Times), len(d.Data))
	}
	if len(d.Times) < 2 {
		return fmt.Errorf("dipole needs at least 2 samples, got %d", len(d.Times))
	}
	for i := 1; i < len(d.Times); i++ {
		if d.Times[i] <= d.Times[i-1] {
			return fmt.Errorf("dipole time base not strictly increasing at sample %d", i)
		}
	}
	return nil
}

// LoadDipole reads a reference waveform from a whitespace- or
// comma-separated two-column text file (time, value). Lines starting with
// '#' are skipped.
func LoadDipole(path string) (*Dipole, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dipole file %s: %w", path, err)
	}
	defer f.Close()

	d := &Dipole{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		})
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: expected 2 columns, got %d", path, lineNo, len(fields))
		}
		t, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad time value %q: %w", path, lineNo, fields[0], err)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad data value %q: %w", path, lineNo, fields[1], err)
		}
		d.Times = append(d.Times, t)
		d.Data = append(d.Data, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dipole file %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dipole file %s: %w", path, err)
	}
	return d, nil
}

// AverageDipoles returns the sample-wise mean of per-trial dipoles sharing
// one time base.
func AverageDipoles(trials []*Dipole) (*Dipole, error) {
	if len(trials) == 0 {
		return nil, fmt.Errorf("no trials to average")
	}
	n := trials[0].Len()
	for i, tr := range trials {
		if tr.Len() != n {
			return nil, fmt.Errorf("trial %d has %d samples, expected %d", i, tr.Len(), n)
		}
	}
	out := &Dipole{
		Times: make([]float64, n),
		Data:  make([]float64, n),
	}
	copy(out.Times, trials[0].Times)
	for _, tr := range trials {
		for i, v := range tr.Data {
			out.Data[i] += v
		}
	}
	for i := range out.Data {
		out.Data[i] /= float64(len(trials))
	}
	return out, nil
}
