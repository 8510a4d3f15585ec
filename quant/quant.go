// Package quant converts symbolic note values to integer time units
// (quants) and back.
package quant

import (
	"fmt"

	errgo "gopkg.in/errgo.v1"
)

var (
	ErrFractional       = errgo.New("duration is not a whole number of quants")
	ErrUnrepresentable  = errgo.New("quant count has no symbolic breakdown")
	ErrBadTimeSignature = errgo.New("bad time signature")
)

// Ratio is a tuplet: Actual notes in the time of Normal.
// The zero value means no tuplet.
type Ratio struct {
	Actual int `json:"actual,omitempty"`
	Normal int `json:"normal,omitempty"`
}

func (r Ratio) IsZero() bool {
	return r.Actual == 0 && r.Normal == 0
}

// Duration is a symbolic note value.
type Duration struct {
	// 0 = whole, 1 = half, 2 = quarter, etc.
	Log    int   `json:"log"`
	Dotted bool  `json:"dotted,omitempty"`
	Tuplet Ratio `json:"tuplet,omitempty"`
}

func (d Duration) String() string {
	s := fmt.Sprintf("1/%d", 1<<uint(d.Log))
	if d.Dotted {
		s += "."
	}
	if !d.Tuplet.IsZero() {
		s += fmt.Sprintf("*%d/%d", d.Tuplet.Normal, d.Tuplet.Actual)
	}
	return s
}

// Table fixes the quant resolution.
type Table struct {
	// PerWhole is the number of quants in a whole note.
	PerWhole int
}

// Default has a quarter note of 4 quants.
var Default = Table{PerWhole: 16}

// Length returns the number of quants d occupies.
func (t Table) Length(d Duration) (int, error) {
	if d.Log < 0 || d.Log > 30 {
		return 0, errgo.WithCausef(nil, ErrFractional, "note value %v out of range", d)
	}
	num := t.PerWhole
	den := 1 << uint(d.Log)
	if d.Dotted {
		num *= 3
		den *= 2
	}
	if !d.Tuplet.IsZero() {
		if d.Tuplet.Actual <= 0 || d.Tuplet.Normal <= 0 {
			return 0, errgo.WithCausef(nil, ErrFractional, "bad tuplet %d:%d", d.Tuplet.Actual, d.Tuplet.Normal)
		}
		num *= d.Tuplet.Normal
		den *= d.Tuplet.Actual
	}
	if num%den != 0 {
		return 0, errgo.WithCausef(nil, ErrFractional, "%v at %d quants per whole", d, t.PerWhole)
	}
	return num / den, nil
}

// MustLength is like Length but panics on a fractional result.
func (t Table) MustLength(d Duration) int {
	n, err := t.Length(d)
	if err != nil {
		panic(err)
	}
	return n
}

// candidates returns the representable plain and dotted values,
// longest first.
func (t Table) candidates() []Duration {
	var ds []Duration
	for log := 0; log < 31; log++ {
		den := 1 << uint(log)
		if den > t.PerWhole || t.PerWhole%den != 0 {
			break
		}
		plain := t.PerWhole / den
		if plain%2 == 0 {
			ds = append(ds, Duration{Log: log, Dotted: true})
		}
		ds = append(ds, Duration{Log: log})
	}
	return ds
}

// Breakdown decomposes q quants greedily into symbolic values,
// longest first. Zero yields an empty result.
func (t Table) Breakdown(q int) ([]Duration, error) {
	if q < 0 {
		return nil, errgo.WithCausef(nil, ErrUnrepresentable, "negative quant count %d", q)
	}
	cands := t.candidates()
	var result []Duration
	rem := q
	for rem > 0 {
		found := false
		for _, c := range cands {
			if n := t.MustLength(c); n <= rem {
				result = append(result, c)
				rem -= n
				found = true
				break
			}
		}
		if !found {
			return nil, errgo.WithCausef(nil, ErrUnrepresentable, "%d quants left over from %d", rem, q)
		}
	}
	return result, nil
}

// Sum returns the total length of ds.
func (t Table) Sum(ds []Duration) (int, error) {
	total := 0
	for _, d := range ds {
		n, err := t.Length(d)
		if err != nil {
			return 0, errgo.Mask(err, errgo.Any)
		}
		total += n
	}
	return total, nil
}

// Capacity returns the quant length of a measure of num/den.
func (t Table) Capacity(num, den int) (int, error) {
	if num <= 0 || den <= 0 {
		return 0, errgo.WithCausef(nil, ErrBadTimeSignature, "%d/%d", num, den)
	}
	if (num*t.PerWhole)%den != 0 {
		return 0, errgo.WithCausef(nil, ErrFractional, "measure %d/%d at %d quants per whole", num, den, t.PerWhole)
	}
	return num * t.PerWhole / den, nil
}
