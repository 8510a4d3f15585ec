package quant

import (
	"testing"

	qt "github.com/frankban/quicktest"
	errgo "gopkg.in/errgo.v1"
	"pgregory.net/rapid"
)

var lengthTests = []struct {
	testName string
	table    Table
	dur      Duration
	expect   int
	cause    error
}{{
	testName: "quarter",
	table:    Default,
	dur:      Duration{Log: 2},
	expect:   4,
}, {
	testName: "dotted-half",
	table:    Default,
	dur:      Duration{Log: 1, Dotted: true},
	expect:   12,
}, {
	testName: "whole",
	table:    Default,
	dur:      Duration{Log: 0},
	expect:   16,
}, {
	testName: "sixteenth",
	table:    Default,
	dur:      Duration{Log: 4},
	expect:   1,
}, {
	// Same numbers encore uses: 60 ticks per 16th.
	testName: "triplet-dotted-eighth-encore",
	table:    Table{PerWhole: 960},
	dur:      Duration{Log: 3, Dotted: true, Tuplet: Ratio{Actual: 3, Normal: 2}},
	expect:   120,
}, {
	testName: "dotted-sixteenth-fractional",
	table:    Default,
	dur:      Duration{Log: 4, Dotted: true},
	cause:    ErrFractional,
}, {
	testName: "triplet-eighth-fractional",
	table:    Default,
	dur:      Duration{Log: 3, Tuplet: Ratio{Actual: 3, Normal: 2}},
	cause:    ErrFractional,
}, {
	testName: "negative-log",
	table:    Default,
	dur:      Duration{Log: -1},
	cause:    ErrFractional,
}}

func TestLength(t *testing.T) {
	c := qt.New(t)
	for _, test := range lengthTests {
		c.Run(test.testName, func(c *qt.C) {
			got, err := test.table.Length(test.dur)
			if test.cause != nil {
				c.Assert(errgo.Cause(err), qt.Equals, test.cause)
				return
			}
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.Equals, test.expect)
		})
	}
}

func TestMustLengthPanics(t *testing.T) {
	c := qt.New(t)
	c.Assert(func() {
		Default.MustLength(Duration{Log: 5})
	}, qt.PanicMatches, ".*not a whole number of quants.*|.*1/32.*")
}

var breakdownTests = []struct {
	q      int
	expect []Duration
}{{
	q:      0,
	expect: nil,
}, {
	q:      16,
	expect: []Duration{{Log: 0}},
}, {
	q:      4,
	expect: []Duration{{Log: 2}},
}, {
	q:      12,
	expect: []Duration{{Log: 1, Dotted: true}},
}, {
	q:      7,
	expect: []Duration{{Log: 2, Dotted: true}, {Log: 4}},
}, {
	q:      10,
	expect: []Duration{{Log: 1}, {Log: 3}},
}, {
	q:      24,
	expect: []Duration{{Log: 0, Dotted: true}},
}, {
	q:      41,
	expect: []Duration{{Log: 0, Dotted: true}, {Log: 0}, {Log: 4}},
}}

func TestBreakdown(t *testing.T) {
	c := qt.New(t)
	for _, test := range breakdownTests {
		got, err := Default.Breakdown(test.q)
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.DeepEquals, test.expect, qt.Commentf("q=%d", test.q))
	}
}

func TestBreakdownNegative(t *testing.T) {
	c := qt.New(t)
	_, err := Default.Breakdown(-1)
	c.Assert(errgo.Cause(err), qt.Equals, ErrUnrepresentable)
}

func TestBreakdownUnrepresentable(t *testing.T) {
	c := qt.New(t)
	// 6 quants per whole: the smallest value is a half (3).
	_, err := Table{PerWhole: 6}.Breakdown(4)
	c.Assert(errgo.Cause(err), qt.Equals, ErrUnrepresentable)
}

func TestBreakdownRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		table := rapid.SampledFrom([]Table{Default, {PerWhole: 32}, {PerWhole: 960}}).Draw(t, "table")
		smallest := table.candidates()
		unit := table.MustLength(smallest[len(smallest)-1])
		q := unit * rapid.IntRange(1, 400).Draw(t, "units")
		ds, err := table.Breakdown(q)
		if err != nil {
			t.Fatalf("Breakdown(%d): %v", q, err)
		}
		sum, err := table.Sum(ds)
		if err != nil {
			t.Fatalf("Sum: %v", err)
		}
		if sum != q {
			t.Fatalf("sum(breakdown(%d)) = %d", q, sum)
		}
		for i := 1; i < len(ds); i++ {
			if table.MustLength(ds[i]) > table.MustLength(ds[i-1]) {
				t.Fatalf("breakdown(%d) not in descending order: %v", q, ds)
			}
		}
	})
}

func TestCapacity(t *testing.T) {
	c := qt.New(t)
	n, err := Default.Capacity(4, 4)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 16)

	n, err = Default.Capacity(6, 8)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 12)

	_, err = Default.Capacity(0, 4)
	c.Assert(errgo.Cause(err), qt.Equals, ErrBadTimeSignature)

	_, err = Default.Capacity(3, 32)
	c.Assert(errgo.Cause(err), qt.Equals, ErrFractional)
}
