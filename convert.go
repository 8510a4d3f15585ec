package main

import (
	"fmt"

	errgo "gopkg.in/errgo.v1"

	"go-scoredit/lily"
	"go-scoredit/quant"
	"go-scoredit/score"
)

const lilyVersion = "2.24.0"

// renderLily returns the LilyPond source of doc: one staff per track,
// played in parallel.
func renderLily(doc *score.Document) (string, error) {
	table := doc.Table()
	par := &lily.Par{}
	for i, t := range doc.Tracks {
		staff, err := convertTrack(table, t)
		if err != nil {
			return "", errgo.NoteMask(err, fmt.Sprintf("track %d", i), errgo.Any)
		}
		par.Elems = append(par.Elems, staff)
	}
	return "\\version \"" + lilyVersion + "\"\n" + par.String() + "\n", nil
}

func convertTrack(table quant.Table, t *score.Track) (*lily.Staff, error) {
	staff := &lily.Staff{Name: t.Name}
	var prev score.TimeSignature
	for i, c := range t.Containers {
		if i == 0 || c.TimeSig != prev {
			staff.Elems = append(staff.Elems, &lily.TimeSignature{
				Num: c.TimeSig.Num,
				Den: c.TimeSig.Den,
			})
		}
		prev = c.TimeSig

		elems, err := convertMeasure(table, c)
		if err != nil {
			return nil, errgo.NoteMask(err, fmt.Sprintf("measure %d", i), errgo.Any)
		}
		staff.Elems = append(staff.Elems, elems...)
		staff.Elems = append(staff.Elems, &lily.BarCheck{})
	}
	return staff, nil
}

// convertMeasure renders the elements of c. Runs of elements sharing
// a tuplet ratio go in one \tuplet, and the silence after the last
// element is filled with spacer rests.
func convertMeasure(table quant.Table, c *score.Container) ([]lily.Elem, error) {
	var out []lily.Elem
	var tuplet *lily.Tuplet
	var run *lily.Compound
	for _, e := range c.Elements {
		el := convertElement(e)
		r := e.Duration.Tuplet
		if r.IsZero() {
			tuplet, run = nil, nil
			out = append(out, el)
			continue
		}
		if tuplet == nil || tuplet.Actual != r.Actual || tuplet.Normal != r.Normal {
			run = &lily.Compound{}
			tuplet = &lily.Tuplet{Actual: r.Actual, Normal: r.Normal, Elem: run}
			out = append(out, tuplet)
		}
		run.Elems = append(run.Elems, el)
	}

	capacity, err := c.Capacity(table)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	used, err := c.Used(table)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	if used >= capacity {
		return out, nil
	}
	rem := capacity - used
	fill, err := table.Breakdown(rem)
	if errgo.Cause(err) == quant.ErrUnrepresentable {
		// Left over by a tuplet: one scaled whole-note spacer.
		g := gcd(rem, table.PerWhole)
		return append(out, &lily.Chord{Duration: lily.Duration{ScaleNum: rem / g, ScaleDen: table.PerWhole / g}}), nil
	}
	if err != nil {
		return nil, errgo.NoteMask(err, "trailing silence", errgo.Any)
	}
	for _, d := range fill {
		out = append(out, &lily.Chord{Duration: lily.NewDuration(d)})
	}
	return out, nil
}

func convertElement(e *score.Element) lily.Elem {
	d := lily.NewDuration(e.Duration)
	if e.Rest {
		return &lily.Rest{Duration: d}
	}
	ch := &lily.Chord{Duration: d, Tie: e.Tied()}
	for _, n := range e.Notes {
		ch.Pitch = append(ch.Pitch, n.Pitch)
	}
	return ch
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
