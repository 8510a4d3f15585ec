package main

import (
	"fmt"
	"io"

	"go-scoredit/encore"
)

// inspect dumps the decoded structure of an Encore file: header,
// staffs, lines, then every measure with its elements.
func inspect(w io.Writer, d *encore.Data) {
	fmt.Fprintf(w, "%v\n", &d.Header)
	for _, s := range d.Staffs {
		fmt.Fprintf(w, "staff %d %q clef %d transposition %d\n", s.ID, s.Name(), s.Clef, s.Transposition)
	}
	for _, l := range d.Lines {
		fmt.Fprintf(w, "line %d: start %d, %d measures, %d staffs\n", l.ID, l.Start, l.MeasureCount, len(l.Staffs))
	}
	for _, m := range d.Measures {
		inspectMeasure(w, m)
	}
}

func inspectMeasure(w io.Writer, m *encore.Measure) {
	fmt.Fprintf(w, "meas %d @%d: %s, %d ticks, bpm %d", m.ID, m.AbsTick, m.TimeSignature(), m.DurTicks, m.Bpm)
	if m.RepeatMarker != 0 || m.RepeatAlternative != 0 {
		fmt.Fprintf(w, ", rep %d alt %d", m.RepeatMarker, m.RepeatAlternative)
	}
	fmt.Fprintln(w)
	for _, e := range m.Elems {
		fmt.Fprintf(w, "  %5d staff %d voice %d %-9v", e.Tick, e.Staff(), e.Voice(), e.Kind())
		switch p := e.Payload.(type) {
		case *encore.Note:
			fmt.Fprintf(w, " pos %d semitone %d ticks %d", p.Position, p.Semitone, p.Ticks())
			if !p.TupletRatio().IsZero() {
				fmt.Fprintf(w, " tuplet %d/%d", p.TupletRatio().Actual, p.TupletRatio().Normal)
			}
		case *encore.Rest:
			fmt.Fprintf(w, " ticks %d", p.Ticks())
		case *encore.Clef:
			fmt.Fprintf(w, " type %d", p.Type)
		case *encore.KeyChange:
			fmt.Fprintf(w, " key %d -> %d", p.OldKey, p.NewKey)
		case *encore.Other:
			fmt.Fprintf(w, " % x", e.Raw)
		}
		fmt.Fprintln(w)
	}
}
