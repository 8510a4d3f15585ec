package engine

import (
	"testing"

	"pgregory.net/rapid"

	qt "github.com/frankban/quicktest"
	errgo "gopkg.in/errgo.v1"

	"go-scoredit/history"
	"go-scoredit/lily"
	"go-scoredit/quant"
	"go-scoredit/score"
)

var _ Editor = (*history.Editor)(nil)

var _ Selection = (*score.Selection)(nil)

type fixture struct {
	doc *score.Document
	ed  *history.Editor
	sel *score.Selection
	eng *Engine
}

func newFixture(cur score.Cursor, measures ...*score.Container) *fixture {
	doc := &score.Document{
		Resolution: quant.Default.PerWhole,
		Tracks:     []*score.Track{{Name: "a", Containers: measures}},
	}
	ed := history.New(doc)
	sel := score.NewSelection(cur)
	return &fixture{
		doc: doc,
		ed:  ed,
		sel: sel,
		eng: New(ed, sel),
	}
}

func (f *fixture) measures() []string {
	var out []string
	for _, m := range f.doc.Tracks[0].Containers {
		out = append(out, render(m))
	}
	return out
}

func dur(s string) quant.Duration {
	d, err := lily.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}

var insertTests = []struct {
	testName       string
	measures       func() []*score.Container
	cursor         score.Cursor
	req            Request
	expectMeasures []string
	expectWarnings []string
	expectInfo     []string
	expectCursor   score.Cursor
}{{
	testName: "overwrite-half-over-two-quarters",
	measures: func() []*score.Container {
		return []*score.Container{cdef()}
	},
	cursor:         score.Cursor{Element: "D"},
	req:            Request{Pitch: "a'", Duration: dur("2"), Mode: Overwrite},
	expectMeasures: []string{"c'4 a'2 f'4"},
	expectWarnings: []string{"Overwrote 2 event(s)"},
	expectCursor:   score.Cursor{Element: "F"},
}, {
	testName: "append-overflows-into-new-measure",
	measures: func() []*score.Container {
		return []*score.Container{measure("4/4", note("C", "c'", "4"), note("D", "d'", "4"), note("E", "e'", "4"))}
	},
	req:            Request{Pitch: "f'", Duration: dur("2"), Mode: Overwrite},
	expectMeasures: []string{"c'4 d'4 e'4 f'4~", "f'4"},
	expectInfo:     []string{"split across containers", "Created container 2"},
	expectCursor:   score.Cursor{Container: 1},
}, {
	testName: "exact-fit-creates-nothing",
	measures: func() []*score.Container {
		return []*score.Container{measure("4/4", note("C", "c'", "4"), note("D", "d'", "4"), note("E", "e'", "4"))}
	},
	req:            Request{Pitch: "f'", Duration: dur("4"), Mode: Overwrite},
	expectMeasures: []string{"c'4 d'4 e'4 f'4"},
}, {
	testName: "short-insert-inside-longer-element",
	measures: func() []*score.Container {
		return []*score.Container{measure("4/4", note("C", "c'", "4"), note("H", "g'", "2"), note("F", "f'", "4"))}
	},
	cursor:         score.Cursor{Element: "H"},
	req:            Request{Pitch: "b'", Duration: dur("16"), Mode: Overwrite},
	expectMeasures: []string{"c'4 b'16 f'4"},
	expectWarnings: []string{"Overwrote 1 event(s)"},
	expectCursor:   score.Cursor{Element: "F"},
}, {
	testName: "rest-split-is-never-tied",
	measures: func() []*score.Container {
		return []*score.Container{measure("4/4", note("C", "c'", "4"), note("D", "d'", "4"), note("E", "e'", "4"))}
	},
	req:            Request{Rest: true, Duration: dur("2"), Mode: Overwrite},
	expectMeasures: []string{"c'4 d'4 e'4 r4", "r4"},
	expectInfo:     []string{"split across containers", "Created container 2"},
	expectCursor:   score.Cursor{Container: 1},
}, {
	testName: "overflow-overwrites-existing-next-measure",
	measures: func() []*score.Container {
		return []*score.Container{
			measure("4/4", note("C", "c'", "4"), note("D", "d'", "4"), note("E", "e'", "4")),
			measure("4/4", note("G", "g'", "4"), note("A", "a'", "4"), note("B", "b'", "4"), note("C2", "c''", "4")),
		}
	},
	req:            Request{Pitch: "f'", Duration: dur("2"), Mode: Overwrite},
	expectMeasures: []string{"c'4 d'4 e'4 f'4~", "f'4 a'4 b'4 c''4"},
	expectWarnings: []string{"Overwrote 1 event(s)"},
	expectInfo:     []string{"split across containers"},
	expectCursor:   score.Cursor{Container: 1, Element: "A"},
}, {
	testName: "full-measure-append-moves-on",
	measures: func() []*score.Container {
		return []*score.Container{cdef()}
	},
	req:            Request{Pitch: "g'", Duration: dur("4"), Mode: Overwrite},
	expectMeasures: []string{"c'4 d'4 e'4 f'4", "g'4"},
	expectInfo:     []string{"Created container 2"},
	expectCursor:   score.Cursor{Container: 1},
}, {
	testName: "remainder-carried-whole",
	measures: func() []*score.Container {
		return []*score.Container{measure("4/4", note("C", "c'", "4."))}
	},
	req:            Request{Pitch: "<c' e'>", Duration: dur("1."), Mode: Overwrite},
	expectMeasures: []string{"c'4. <c' e'>2~ <c' e'>8~", "<c' e'>2.~ <c' e'>8"},
	expectInfo:     []string{"split across containers", "Created container 2"},
	expectCursor:   score.Cursor{Container: 1},
}, {
	testName: "insert-mode-pushes-back",
	measures: func() []*score.Container {
		return []*score.Container{measure("4/4", note("C", "c'", "4"), note("D", "d'", "4"))}
	},
	cursor:         score.Cursor{Element: "D"},
	req:            Request{Pitch: "a'", Duration: dur("4"), Mode: Insert},
	expectMeasures: []string{"c'4 a'4 d'4"},
	expectCursor:   score.Cursor{Element: "D"},
}, {
	testName: "insert-mode-append-overflows",
	measures: func() []*score.Container {
		return []*score.Container{measure("4/4", note("C", "c'", "2."))}
	},
	req:            Request{Pitch: "a'", Duration: dur("2"), Mode: Insert},
	expectMeasures: []string{"c'2. a'4~", "a'4"},
	expectInfo:     []string{"split across containers", "Created container 2"},
	expectCursor:   score.Cursor{Container: 1},
}, {
	testName: "continuation-into-existing-measure-insert-mode",
	measures: func() []*score.Container {
		return []*score.Container{
			measure("4/4", note("C", "c'", "2.")),
			measure("4/4", note("G", "g'", "4")),
		}
	},
	req:            Request{Pitch: "a'", Duration: dur("2"), Mode: Insert},
	expectMeasures: []string{"c'2. a'4~", "a'4 g'4"},
	expectInfo:     []string{"split across containers"},
	expectCursor:   score.Cursor{Container: 1, Element: "G"},
}}

func TestInsert(t *testing.T) {
	c := qt.New(t)
	for _, test := range insertTests {
		c.Run(test.testName, func(c *qt.C) {
			f := newFixture(test.cursor, test.measures()...)
			fb, err := f.eng.Insert(test.req)
			c.Assert(err, qt.IsNil)
			c.Assert(f.measures(), qt.DeepEquals, test.expectMeasures)
			c.Assert(fb.Warnings, qt.DeepEquals, test.expectWarnings)
			c.Assert(fb.Info, qt.DeepEquals, test.expectInfo)
			c.Assert(f.sel.CurrentCursor(), qt.Equals, test.expectCursor)
			c.Assert(f.doc.Validate(), qt.IsNil)

			// The whole insertion is one undo step.
			c.Assert(f.ed.Undo(), qt.IsNil)
			c.Assert(f.ed.CanUndo(), qt.IsFalse)
			fresh := newFixture(test.cursor, test.measures()...)
			c.Assert(f.measures(), qt.DeepEquals, fresh.measures())
		})
	}
}

func TestInsertModeOverfullRejected(t *testing.T) {
	c := qt.New(t)
	f := newFixture(score.Cursor{Element: "D"}, cdef())
	_, err := f.eng.Insert(Request{Pitch: "a'", Duration: dur("4"), Mode: Insert})
	c.Assert(errgo.Cause(err), qt.Equals, ErrContainerOverfull)
	c.Assert(f.measures(), qt.DeepEquals, []string{"c'4 d'4 e'4 f'4"})
	c.Assert(f.sel.CurrentCursor(), qt.Equals, score.Cursor{Element: "D"})
	c.Assert(f.ed.CanUndo(), qt.IsFalse)
}

func TestInsertErrors(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		testName string
		cursor   score.Cursor
		req      Request
		cause    error
	}{{
		testName: "bad-pitch",
		req:      Request{Pitch: "h'", Duration: dur("4")},
		cause:    ErrInvalidPitch,
	}, {
		testName: "bad-mode",
		req:      Request{Pitch: "c'", Duration: dur("4"), Mode: Mode(7)},
		cause:    ErrInvalidMode,
	}, {
		testName: "fractional-duration",
		req:      Request{Pitch: "c'", Duration: dur("32")},
		cause:    quant.ErrFractional,
	}, {
		testName: "missing-track",
		cursor:   score.Cursor{Track: 3},
		req:      Request{Pitch: "c'", Duration: dur("4")},
		cause:    ErrTrackNotFound,
	}, {
		testName: "missing-measure",
		cursor:   score.Cursor{Container: 5},
		req:      Request{Pitch: "c'", Duration: dur("4")},
		cause:    ErrContainerNotFound,
	}, {
		testName: "missing-element",
		cursor:   score.Cursor{Element: "nope"},
		req:      Request{Pitch: "c'", Duration: dur("4")},
		cause:    ErrElementNotFound,
	}}
	for _, test := range tests {
		c.Run(test.testName, func(c *qt.C) {
			f := newFixture(test.cursor, measure("4/4", note("C", "c'", "4")))
			fb, err := f.eng.Insert(test.req)
			c.Assert(fb, qt.IsNil)
			c.Assert(errgo.Cause(err), qt.Equals, test.cause)
			c.Assert(f.measures(), qt.DeepEquals, []string{"c'4"})
			c.Assert(f.sel.CurrentCursor(), qt.Equals, test.cursor)
			c.Assert(f.ed.CanUndo(), qt.IsFalse)
			// No transaction is left open.
			c.Assert(f.ed.Begin(), qt.IsNil)
		})
	}
}

func TestInsertRollsBackEarlierMeasures(t *testing.T) {
	c := qt.New(t)
	f := newFixture(score.Cursor{}, measure("4/4", note("C", "c'", "2.")))
	// The head lands in the first measure before measure creation
	// fails: it must disappear again.
	eng := New(&failingEditor{Editor: f.ed}, f.sel)
	_, err := eng.Insert(Request{Pitch: "a'", Duration: dur("2")})
	c.Assert(err, qt.ErrorMatches, "create failed")
	c.Assert(f.measures(), qt.DeepEquals, []string{"c'2."})
	c.Assert(f.sel.CurrentCursor(), qt.Equals, score.Cursor{})
	c.Assert(f.ed.CanUndo(), qt.IsFalse)
}

func TestCustomValidator(t *testing.T) {
	c := qt.New(t)
	f := newFixture(score.Cursor{}, measure("4/4"))
	f.eng.SetValidator(func(s string) ([]lily.Pitch, error) {
		if s != "do" {
			return nil, errgo.Newf("not solfege: %q", s)
		}
		return []lily.Pitch{{}}, nil
	})
	_, err := f.eng.Insert(Request{Pitch: "do", Duration: dur("4")})
	c.Assert(err, qt.IsNil)
	c.Assert(f.measures(), qt.DeepEquals, []string{"c'4"})
	_, err = f.eng.Insert(Request{Pitch: "c'", Duration: dur("4")})
	c.Assert(errgo.Cause(err), qt.Equals, ErrInvalidPitch)
}

type failingEditor struct {
	*history.Editor
}

func (ed *failingEditor) CreateContainer(track int) (int, error) {
	return 0, errgo.New("create failed")
}

func TestSequentialInsertsFollowCursor(t *testing.T) {
	c := qt.New(t)
	f := newFixture(score.Cursor{}, measure("4/4"))
	for _, p := range []string{"c'", "d'", "e'", "f'", "g'"} {
		_, err := f.eng.Insert(Request{Pitch: p, Duration: dur("4")})
		c.Assert(err, qt.IsNil)
	}
	c.Assert(f.measures(), qt.DeepEquals, []string{"c'4 d'4 e'4 f'4", "g'4"})

	// Go back to D and overwrite three quarters with a dotted half.
	d := f.doc.Tracks[0].Containers[0].Elements[1]
	f.sel.SetCursor(score.Cursor{Element: d.ID})
	fb, err := f.eng.Insert(Request{Pitch: "a'", Duration: dur("2."), Mode: Overwrite})
	c.Assert(err, qt.IsNil)
	c.Assert(fb.Warnings, qt.DeepEquals, []string{"Overwrote 3 event(s)"})
	c.Assert(f.measures(), qt.DeepEquals, []string{"c'4 a'2.", "g'4"})
	c.Assert(f.sel.CurrentCursor(), qt.Equals, score.Cursor{})

	c.Assert(f.ed.Undo(), qt.IsNil)
	c.Assert(f.measures(), qt.DeepEquals, []string{"c'4 d'4 e'4 f'4", "g'4"})
	c.Assert(f.ed.Redo(), qt.IsNil)
	c.Assert(f.measures(), qt.DeepEquals, []string{"c'4 a'2.", "g'4"})
}

func TestModeString(t *testing.T) {
	c := qt.New(t)
	for _, m := range []Mode{Overwrite, Insert} {
		got, err := ParseMode(m.String())
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.Equals, m)
	}
	_, err := ParseMode("replace")
	c.Assert(errgo.Cause(err), qt.Equals, ErrInvalidMode)
	c.Assert(Mode(9).String(), qt.Equals, "Mode(9)")
}

var spanTests = []struct {
	dur    string
	ts     string
	expect int
}{
	{"1", "4/4", 1},
	{"1", "2/4", 2},
	{"1.", "2/4", 3},
	{"1", "1/4", 4},
	{"2", "1/8", 4},
}

func TestInsertSpan(t *testing.T) {
	c := qt.New(t)
	for _, test := range spanTests {
		f := newFixture(score.Cursor{}, measure(test.ts))
		_, err := f.eng.Insert(Request{Pitch: "c'", Duration: dur(test.dur)})
		c.Assert(err, qt.IsNil)
		c.Assert(f.doc.Tracks[0].Containers, qt.HasLen, test.expect, qt.Commentf("%s in %s", test.dur, test.ts))
		last := f.doc.Tracks[0].Containers[test.expect-1]
		c.Assert(last.Elements[len(last.Elements)-1].Tied(), qt.IsFalse)
	}
}

// drawFixture draws a track of partly filled measures and a cursor on
// one of them.
func drawFixture(t *rapid.T) *fixture {
	table := quant.Default
	n := rapid.IntRange(1, 4).Draw(t, "measures")
	var ms []*score.Container
	var ids []score.Cursor
	for i := 0; i < n; i++ {
		ts := score.TimeSignature{
			Num: rapid.IntRange(1, 5).Draw(t, "num"),
			Den: rapid.SampledFrom([]int{2, 4, 8}).Draw(t, "den"),
		}
		m := &score.Container{TimeSig: ts}
		capacity, err := m.Capacity(table)
		if err != nil {
			t.Fatalf("capacity: %v", err)
		}
		fill := rapid.IntRange(0, capacity).Draw(t, "fill")
		// Split the fill at a random point so measures hold values of
		// different sizes.
		cut := rapid.IntRange(0, fill).Draw(t, "cut")
		for _, part := range []int{cut, fill - cut} {
			ds, err := table.Breakdown(part)
			if err != nil {
				t.Fatalf("breakdown: %v", err)
			}
			for _, d := range ds {
				e := score.NewChord(d, []lily.Pitch{{}}, false)
				m.Elements = append(m.Elements, e)
				ids = append(ids, score.Cursor{Container: i, Element: e.ID})
			}
		}
		ms = append(ms, m)
		ids = append(ids, score.Cursor{Container: i})
	}
	cur := rapid.SampledFrom(ids).Draw(t, "cursor")
	return newFixture(cur, ms...)
}

func drawRequest(t *rapid.T) Request {
	return Request{
		Rest:     rapid.Bool().Draw(t, "rest"),
		Pitch:    "c'",
		Duration: dur(rapid.SampledFrom([]string{"1.", "1", "2.", "2", "4.", "4", "8.", "8", "16"}).Draw(t, "duration")),
		Mode:     Overwrite,
	}
}

func TestInsertProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := drawFixture(t)
		req := drawRequest(t)
		table := quant.Default
		before := make(map[score.ElementID]bool)
		for _, m := range f.doc.Tracks[0].Containers {
			for _, e := range m.Elements {
				before[e.ID] = true
			}
		}
		want := table.MustLength(req.Duration)

		if _, err := f.eng.Insert(req); err != nil {
			t.Fatalf("insert %v: %v", req, err)
		}
		if err := f.doc.Validate(); err != nil {
			t.Fatalf("invalid document: %v", err)
		}

		placed := 0
		for i, m := range f.doc.Tracks[0].Containers {
			used, _ := m.Used(table)
			capacity, _ := m.Capacity(table)
			if used > capacity {
				t.Fatalf("measure %d holds %d quants, capacity %d", i, used, capacity)
			}
			for _, e := range m.Elements {
				if before[e.ID] {
					continue
				}
				// Measures start out without holes, so nothing but
				// fragments of the request is added.
				if e.Rest != req.Rest {
					t.Fatalf("unexpected element %v in measure %d", e, i)
				}
				placed += table.MustLength(e.Duration)
			}
		}
		if placed != want {
			t.Fatalf("placed %d quants, requested %d", placed, want)
		}

		cur := f.sel.CurrentCursor()
		m, err := f.doc.Container(cur.Track, cur.Container)
		if err != nil {
			t.Fatalf("cursor %v: %v", cur, err)
		}
		if cur.Element != "" && m.Index(cur.Element) < 0 {
			t.Fatalf("cursor %v names a missing element", cur)
		}
	})
}

func TestInsertUndoRestores(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := drawFixture(t)
		orig := f.doc.Clone()
		req := drawRequest(t)
		req.Mode = rapid.SampledFrom([]Mode{Overwrite, Insert}).Draw(t, "mode")
		_, err := f.eng.Insert(req)
		if err != nil {
			if errgo.Cause(err) != ErrContainerOverfull || req.Mode != Insert {
				t.Fatalf("insert %v: %v", req, err)
			}
			if got, want := f.measures(), (&fixture{doc: orig}).measures(); !equalStrings(got, want) {
				t.Fatalf("failed insert changed the document: %q, want %q", got, want)
			}
			return
		}
		if err := f.ed.Undo(); err != nil {
			t.Fatalf("undo: %v", err)
		}
		if got, want := f.measures(), (&fixture{doc: orig}).measures(); !equalStrings(got, want) {
			t.Fatalf("undo gave %q, want %q", got, want)
		}
	})
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
