package encore

import (
	"fmt"
	"sort"

	errgo "gopkg.in/errgo.v1"

	"go-scoredit/engine"
	"go-scoredit/lily"
	"go-scoredit/quant"
	"go-scoredit/score"
)

var ErrBadNote = errgo.New("note does not match its staff position")

// clefBase returns the pitch of the ledger line below the staff.
func clefBase(clef byte) lily.Pitch {
	switch clef {
	case 1:
		return lily.Pitch{Notename: 2, Octave: -2}
	case 2:
		return lily.Pitch{Notename: 1, Octave: -1}
	case 3:
		return lily.Pitch{Notename: 6, Octave: -2}
	case 4:
		return lily.Pitch{Notename: 0, Octave: 1}
	case 5:
		return lily.Pitch{Notename: 0, Octave: -1}
	case 6:
		return lily.Pitch{Notename: 2, Octave: -3}
	}
	return lily.Pitch{}
}

// Pitch returns the pitch of n on a staff whose bottom ledger line is
// base. The staff position gives the note name, the semitone the
// alteration.
func (n *Note) Pitch(base lily.Pitch) (lily.Pitch, error) {
	p := base
	p.Notename += int(n.Position)
	p.Alteration = 0
	p.Normalize()
	p.Alteration = int(n.Semitone) - (p.SemitonePitch() + 60)
	if p.Alteration < -2 || p.Alteration > 2 {
		return p, errgo.WithCausef(nil, ErrBadNote, "semitone %d at position %d", n.Semitone, n.Position)
	}
	return p, nil
}

// order sorts the elements of one tick: clef and key changes first,
// then notes and rests, then everything else.
func order(e *Elem) int {
	prio := 20
	switch e.Kind() {
	case KindClef, KindKeyChange:
		prio = 0
	case KindNote, KindRest:
		prio = 10
	}
	return int(e.Tick)<<10 + prio
}

// Document converts the score into a document with one track per
// staff, at TicksPerWhole quants per whole. Only the lowest voice of
// each staff and measure is kept.
func (d *Data) Document() (*score.Document, error) {
	table := quant.Table{PerWhole: TicksPerWhole}
	doc := &score.Document{Resolution: TicksPerWhole}
	clefs := make([]byte, len(d.Staffs))
	for i, s := range d.Staffs {
		name := s.Name()
		if name == "" {
			name = fmt.Sprintf("staff%c", 'A'+i%26)
		}
		doc.Tracks = append(doc.Tracks, &score.Track{Name: name})
		clefs[i] = s.Clef
	}

	for _, m := range d.Measures {
		ts := score.TimeSignature{Num: int(m.TimeSigNum), Den: int(m.TimeSigDen)}
		staffs := make([][]*Elem, len(d.Staffs))
		for _, e := range m.Elems {
			if e.Staff() >= len(staffs) {
				logger.Warningf("measure %d: element on staff %d of %d", m.ID, e.Staff(), len(staffs))
				continue
			}
			staffs[e.Staff()] = append(staffs[e.Staff()], e)
		}
		for i, t := range doc.Tracks {
			c := &score.Container{TimeSig: ts}
			if err := fillMeasure(table, c, staffs[i], &clefs[i]); err != nil {
				return nil, errgo.NoteMask(err, fmt.Sprintf("measure %d staff %d", m.ID, i), errgo.Any)
			}
			t.Containers = append(t.Containers, c)
		}
	}
	logger.Infof("converted %d staffs of %d measures", len(doc.Tracks), len(d.Measures))
	return doc, nil
}

func lowestVoice(elems []*Elem) int {
	v := -1
	for _, e := range elems {
		if k := e.Kind(); k != KindNote && k != KindRest {
			continue
		}
		if v < 0 || e.Voice() < v {
			v = e.Voice()
		}
	}
	return v
}

func fillMeasure(table quant.Table, c *score.Container, elems []*Elem, clef *byte) error {
	voice := lowestVoice(elems)
	sort.SliceStable(elems, func(i, j int) bool {
		return order(elems[i]) < order(elems[j])
	})

	var last *score.Element
	lastTick := -1
	for _, e := range elems {
		if p, ok := e.Payload.(*Clef); ok {
			*clef = p.Type
			continue
		}
		if e.Voice() != voice {
			continue
		}
		switch p := e.Payload.(type) {
		case *Tie:
			if last == nil || last.Rest {
				logger.Debugf("tie without note at tick %d", e.Tick)
				continue
			}
			for i := range last.Notes {
				last.Notes[i].Tied = true
			}
		case *Note:
			pitch, err := p.Pitch(clefBase(*clef))
			if err != nil {
				return errgo.Mask(err, errgo.Is(ErrBadNote))
			}
			if int(e.Tick) == lastTick && last != nil && !last.Rest {
				last.Notes = append(last.Notes, score.Note{Pitch: pitch, Tied: last.Tied()})
				continue
			}
			dur, err := p.Duration()
			if err != nil {
				return errgo.Mask(err, errgo.Any)
			}
			el := score.NewChord(dur, []lily.Pitch{pitch}, false)
			ok, err := place(table, c, el, int(e.Tick))
			if err != nil {
				return errgo.Mask(err, errgo.Any)
			}
			if ok {
				last, lastTick = el, int(e.Tick)
			}
		case *Rest:
			dur, err := p.Duration()
			if err != nil {
				return errgo.Mask(err, errgo.Any)
			}
			el := score.NewRest(dur)
			ok, err := place(table, c, el, int(e.Tick))
			if err != nil {
				return errgo.Mask(err, errgo.Any)
			}
			if ok {
				last, lastTick = el, int(e.Tick)
			}
		}
	}

	capacity, err := c.Capacity(table)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	used, err := c.Used(table)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	if used > capacity {
		return errgo.WithCausef(nil, engine.ErrContainerOverfull, "%d ticks in a measure of %d", used, capacity)
	}
	return nil
}

// place appends el at tick, filling any gap before it with rests.
// An element starting inside an earlier one is dropped and place
// returns false.
func place(table quant.Table, c *score.Container, el *score.Element, tick int) (bool, error) {
	used, err := c.Used(table)
	if err != nil {
		return false, errgo.Mask(err, errgo.Any)
	}
	if tick < used {
		logger.Warningf("dropping %v at tick %d: overlaps the element before it", el, tick)
		return false, nil
	}
	_, fill, err := engine.GapFillers(table, c.Elements, tick)
	if err != nil {
		return false, errgo.Mask(err, errgo.Any)
	}
	for _, f := range fill {
		c.Elements = append(c.Elements, score.NewRest(f))
	}
	c.Elements = append(c.Elements, el)
	return true, nil
}
