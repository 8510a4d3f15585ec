// Package score holds the document model edited by the insertion
// engine: tracks of measures holding rests and chords.
package score

import (
	"fmt"

	"github.com/google/uuid"
	errgo "gopkg.in/errgo.v1"

	"go-scoredit/lily"
	"go-scoredit/quant"
)

var (
	ErrTrackNotFound     = errgo.New("track not found")
	ErrContainerNotFound = errgo.New("measure not found")
)

type ElementID string

func NewElementID() ElementID {
	return ElementID(uuid.New().String())
}

// Note is one pitch of a chord.
type Note struct {
	Pitch lily.Pitch `json:"pitch"`
	// Tied continues the note into the next fragment without re-attack.
	Tied bool `json:"tied,omitempty"`
}

// Element is a rest or a chord. An element is never split by an edit.
type Element struct {
	ID       ElementID      `json:"id"`
	Rest     bool           `json:"rest,omitempty"`
	Notes    []Note         `json:"notes,omitempty"`
	Duration quant.Duration `json:"duration"`
}

// NewRest returns a rest with a fresh id.
func NewRest(d quant.Duration) *Element {
	return &Element{ID: NewElementID(), Rest: true, Duration: d}
}

// NewChord returns a chord with a fresh id. Every note gets the same
// tie flag.
func NewChord(d quant.Duration, pitches []lily.Pitch, tied bool) *Element {
	e := &Element{ID: NewElementID(), Duration: d}
	for _, p := range pitches {
		e.Notes = append(e.Notes, Note{Pitch: p, Tied: tied})
	}
	return e
}

func (e *Element) Length(t quant.Table) (int, error) {
	return t.Length(e.Duration)
}

// Tied reports whether any note of the chord is tied forward.
func (e *Element) Tied() bool {
	for _, n := range e.Notes {
		if n.Tied {
			return true
		}
	}
	return false
}

func (e *Element) String() string {
	if e.Rest {
		return "r" + e.Duration.String()
	}
	s := ""
	for i, n := range e.Notes {
		if i > 0 {
			s += " "
		}
		s += n.Pitch.String()
	}
	s = "<" + s + ">" + e.Duration.String()
	if e.Tied() {
		s += "~"
	}
	return s
}

func (e *Element) Clone() *Element {
	e2 := *e
	e2.Notes = append([]Note(nil), e.Notes...)
	return &e2
}

type TimeSignature struct {
	Num int `json:"num"`
	Den int `json:"den"`
}

func (ts TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", ts.Num, ts.Den)
}

// ParseTimeSignature parses "3/4".
func ParseTimeSignature(s string) (TimeSignature, error) {
	var ts TimeSignature
	if _, err := fmt.Sscanf(s, "%d/%d", &ts.Num, &ts.Den); err != nil {
		return ts, errgo.WithCausef(err, quant.ErrBadTimeSignature, "cannot parse time signature %q", s)
	}
	if ts.Num <= 0 || ts.Den <= 0 {
		return ts, errgo.WithCausef(nil, quant.ErrBadTimeSignature, "bad time signature %q", s)
	}
	return ts, nil
}

// Container is a measure. Trailing silence is implicit: the elements
// may sum to less than the capacity.
type Container struct {
	TimeSig  TimeSignature `json:"time"`
	Elements []*Element    `json:"elements"`
}

func (c *Container) Capacity(t quant.Table) (int, error) {
	return t.Capacity(c.TimeSig.Num, c.TimeSig.Den)
}

// Used returns the summed length of the elements.
func (c *Container) Used(t quant.Table) (int, error) {
	total := 0
	for _, e := range c.Elements {
		n, err := e.Length(t)
		if err != nil {
			return 0, errgo.Mask(err, errgo.Any)
		}
		total += n
	}
	return total, nil
}

// Index returns the position of the element with the given id, or -1.
func (c *Container) Index(id ElementID) int {
	for i, e := range c.Elements {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Snapshot returns a copy of the element list. Elements are shared;
// edits replace elements rather than changing them in place.
func (c *Container) Snapshot() []*Element {
	return append([]*Element(nil), c.Elements...)
}

func (c *Container) Clone() *Container {
	c2 := &Container{TimeSig: c.TimeSig}
	for _, e := range c.Elements {
		c2.Elements = append(c2.Elements, e.Clone())
	}
	return c2
}

type Track struct {
	Name       string       `json:"name"`
	Containers []*Container `json:"measures"`
}

type Document struct {
	// Resolution is the number of quants per whole note.
	Resolution int      `json:"resolution"`
	Tracks     []*Track `json:"tracks"`
}

// New returns a document of empty measures.
func New(resolution, tracks, measures int, ts TimeSignature) *Document {
	d := &Document{Resolution: resolution}
	for i := 0; i < tracks; i++ {
		t := &Track{Name: fmt.Sprintf("staff%c", 'A'+i%26)}
		for j := 0; j < measures; j++ {
			t.Containers = append(t.Containers, &Container{TimeSig: ts})
		}
		d.Tracks = append(d.Tracks, t)
	}
	return d
}

func (d *Document) Table() quant.Table {
	return quant.Table{PerWhole: d.Resolution}
}

func (d *Document) Track(idx int) (*Track, error) {
	if idx < 0 || idx >= len(d.Tracks) {
		return nil, errgo.WithCausef(nil, ErrTrackNotFound, "track %d (have %d)", idx, len(d.Tracks))
	}
	return d.Tracks[idx], nil
}

func (d *Document) Container(track, idx int) (*Container, error) {
	t, err := d.Track(track)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	if idx < 0 || idx >= len(t.Containers) {
		return nil, errgo.WithCausef(nil, ErrContainerNotFound, "measure %d of track %d (have %d)", idx, track, len(t.Containers))
	}
	return t.Containers[idx], nil
}

func (d *Document) NumContainers(track int) (int, error) {
	t, err := d.Track(track)
	if err != nil {
		return 0, errgo.Mask(err, errgo.Any)
	}
	return len(t.Containers), nil
}

// Validate checks that every element has an integral length and no
// measure holds more than its capacity.
func (d *Document) Validate() error {
	table := d.Table()
	for ti, t := range d.Tracks {
		for ci, c := range t.Containers {
			capacity, err := c.Capacity(table)
			if err != nil {
				return errgo.NoteMask(err, fmt.Sprintf("track %d measure %d", ti, ci), errgo.Any)
			}
			used, err := c.Used(table)
			if err != nil {
				return errgo.NoteMask(err, fmt.Sprintf("track %d measure %d", ti, ci), errgo.Any)
			}
			if used > capacity {
				return errgo.Newf("track %d measure %d holds %d quants, capacity %d", ti, ci, used, capacity)
			}
		}
	}
	return nil
}

func (d *Document) Clone() *Document {
	d2 := &Document{Resolution: d.Resolution}
	for _, t := range d.Tracks {
		t2 := &Track{Name: t.Name}
		for _, c := range t.Containers {
			t2.Containers = append(t2.Containers, c.Clone())
		}
		d2.Tracks = append(d2.Tracks, t2)
	}
	return d2
}
