package lily

import (
	"fmt"
	"strings"

	"go-scoredit/quant"
)

type Elem interface {
	String() string
}

type Duration struct {
	DurationLog int
	Dots        int
	// ScaleNum/ScaleDen multiplies the length when ScaleDen is set,
	// as in s1*5/12.
	ScaleNum, ScaleDen int
}

// NewDuration converts a symbolic quant duration. The tuplet ratio is
// rendered by the enclosing Tuplet, not here.
func NewDuration(d quant.Duration) Duration {
	dur := Duration{DurationLog: d.Log}
	if d.Dotted {
		dur.Dots = 1
	}
	return dur
}

func (d *Duration) String() string {
	names := map[int]string{
		-1: "\\breve",
		-2: "\\maxima",
	}
	n := names[d.DurationLog]
	if n == "" {
		i := uint(1)
		i <<= uint(d.DurationLog)
		n = fmt.Sprintf("%d", i)
	}

	for i := 0; i < d.Dots; i++ {
		n += "."
	}
	if d.ScaleDen > 0 {
		n += fmt.Sprintf("*%d/%d", d.ScaleNum, d.ScaleDen)
	}

	return n
}

type Pitch struct {
	// 0 = the octave starting at middle C.
	Octave     int `json:"octave"`
	Notename   int `json:"notename"`
	Alteration int `json:"alteration,omitempty"`
}

func (p *Pitch) SemitonePitch() int {
	p.Normalize()
	scale := []int{0, 2, 4, 5, 7, 9, 11}
	return p.Octave*12 + scale[p.Notename] + p.Alteration
}

// MIDIKey returns the MIDI note number; middle C is 60.
func (p Pitch) MIDIKey() int {
	return p.SemitonePitch() + 60
}

func (p *Pitch) Normalize() {
	for p.Notename < 0 {
		p.Notename += 7
		p.Octave--
	}
	for p.Notename >= 7 {
		p.Notename -= 7
		p.Octave++
	}
}

func (p *Pitch) String() string {
	names := []string{"c", "d", "e", "f", "g", "a", "b"}
	altsuffix := []string{"eses", "es", "", "is", "isis"}

	n := names[p.Notename]
	n += altsuffix[p.Alteration+2]
	if p.Octave < 0 {
		for i := -1; i > p.Octave; i-- {
			n += ","
		}
	} else {
		for i := 0; i <= p.Octave; i++ {
			n += "'"
		}
	}
	return n
}

type Chord struct {
	Pitch []Pitch
	Duration
	Tie bool
}

func (p *Chord) String() string {
	d := &p.Duration
	pstr := "s"
	if len(p.Pitch) == 1 {
		pstr = p.Pitch[0].String()
	} else if len(p.Pitch) > 1 {
		pitches := []string{}
		for _, p := range p.Pitch {
			pitches = append(pitches, p.String())
		}
		pstr = "<" + strings.Join(pitches, " ") + ">"
	}
	s := pstr + d.String()
	if p.Tie {
		s += "~"
	}
	return s
}

type Rest struct {
	Duration
}

func (r *Rest) String() string {
	return "r" + r.Duration.String()
}

type Compound struct {
	Elems []Elem
}

func (s *Compound) String() string {
	elts := []string{}
	for _, e := range s.Elems {
		elts = append(elts, e.String())
	}
	return strings.Join(elts, " ")
}

type Seq struct {
	Compound
}

func (s *Seq) String() string {
	return fmt.Sprintf("{ %s }", s.Compound.String())
}

type Par struct {
	Compound
}

func (s *Par) String() string {
	return fmt.Sprintf("<< %s >>", s.Compound.String())
}

// Tuplet wraps Elem in \tuplet Actual/Normal.
type Tuplet struct {
	Actual, Normal int
	Elem           Elem
}

func (t *Tuplet) String() string {
	return fmt.Sprintf("\\tuplet %d/%d { %s }", t.Actual, t.Normal, t.Elem.String())
}

type BarCheck struct{}

func (b *BarCheck) String() string {
	return "|"
}

type TimeSignature struct {
	Num, Den int
}

func (t *TimeSignature) String() string {
	return fmt.Sprintf("\\time %d/%d", t.Num, t.Den)
}

// Staff is a named \new Staff block.
type Staff struct {
	Name string
	Seq
}

func (s *Staff) String() string {
	if s.Name == "" {
		return "\\new Staff " + s.Seq.String()
	}
	return fmt.Sprintf("\\new Staff = %q %s", s.Name, s.Seq.String())
}
