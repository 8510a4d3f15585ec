// Package encore reads Encore (.enc) score files.
package encore

import (
	"bytes"
	"fmt"

	errgo "gopkg.in/errgo.v1"

	"go-scoredit/quant"
)

// TicksPerWhole is the Encore tick resolution: 60 ticks per 16th.
const TicksPerWhole = 16 * 60

type Data struct {
	Raw      []byte
	Header   Header
	Staffs   []*Staff
	Pages    []*Page
	Lines    []*Line
	Measures []*Measure
}

type Header struct {
	Offset int
	Raw    []byte `want:"SCOW" fixed:"194"`

	LineCount      int16 `offset:"0x2e"`
	PageCount      int16 `offset:"0x30"`
	StaffCount     byte  `offset:"0x32"`
	StaffPerSystem byte  `offset:"0x33"`
	MeasureCount   int16 `offset:"0x34"`
}

func (h *Header) String() string {
	return fmt.Sprintf("lines %d pages %d staffs %d (%d per system) measures %d",
		h.LineCount, h.PageCount, h.StaffCount, h.StaffPerSystem, h.MeasureCount)
}

type Page struct {
	ID     int
	Offset int
	Raw    []byte `want:"PAGE" fixed:"34"`
}

// Line is a system: one line of staffs on a page.
type Line struct {
	ID      int
	Offset  int
	Raw     []byte `want:"LINE" fixed:"8"`
	VarSize uint32 `offset:"0x4"`
	VarData []byte
	LineData
	Staffs []*LineStaff
}

type LineData struct {
	Start        uint16 `offset:"10"`
	MeasureCount byte   `offset:"12"`
}

// LineStaff is the per-line state of a staff.
type LineStaff struct {
	Clef      byte `offset:"1"`
	Key       byte `offset:"2"`
	PageIdx   byte `offset:"3"`
	StaffType byte `offset:"7"`
	StaffIdx  byte `offset:"8"`
}

type Staff struct {
	ID     int
	Offset int
	// TK00 or TK01.
	Raw []byte `fixed:"242"`

	RawName [10]byte `offset:"8"`

	// In semitones; b-flat clarinet = -2.
	Transposition int8 `offset:"165"`

	// 0 = G, 1 = F, 2 = C (alto), 3 = C (tenor), 4 = G^8, 5 = G_8,
	// 6 = F_8.
	Clef byte `offset:"172"`
}

// Name returns the staff name up to the first NUL.
func (s *Staff) Name() string {
	n := s.RawName[:]
	if i := bytes.IndexByte(n, 0); i >= 0 {
		n = n[:i]
	}
	return string(n)
}

type Measure struct {
	ID     int
	Offset int
	Raw    []byte `want:"MEAS" fixed:"62"`

	VarSize           int32  `offset:"4"`
	Bpm               uint16 `offset:"8"`
	TimeSigGlyph      byte   `offset:"10"`
	BeatTicks         uint16 `offset:"12"`
	DurTicks          uint16 `offset:"14"`
	TimeSigNum        byte   `offset:"16"`
	TimeSigDen        byte   `offset:"17"`
	BarTypeStart      byte   `offset:"20"`
	BarTypeEnd        byte   `offset:"21"`
	RepeatMarker      byte   `offset:"22"`
	RepeatAlternative byte   `offset:"23"`
	Coda              uint32 `offset:"33"`

	VarData []byte

	Elems []*Elem
	// AbsTick is the tick of the measure start from the top of the
	// score.
	AbsTick int
}

func (m *Measure) TimeSignature() string {
	return fmt.Sprintf("%d/%d", m.TimeSigNum, m.TimeSigDen)
}

type Kind int

const (
	KindNone Kind = iota
	KindClef
	KindKeyChange
	KindTie
	KindBeam
	KindOrnament
	KindLyric
	KindChord
	KindRest
	KindNote
)

var kindNames = []string{"None", "Clef", "KeyChange", "Tie", "Beam", "Ornament", "Lyric", "Chord", "Rest", "Note"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Payload is the kind-specific part of an element.
type Payload interface {
	// Ticks is the notated length, 0 for elements without one.
	Ticks() int
}

// Elem is one element of a measure, for any staff and voice.
type Elem struct {
	Raw    []byte
	Offset int
	// Tick is relative to the measure start.
	Tick uint16 `offset:"0"`

	// kind << 4 | voice
	KindVoice byte `offset:"2"`
	Size      byte `offset:"3"`
	StaffIdx  byte `offset:"4"`

	Payload Payload

	Measure *Measure
}

func (e *Elem) Kind() Kind {
	return Kind(e.KindVoice >> 4)
}

func (e *Elem) Voice() int {
	return int(e.KindVoice & 0xf)
}

func (e *Elem) Staff() int {
	return int(e.StaffIdx & 63)
}

func (e *Elem) AbsTick() int {
	return int(e.Tick) + e.Measure.AbsTick
}

func (e *Elem) Ticks() int {
	return e.Payload.Ticks()
}

type noLength struct{}

func (noLength) Ticks() int {
	return 0
}

// Value is the notated duration shared by notes and rests.
type Value struct {
	// 1 = whole, 2 = half, 3 = quarter, etc. The high nibble holds
	// the notehead type.
	FaceValue byte `offset:"5"`
	// 50 = (3 << 4) | 2: three in the time of two.
	Tuplet byte `offset:"13"`
	// &0x3: dot count; &0x4: vertical dot position.
	DotControl    byte   `offset:"14"`
	PlaybackTicks uint16 `offset:"16"`
}

func (v *Value) Log() int {
	return int(v.FaceValue&0xf) - 1
}

func (v *Value) Dots() int {
	return int(v.DotControl & 0x3)
}

func (v *Value) TupletRatio() quant.Ratio {
	if v.Tuplet == 0 {
		return quant.Ratio{}
	}
	return quant.Ratio{Actual: int(v.Tuplet >> 4), Normal: int(v.Tuplet & 0xf)}
}

// Duration returns the symbolic value. quant has no double dots, so
// those report ErrUnrepresentable.
func (v *Value) Duration() (quant.Duration, error) {
	d := quant.Duration{Log: v.Log(), Dotted: v.Dots() == 1, Tuplet: v.TupletRatio()}
	if v.Dots() > 1 {
		return d, errgo.WithCausef(nil, quant.ErrUnrepresentable, "%d dots", v.Dots())
	}
	return d, nil
}

func (v *Value) Ticks() int {
	num, den := TicksPerWhole, 1
	if l := v.Log(); l >= 0 {
		den <<= uint(l)
	} else {
		num <<= uint(-l)
	}
	if v.Dots() == 1 {
		num *= 3
		den *= 2
	}
	if r := v.TupletRatio(); !r.IsZero() && r.Actual > 0 {
		num *= r.Normal
		den *= r.Actual
	}
	return num / den
}

type Note struct {
	Value

	Grace   byte `offset:"6"`
	XOffset byte `offset:"10"`

	// Ledger line below the staff = 0, top line = 10.
	Position int8 `offset:"12"`

	// Without the staff transposition; 60 = middle C.
	Semitone byte `offset:"15"`

	Velocity byte `offset:"19"`

	// 128 = stem down.
	Options byte `offset:"20"`

	// 1 = sharp, 2 = flat, 3 = natural, 4 = double sharp,
	// 5 = double flat.
	AlterationGlyph byte `offset:"21"`
}

type Rest struct {
	Value
	XOffset  byte `offset:"10"`
	Position int8 `offset:"12"`
}

// Tie joins the note before it to the next note of the same pitch.
type Tie struct {
	noLength
	LeftValue    byte `offset:"5"`
	XOffset      byte `offset:"10"`
	NotePosition byte `offset:"12"`
	TiePosition  byte `offset:"14"`
}

// Clef changes the clef from its tick on.
type Clef struct {
	noLength
	Type byte `offset:"5"`
	XOff byte `offset:"10"`
}

type KeyChange struct {
	noLength
	NewKey byte `offset:"5"`
	OldKey byte `offset:"10"`
}

// Other is any element kind that is not decoded.
type Other struct {
	noLength
}
