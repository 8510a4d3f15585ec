package encore

import (
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"
	errgo "gopkg.in/errgo.v1"

	"go-scoredit/quant"
)

func TestValueTicks(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		value  Value
		expect int
	}{
		{Value{FaceValue: 3}, 240},
		{Value{FaceValue: 1}, 960},
		{Value{FaceValue: 2, DotControl: 1}, 720},
		{Value{FaceValue: 4, DotControl: 1, Tuplet: 50}, 120},
		{Value{FaceValue: 0x34}, 120},
	}
	for _, test := range tests {
		c.Assert(test.value.Ticks(), qt.Equals, test.expect, qt.Commentf("%+v", test.value))
		d, err := test.value.Duration()
		c.Assert(err, qt.IsNil)
		n, err := quant.Table{PerWhole: TicksPerWhole}.Length(d)
		c.Assert(err, qt.IsNil)
		c.Assert(n, qt.Equals, test.expect)
	}

	v := Value{FaceValue: 3, DotControl: 2}
	_, err := v.Duration()
	c.Assert(errgo.Cause(err), qt.Equals, quant.ErrUnrepresentable)
}

func TestKindString(t *testing.T) {
	c := qt.New(t)
	c.Assert(KindNote.String(), qt.Equals, "Note")
	c.Assert(KindTie.String(), qt.Equals, "Tie")
	c.Assert(Kind(12).String(), qt.Equals, "Kind(12)")
}

// The helpers below assemble a minimal Encore file.

func le16(b []byte, v int) {
	binary.LittleEndian.PutUint16(b, uint16(v))
}

func le32(b []byte, v int) {
	binary.LittleEndian.PutUint32(b, uint32(v))
}

func fileHeader(lines, pages, staffs, measures int) []byte {
	b := make([]byte, 194)
	copy(b, "SCOW")
	le16(b[0x2e:], lines)
	le16(b[0x30:], pages)
	b[0x32] = byte(staffs)
	b[0x33] = byte(staffs)
	le16(b[0x34:], measures)
	return b
}

func staffBlock(name string, clef byte) []byte {
	b := make([]byte, 242)
	copy(b, "TK00")
	copy(b[8:18], name)
	b[172] = clef
	return b
}

func pageBlock() []byte {
	b := make([]byte, 34)
	copy(b, "PAGE")
	return b
}

func lineBlock(start, count, staffs int) []byte {
	v := make([]byte, lineHeaderSize+lineStaffSize*staffs)
	le16(v[10:], start)
	v[12] = byte(count)
	for i := 0; i < staffs; i++ {
		v[lineHeaderSize+lineStaffSize*i+8] = byte(i)
	}
	b := make([]byte, 8)
	copy(b, "LINE")
	le32(b[4:], len(v))
	return append(b, v...)
}

func measureBlock(num, den int, elems ...[]byte) []byte {
	var v []byte
	for _, e := range elems {
		v = append(v, e...)
	}
	v = append(v, endMarker...)
	b := make([]byte, measHeaderSize)
	copy(b, "MEAS")
	le32(b[4:], len(v))
	le16(b[14:], num*TicksPerWhole/den)
	b[16] = byte(num)
	b[17] = byte(den)
	return append(b, v...)
}

func elem(kind Kind, size, tick, staff, voice int) []byte {
	b := make([]byte, size)
	le16(b, tick)
	b[2] = byte(kind)<<4 | byte(voice)
	b[3] = byte(size)
	b[4] = byte(staff)
	return b
}

// noteElem encodes a note: face 3 is a quarter, position 0 the ledger
// line below the staff.
func noteElem(tick, voice int, face, dots, tuplet byte, pos int8, semitone byte) []byte {
	b := elem(KindNote, 28, tick, 0, voice)
	b[5] = face
	b[12] = byte(pos)
	b[13] = tuplet
	b[14] = dots
	b[15] = semitone
	return b
}

func restElem(tick int, face byte) []byte {
	b := elem(KindRest, 18, tick, 0, 0)
	b[5] = face
	return b
}

func tieElem(tick int) []byte {
	return elem(KindTie, 16, tick, 0, 0)
}

func clefElem(tick int, clef byte) []byte {
	b := elem(KindClef, 12, tick, 0, 0)
	b[5] = clef
	return b
}

func join(parts ...[]byte) []byte {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}

// sampleFile is one treble staff of two 4/4 measures:
//
//	<c' e'>4 r4 fis'2~ | fis'4 \tuplet 3/2 { b'8 a'8 g'8 } f,4
//
// with a second voice note in the second measure and a change to
// bass clef before the last note.
func sampleFile() []byte {
	return join(
		fileHeader(1, 1, 1, 2),
		staffBlock("Flute", 0),
		pageBlock(),
		lineBlock(0, 2, 1),
		measureBlock(4, 4,
			noteElem(0, 0, 3, 0, 0, 0, 60),
			noteElem(0, 0, 3, 0, 0, 2, 64),
			restElem(240, 3),
			noteElem(480, 0, 2, 0, 0, 3, 66),
			tieElem(480),
		),
		measureBlock(4, 4,
			noteElem(0, 1, 3, 0, 0, 0, 60),
			noteElem(0, 0, 3, 0, 0, 3, 66),
			noteElem(240, 0, 4, 0, 0x32, 6, 71),
			noteElem(320, 0, 4, 0, 0x32, 5, 69),
			noteElem(400, 0, 4, 0, 0x32, 4, 67),
			clefElem(720, 1),
			noteElem(720, 0, 3, 0, 0, 1, 41),
		),
	)
}

func TestReadData(t *testing.T) {
	c := qt.New(t)
	d, err := ReadData(sampleFile())
	c.Assert(err, qt.IsNil)
	c.Assert(d.Header.String(), qt.Equals, "lines 1 pages 1 staffs 1 (1 per system) measures 2")
	c.Assert(d.Staffs, qt.HasLen, 1)
	c.Assert(d.Staffs[0].Name(), qt.Equals, "Flute")
	c.Assert(d.Pages, qt.HasLen, 1)
	c.Assert(d.Lines, qt.HasLen, 1)
	c.Assert(d.Lines[0].MeasureCount, qt.Equals, byte(2))
	c.Assert(d.Lines[0].Staffs, qt.HasLen, 1)
	c.Assert(d.Measures, qt.HasLen, 2)

	m := d.Measures[1]
	c.Assert(m.TimeSignature(), qt.Equals, "4/4")
	c.Assert(m.AbsTick, qt.Equals, 960)
	c.Assert(m.Elems, qt.HasLen, 7)
	c.Assert(m.Elems[0].Voice(), qt.Equals, 1)
	c.Assert(m.Elems[2].Kind(), qt.Equals, KindNote)
	c.Assert(m.Elems[2].AbsTick(), qt.Equals, 1200)
	c.Assert(m.Elems[2].Ticks(), qt.Equals, 80)
	n := m.Elems[2].Payload.(*Note)
	c.Assert(n.Semitone, qt.Equals, byte(71))
	c.Assert(n.Position, qt.Equals, int8(6))
	c.Assert(m.Elems[5].Payload.(*Clef).Type, qt.Equals, byte(1))
	c.Assert(m.Elems[5].Ticks(), qt.Equals, 0)
}

func TestReadDataErrors(t *testing.T) {
	c := qt.New(t)
	good := sampleFile()

	_, err := ReadData(good[:100])
	c.Assert(errgo.Cause(err), qt.Equals, ErrTruncated)
	c.Assert(err, qt.ErrorMatches, "header: want 194 bytes at offset 0, have 100")

	bad := append([]byte(nil), good...)
	copy(bad, "XXXX")
	_, err = ReadData(bad)
	c.Assert(errgo.Cause(err), qt.Equals, ErrBadTag)

	// Corrupt the first measure tag.
	bad = append([]byte(nil), good...)
	off := 194 + 242 + 34 + 8 + lineHeaderSize + lineStaffSize
	copy(bad[off:], "MEAX")
	_, err = ReadData(bad)
	c.Assert(errgo.Cause(err), qt.Equals, ErrBadTag)
	c.Assert(err, qt.ErrorMatches, `measure 0: got "MEAX" at offset .*`)

	// An element claiming more bytes than the measure holds.
	bad = append([]byte(nil), good...)
	bad[off+measHeaderSize+3] = 200
	_, err = ReadData(bad)
	c.Assert(errgo.Cause(err), qt.Equals, ErrTruncated)
}
