package encore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
	"strconv"

	"github.com/juju/loggo"
	errgo "gopkg.in/errgo.v1"
)

var logger = loggo.GetLogger("scoredit.encore")

var (
	ErrBadTag    = errgo.New("bad block tag")
	ErrTruncated = errgo.New("file truncated")
)

const (
	lineHeaderSize = 26
	lineStaffSize  = 30
	measHeaderSize = 62
	minElemSize    = 3
)

var endMarker = []byte{255, 255}

// ReadData decodes an Encore file.
func ReadData(c []byte) (*Data, error) {
	f := &Data{Raw: c}
	r := &reader{data: c}
	if err := r.block(&f.Header); err != nil {
		return nil, errgo.NoteMask(err, "header", errgo.Any)
	}
	logger.Debugf("header: %v", &f.Header)

	for i := 0; i < int(f.Header.StaffCount); i++ {
		s := &Staff{ID: i}
		if err := r.block(s); err != nil {
			return nil, errgo.NoteMask(err, fmt.Sprintf("staff %d", i), errgo.Any)
		}
		f.Staffs = append(f.Staffs, s)
	}

	for i := 0; i < int(f.Header.PageCount); i++ {
		p := &Page{ID: i}
		if err := r.block(p); err != nil {
			return nil, errgo.NoteMask(err, fmt.Sprintf("page %d", i), errgo.Any)
		}
		f.Pages = append(f.Pages, p)
	}

	for i := 0; i < int(f.Header.LineCount); i++ {
		l := &Line{ID: i}
		if err := r.block(l); err != nil {
			return nil, errgo.NoteMask(err, fmt.Sprintf("line %d", i), errgo.Any)
		}
		var err error
		if l.VarData, err = r.next(int(l.VarSize)); err != nil {
			return nil, errgo.NoteMask(err, fmt.Sprintf("line %d", i), errgo.Any)
		}
		fillFields(l.VarData, &l.LineData)
		if err := l.readStaffs(); err != nil {
			return nil, errgo.NoteMask(err, fmt.Sprintf("line %d", i), errgo.Any)
		}
		f.Lines = append(f.Lines, l)
	}

	abs := 0
	for i := 0; i < int(f.Header.MeasureCount); i++ {
		m := &Measure{ID: i, AbsTick: abs}
		if err := r.block(m); err != nil {
			return nil, errgo.NoteMask(err, fmt.Sprintf("measure %d", i), errgo.Any)
		}
		var err error
		if m.VarData, err = r.next(int(m.VarSize)); err != nil {
			return nil, errgo.NoteMask(err, fmt.Sprintf("measure %d", i), errgo.Any)
		}
		if err := m.readElems(); err != nil {
			return nil, errgo.NoteMask(err, fmt.Sprintf("measure %d", i), errgo.Any)
		}
		f.Measures = append(f.Measures, m)
		abs += int(m.DurTicks)
	}
	if r.off < len(c) {
		logger.Debugf("%d trailing bytes", len(c)-r.off)
	}
	return f, nil
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, errgo.WithCausef(nil, ErrTruncated, "want %d bytes at offset %d, have %d", n, r.off, len(r.data)-r.off)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// block fills a fixed-size tagged block. dest must have Raw and
// Offset fields; the size comes from Raw's "fixed" tag and the
// expected leading bytes from its "want" tag.
func (r *reader) block(dest interface{}) error {
	v := reflect.ValueOf(dest).Elem()
	rawField, ok := v.Type().FieldByName("Raw")
	if !ok {
		panic("no Raw field in " + v.Type().String())
	}
	sz, err := strconv.ParseInt(rawField.Tag.Get("fixed"), 0, 64)
	if err != nil {
		panic("bad fixed tag on " + v.Type().String())
	}
	off := r.off
	raw, err := r.next(int(sz))
	if err != nil {
		return errgo.Mask(err, errgo.Is(ErrTruncated))
	}
	if want := rawField.Tag.Get("want"); want != "" && !bytes.HasPrefix(raw, []byte(want)) {
		return errgo.WithCausef(nil, ErrBadTag, "got %q at offset %d, want %q", raw[:len(want)], off, want)
	}
	fillBlock(raw, off, dest)
	return nil
}

func (l *Line) readStaffs() error {
	if len(l.VarData) < lineHeaderSize {
		return errgo.WithCausef(nil, ErrTruncated, "line data of %d bytes", len(l.VarData))
	}
	d := l.VarData[lineHeaderSize:]
	if len(d)%lineStaffSize != 0 {
		return errgo.WithCausef(nil, ErrTruncated, "staff data of %d bytes is not a multiple of %d", len(d), lineStaffSize)
	}
	for len(d) > 0 {
		ls := &LineStaff{}
		fillFields(d[:lineStaffSize], ls)
		l.Staffs = append(l.Staffs, ls)
		d = d[lineStaffSize:]
	}
	return nil
}

func (m *Measure) readElems() error {
	r := m.VarData
	off := m.Offset + measHeaderSize
	for len(r) >= 4 && !bytes.HasPrefix(r, endMarker) {
		sz := int(r[3])
		if sz < minElemSize || sz > len(r) {
			return errgo.WithCausef(nil, ErrTruncated, "element of %d bytes at offset %d, %d left", sz, off, len(r))
		}
		e := readElem(r[:sz], off)
		e.Measure = m
		m.Elems = append(m.Elems, e)
		r = r[sz:]
		off += sz
	}
	if !bytes.Equal(r, endMarker) {
		logger.Warningf("measure %d: end marker not found, have %q", m.ID, r)
	}
	return nil
}

func readElem(raw []byte, off int) *Elem {
	e := &Elem{}
	fillBlock(raw, off, e)
	var p Payload
	switch e.Kind() {
	case KindClef:
		p = &Clef{}
	case KindKeyChange:
		p = &KeyChange{}
	case KindTie:
		p = &Tie{}
	case KindRest:
		p = &Rest{}
	case KindNote:
		p = &Note{}
	default:
		p = &Other{}
	}
	fillFields(raw, p)
	e.Payload = p
	return e
}

// fillBlock is fillFields that also sets the Raw and Offset fields.
func fillBlock(raw []byte, offset int, dest interface{}) {
	v := reflect.ValueOf(dest).Elem()
	v.FieldByName("Offset").SetInt(int64(offset))
	v.FieldByName("Raw").SetBytes(raw)
	fillFields(raw, dest)
}

// fillFields decodes every field carrying an "offset" tag from raw,
// little endian. Fields that do not fit in raw keep their zero value.
func fillFields(raw []byte, dest interface{}) {
	v := reflect.ValueOf(dest).Elem()
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		if sf.Anonymous {
			fillFields(raw, v.Field(i).Addr().Interface())
			continue
		}
		offStr := sf.Tag.Get("offset")
		if offStr == "" {
			continue
		}
		off, err := strconv.ParseInt(offStr, 0, 64)
		if err != nil {
			panic("bad offset tag on " + t.String() + "." + sf.Name)
		}
		f := v.Field(i)
		if int(off)+binary.Size(f.Interface()) > len(raw) {
			continue
		}
		binary.Read(bytes.NewReader(raw[off:]), binary.LittleEndian, f.Addr().Interface())
	}
}
