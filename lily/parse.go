package lily

import (
	"strconv"
	"strings"

	errgo "gopkg.in/errgo.v1"

	"go-scoredit/quant"
)

var (
	ErrBadPitch    = errgo.New("bad pitch")
	ErrBadDuration = errgo.New("bad duration")
)

var notenames = map[byte]int{
	'c': 0, 'd': 1, 'e': 2, 'f': 3, 'g': 4, 'a': 5, 'b': 6,
}

// ParsePitch parses a pitch in LilyPond's Dutch note names, e.g.
// "fis'", "bes,", "c".
func ParsePitch(s string) (Pitch, error) {
	var p Pitch
	if s == "" {
		return p, errgo.WithCausef(nil, ErrBadPitch, "empty pitch")
	}
	n, ok := notenames[s[0]]
	if !ok {
		return p, errgo.WithCausef(nil, ErrBadPitch, "bad note name in %q", s)
	}
	p.Notename = n
	rest := s[1:]

	// "as" and "es" are the short forms of "aes" and "ees".
	if (s[0] == 'a' || s[0] == 'e') && strings.HasPrefix(rest, "s") && !strings.HasPrefix(rest, "is") {
		rest = "e" + rest
	}
	for _, alt := range []struct {
		suffix string
		delta  int
	}{{"isis", 2}, {"eses", -2}, {"is", 1}, {"es", -1}} {
		if strings.HasPrefix(rest, alt.suffix) {
			p.Alteration = alt.delta
			rest = rest[len(alt.suffix):]
			break
		}
	}

	p.Octave = -1
	switch {
	case strings.Trim(rest, "'") == "":
		p.Octave += len(rest)
	case strings.Trim(rest, ",") == "":
		p.Octave -= len(rest)
	default:
		return Pitch{}, errgo.WithCausef(nil, ErrBadPitch, "bad octave marks in %q", s)
	}
	return p, nil
}

// ParseChord parses a single pitch or a chord of the form "<c' e' g'>".
func ParseChord(s string) ([]Pitch, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<") {
		if !strings.HasSuffix(s, ">") {
			return nil, errgo.WithCausef(nil, ErrBadPitch, "unterminated chord %q", s)
		}
		s = s[1 : len(s)-1]
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, errgo.WithCausef(nil, ErrBadPitch, "empty chord")
	}
	var ps []Pitch
	for _, f := range fields {
		p, err := ParsePitch(f)
		if err != nil {
			return nil, errgo.Mask(err, errgo.Is(ErrBadPitch))
		}
		ps = append(ps, p)
	}
	return ps, nil
}

// ParseDuration parses "4", "2.", "16" and the like.
func ParseDuration(s string) (quant.Duration, error) {
	var d quant.Duration
	if strings.HasSuffix(s, ".") {
		d.Dotted = true
		s = s[:len(s)-1]
	}
	if strings.HasSuffix(s, ".") {
		return d, errgo.WithCausef(nil, ErrBadDuration, "double dots are not supported")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n&(n-1) != 0 {
		return d, errgo.WithCausef(nil, ErrBadDuration, "%q is not a power of two", s)
	}
	for n > 1 {
		n >>= 1
		d.Log++
	}
	return d, nil
}
