package main

import (
	"fmt"
	"io"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	errgo "gopkg.in/errgo.v1"

	"go-scoredit/score"
)

const (
	midiTempo    = 120
	midiVelocity = 100
	drumChannel  = 9
)

type noteEvent struct {
	tick int
	on   bool
	key  uint8
}

// writeMIDI writes doc as a type 1 MIDI file: a conductor track with
// tempo and meter, then one track per staff. One MIDI tick is one
// quant. Tied notes are held, not struck again.
func writeMIDI(w io.Writer, doc *score.Document) error {
	table := doc.Table()
	if table.PerWhole <= 0 || table.PerWhole%4 != 0 || table.PerWhole/4 > 0x7fff {
		return errgo.Newf("resolution %d has no MIDI equivalent", table.PerWhole)
	}
	s := smf.NewSMF1()
	s.TimeFormat = smf.MetricTicks(uint16(table.PerWhole / 4))

	starts, err := measureStarts(doc)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	if err := s.Add(conductorTrack(doc, starts)); err != nil {
		return errgo.NoteMask(err, "adding conductor track", errgo.Any)
	}

	for i, t := range doc.Tracks {
		events, end, err := trackEvents(doc, t, starts)
		if err != nil {
			return errgo.NoteMask(err, fmt.Sprintf("track %d", i), errgo.Any)
		}
		ch := uint8(i % 15)
		if ch >= drumChannel {
			ch++
		}
		var tr smf.Track
		tr.Add(0, smf.MetaTrackSequenceName(t.Name))
		last := 0
		for _, ev := range events {
			msg := midi.NoteOff(ch, ev.key)
			if ev.on {
				msg = midi.NoteOn(ch, ev.key, midiVelocity)
			}
			tr.Add(uint32(ev.tick-last), msg)
			last = ev.tick
		}
		tr.Close(uint32(end - last))
		if err := s.Add(tr); err != nil {
			return errgo.NoteMask(err, fmt.Sprintf("adding track %d", i), errgo.Any)
		}
	}

	if _, err := s.WriteTo(w); err != nil {
		return errgo.NoteMask(err, "writing MIDI", errgo.Any)
	}
	return nil
}

// measureStarts returns the start quant of every measure of the
// first track, plus the end of the last one. All tracks share the
// measure grid of the first.
func measureStarts(doc *score.Document) ([]int, error) {
	starts := []int{0}
	if len(doc.Tracks) == 0 {
		return starts, nil
	}
	table := doc.Table()
	pos := 0
	for i, c := range doc.Tracks[0].Containers {
		n, err := c.Capacity(table)
		if err != nil {
			return nil, errgo.NoteMask(err, fmt.Sprintf("measure %d", i), errgo.Any)
		}
		pos += n
		starts = append(starts, pos)
	}
	return starts, nil
}

func conductorTrack(doc *score.Document, starts []int) smf.Track {
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(midiTempo))
	last := 0
	if len(doc.Tracks) > 0 {
		var prev score.TimeSignature
		for i, c := range doc.Tracks[0].Containers {
			if i > 0 && c.TimeSig == prev {
				continue
			}
			prev = c.TimeSig
			tr.Add(uint32(starts[i]-last), smf.MetaMeter(uint8(c.TimeSig.Num), uint8(c.TimeSig.Den)))
			last = starts[i]
		}
	}
	tr.Close(uint32(starts[len(starts)-1] - last))
	return tr
}

// trackEvents returns the note events of t sorted by tick, note-offs
// first, and the end tick of the track.
func trackEvents(doc *score.Document, t *score.Track, starts []int) ([]noteEvent, int, error) {
	table := doc.Table()
	var events []noteEvent
	// held maps the keys tied into the next element to the end of
	// the element they were tied from.
	held := map[uint8]int{}
	end := 0
	for i, c := range t.Containers {
		if i+1 >= len(starts) {
			return nil, 0, errgo.Newf("measure %d is past the end of the first track", i)
		}
		pos := starts[i]
		for _, e := range c.Elements {
			n, err := e.Length(table)
			if err != nil {
				return nil, 0, errgo.NoteMask(err, fmt.Sprintf("measure %d", i), errgo.Any)
			}
			next := map[uint8]int{}
			if !e.Rest {
				for _, note := range e.Notes {
					k := note.Pitch.MIDIKey()
					if k < 0 || k > 127 {
						return nil, 0, errgo.Newf("measure %d: %v is out of MIDI range", i, &note.Pitch)
					}
					key := uint8(k)
					if _, ok := held[key]; ok {
						delete(held, key)
					} else {
						events = append(events, noteEvent{tick: pos, on: true, key: key})
					}
					if note.Tied {
						next[key] = pos + n
					} else {
						events = append(events, noteEvent{tick: pos + n, key: key})
					}
				}
			}
			for key, at := range held {
				events = append(events, noteEvent{tick: at, key: key})
			}
			held = next
			pos += n
		}
		end = starts[i+1]
	}
	for key, at := range held {
		events = append(events, noteEvent{tick: at, key: key})
	}
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.tick != b.tick {
			return a.tick < b.tick
		}
		if a.on != b.on {
			return !a.on
		}
		return a.key < b.key
	})
	return events, end, nil
}
