package engine

import (
	"github.com/juju/loggo"
	errgo "gopkg.in/errgo.v1"

	"go-scoredit/lily"
	"go-scoredit/quant"
	"go-scoredit/score"
)

var logger = loggo.GetLogger("scoredit.engine")

// Engine places values at the cursor of a selection.
type Engine struct {
	ed       Editor
	sel      Selection
	validate PitchValidator
}

// New returns an engine that edits ed at the cursor held by sel.
// Pitches are validated with lily.ParseChord.
func New(ed Editor, sel Selection) *Engine {
	return &Engine{
		ed:       ed,
		sel:      sel,
		validate: lily.ParseChord,
	}
}

// SetValidator replaces the pitch validator.
func (e *Engine) SetValidator(v PitchValidator) {
	e.validate = v
}

// placement is the state carried from one measure to the next.
type placement struct {
	// pending holds the values still to be placed, in order.
	pending []quant.Duration
	// continuation forces the next placement to start at quant 0.
	continuation bool
	done         bool
	feedback     Feedback
}

// Insert places req at the current cursor as one transaction. On error
// the transaction is rolled back and the cursor restored.
func (e *Engine) Insert(req Request) (*Feedback, error) {
	var pitches []lily.Pitch
	if !req.Rest {
		ps, err := e.validate(req.Pitch)
		if err != nil {
			return nil, errgo.WithCausef(err, ErrInvalidPitch, "invalid pitch %q", req.Pitch)
		}
		pitches = ps
	}
	switch req.Mode {
	case Overwrite, Insert:
	default:
		return nil, errgo.WithCausef(nil, ErrInvalidMode, "%v", req.Mode)
	}
	if _, err := e.ed.Table().Length(req.Duration); err != nil {
		return nil, errgo.Mask(err, errgo.Is(quant.ErrFractional))
	}

	orig := e.sel.CurrentCursor()
	if err := e.ed.Begin(); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	st := placement{pending: []quant.Duration{req.Duration}}
	for !st.done {
		next, err := e.step(req, pitches, st)
		if err != nil {
			if rerr := e.ed.Rollback(); rerr != nil {
				logger.Errorf("cannot roll back: %v", rerr)
			}
			e.sel.SetCursor(orig)
			return nil, errgo.Mask(err, errgo.Any)
		}
		st = next
	}
	if err := e.ed.Commit(); err != nil {
		e.sel.SetCursor(orig)
		return nil, errgo.Notef(err, "cannot commit insertion")
	}
	return &st.feedback, nil
}

// step places as much of st.pending as fits in the measure under the
// cursor and returns the state for the next measure.
func (e *Engine) step(req Request, pitches []lily.Pitch, st placement) (placement, error) {
	table := e.ed.Table()
	cur := e.sel.CurrentCursor()
	c, err := e.ed.Container(cur.Track, cur.Container)
	if err != nil {
		return st, errgo.Mask(err, errgo.Any)
	}
	snapshot := c.Snapshot()
	tl, err := newTimeline(table, snapshot)
	if err != nil {
		return st, errgo.Mask(err, errgo.Any)
	}

	start := 0
	if !st.continuation {
		if start, err = tl.startQuantFor(cur); err != nil {
			return st, errgo.Mask(err, errgo.Any)
		}
	}
	st.continuation = false

	capacity, err := RemainingCapacity(table, c, start)
	if err != nil {
		return st, errgo.Mask(err, errgo.Any)
	}
	need, err := table.Sum(st.pending)
	if err != nil {
		return st, errgo.Mask(err, errgo.Any)
	}
	logger.Debugf("track %d measure %d: start %d capacity %d need %d", cur.Track, cur.Container, start, capacity, need)

	head := st.pending
	var rest []quant.Duration
	if need > capacity {
		if head, err = table.Breakdown(capacity); err != nil {
			return st, errgo.Mask(err, errgo.Any)
		}
		if rest, err = table.Breakdown(need - capacity); err != nil {
			return st, errgo.Mask(err, errgo.Any)
		}
		if len(head) > 0 {
			logger.Infof("splitting %d quants at measure %d: %d here, %d carried", need, cur.Container, capacity, need-capacity)
			st.feedback.infof("split across containers")
		}
	}

	anchor := tl.anchor(start)
	deleted := make(map[score.ElementID]bool)
	at := start
	for i, d := range head {
		n, err := table.Length(d)
		if err != nil {
			return st, errgo.Mask(err, errgo.Any)
		}
		if req.Mode == Overwrite {
			plan := tl.planOverwrite(at, n, deleted)
			for _, id := range plan.Remove {
				if err := e.ed.DeleteElement(cur.Track, cur.Container, id); err != nil {
					return st, errgo.Mask(err, errgo.Any)
				}
				deleted[id] = true
			}
			if len(plan.Remove) > 0 {
				st.feedback.warnf("Overwrote %d event(s)", len(plan.Remove))
			}
		}

		live, err := e.ed.Container(cur.Track, cur.Container)
		if err != nil {
			return st, errgo.Mask(err, errgo.Any)
		}
		idx, fill, err := GapFillers(table, live.Elements, at)
		if err != nil {
			return st, errgo.Mask(err, errgo.Any)
		}
		for _, f := range fill {
			if err := e.ed.InsertElement(cur.Track, cur.Container, idx, score.NewRest(f)); err != nil {
				return st, errgo.Mask(err, errgo.Any)
			}
			idx++
		}

		var el *score.Element
		if req.Rest {
			el = score.NewRest(d)
		} else {
			tied := len(rest) > 0 || i < len(head)-1
			el = score.NewChord(d, pitches, tied)
		}
		if err := e.ed.InsertElement(cur.Track, cur.Container, idx, el); err != nil {
			return st, errgo.Mask(err, errgo.Any)
		}

		next := score.Cursor{Track: cur.Track, Container: cur.Container}
		if id, ok := NextSurvivingElement(snapshot, anchor, deleted); ok {
			next.Element = id
		}
		e.sel.SetCursor(next)
		at += n
	}

	if err := checkCapacity(table, e.ed, cur); err != nil {
		return st, errgo.Mask(err, errgo.Is(ErrContainerOverfull))
	}

	if len(rest) == 0 {
		st.done = true
		return st, nil
	}

	count, err := e.ed.NumContainers(cur.Track)
	if err != nil {
		return st, errgo.Mask(err, errgo.Any)
	}
	next := cur.Container + 1
	if next >= count {
		if next, err = e.ed.CreateContainer(cur.Track); err != nil {
			return st, errgo.Mask(err, errgo.Any)
		}
		logger.Infof("created measure %d on track %d", next, cur.Track)
		st.feedback.infof("Created container %d", next+1)
	}
	e.sel.SetCursor(score.Cursor{Track: cur.Track, Container: next})
	st.pending = rest
	st.continuation = true
	return st, nil
}

// checkCapacity fails when the measure under cur holds more than its
// capacity. Only insert mode can get there: it pushes later elements
// back without removing any.
func checkCapacity(t quant.Table, doc Document, cur score.Cursor) error {
	c, err := doc.Container(cur.Track, cur.Container)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	capacity, err := c.Capacity(t)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	used, err := c.Used(t)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	if used > capacity {
		return errgo.WithCausef(nil, ErrContainerOverfull, "measure %d of track %d would hold %d quants, capacity %d", cur.Container, cur.Track, used, capacity)
	}
	return nil
}
