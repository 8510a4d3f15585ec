package engine

import (
	"fmt"

	errgo "gopkg.in/errgo.v1"

	"go-scoredit/quant"
	"go-scoredit/score"
)

// timeline is a measure's element list with local start positions.
type timeline struct {
	elems  []*score.Element
	starts []int
	lens   []int
	end    int
}

func newTimeline(t quant.Table, elems []*score.Element) (*timeline, error) {
	tl := &timeline{elems: elems}
	for _, e := range elems {
		n, err := e.Length(t)
		if err != nil {
			return nil, errgo.NoteMask(err, fmt.Sprintf("element %s", e.ID), errgo.Any)
		}
		tl.starts = append(tl.starts, tl.end)
		tl.lens = append(tl.lens, n)
		tl.end += n
	}
	return tl, nil
}

// anchor returns the index of the first element starting at or after q.
func (tl *timeline) anchor(q int) int {
	for i, s := range tl.starts {
		if s >= q {
			return i
		}
	}
	return len(tl.elems)
}

// StartQuantFor returns where an insertion at cur begins: the start of
// the selected element, or the end of the last element when cur
// selects nothing.
func StartQuantFor(t quant.Table, c *score.Container, cur score.Cursor) (int, error) {
	tl, err := newTimeline(t, c.Elements)
	if err != nil {
		return 0, errgo.Mask(err, errgo.Any)
	}
	return tl.startQuantFor(cur)
}

func (tl *timeline) startQuantFor(cur score.Cursor) (int, error) {
	if cur.Element == "" {
		return tl.end, nil
	}
	for i, e := range tl.elems {
		if e.ID == cur.Element {
			return tl.starts[i], nil
		}
	}
	return 0, errgo.WithCausef(nil, ErrElementNotFound, "element %s not in %s", cur.Element, cur)
}

// RemainingCapacity returns the quants left between start and the end
// of the measure, never negative.
func RemainingCapacity(t quant.Table, c *score.Container, start int) (int, error) {
	capacity, err := c.Capacity(t)
	if err != nil {
		return 0, errgo.Mask(err, errgo.Any)
	}
	if start >= capacity {
		return 0, nil
	}
	return capacity - start, nil
}

// OverwritePlan holds the elements an insertion would displace.
type OverwritePlan struct {
	Remove []score.ElementID
}

// PlanOverwrite returns every element of elems that intersects
// [start, start+length). Partially covered elements are removed whole.
func PlanOverwrite(t quant.Table, elems []*score.Element, start, length int) (OverwritePlan, error) {
	tl, err := newTimeline(t, elems)
	if err != nil {
		return OverwritePlan{}, errgo.Mask(err, errgo.Any)
	}
	return tl.planOverwrite(start, length, nil), nil
}

// planOverwrite skips ids already in gone.
func (tl *timeline) planOverwrite(start, length int, gone map[score.ElementID]bool) OverwritePlan {
	var plan OverwritePlan
	end := start + length
	for i, e := range tl.elems {
		s, n := tl.starts[i], tl.lens[i]
		if s >= end {
			break
		}
		if gone[e.ID] {
			continue
		}
		if s < end && s+n > start {
			plan.Remove = append(plan.Remove, e.ID)
		}
	}
	return plan
}
