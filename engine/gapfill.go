package engine

import (
	"fmt"

	errgo "gopkg.in/errgo.v1"

	"go-scoredit/quant"
	"go-scoredit/score"
)

// GapFillers scans elems until it reaches target and returns the
// insertion index found. If the elements end short of target, it also
// returns the rests that bridge the gap; they go in before the new
// element.
func GapFillers(t quant.Table, elems []*score.Element, target int) (int, []quant.Duration, error) {
	pos := 0
	idx := 0
	for idx < len(elems) && pos < target {
		n, err := elems[idx].Length(t)
		if err != nil {
			return 0, nil, errgo.NoteMask(err, fmt.Sprintf("element %s", elems[idx].ID), errgo.Any)
		}
		pos += n
		idx++
	}
	if pos >= target {
		return idx, nil, nil
	}
	fill, err := t.Breakdown(target - pos)
	if err != nil {
		return 0, nil, errgo.Mask(err, errgo.Any)
	}
	return idx, fill, nil
}
