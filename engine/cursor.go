package engine

import "go-scoredit/score"

// NextSurvivingElement returns the first element of snapshot at or
// after from whose id is not in deleted. snapshot must be the element
// list as it was before the edit; the live list has shifted indices.
func NextSurvivingElement(snapshot []*score.Element, from int, deleted map[score.ElementID]bool) (score.ElementID, bool) {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(snapshot); i++ {
		if !deleted[snapshot[i].ID] {
			return snapshot[i].ID, true
		}
	}
	return "", false
}
