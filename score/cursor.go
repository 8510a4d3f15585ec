package score

import "fmt"

// Cursor is the edit position. A zero Element means "append at the end
// of the measure". The zero Cursor is track 0, measure 0, append.
type Cursor struct {
	Track     int       `json:"track"`
	Container int       `json:"measure"`
	Element   ElementID `json:"element,omitempty"`
}

func (c Cursor) String() string {
	if c.Element == "" {
		return fmt.Sprintf("track %d measure %d (end)", c.Track, c.Container)
	}
	return fmt.Sprintf("track %d measure %d element %s", c.Track, c.Container, c.Element)
}

// Selection is an in-memory selection store.
type Selection struct {
	cur Cursor
}

func NewSelection(c Cursor) *Selection {
	return &Selection{cur: c}
}

func (s *Selection) CurrentCursor() Cursor {
	return s.cur
}

func (s *Selection) SetCursor(c Cursor) {
	s.cur = c
}
