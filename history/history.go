// Package history applies undoable edits to a score document. Edits
// issued between Begin and Commit form one undo step.
package history

import (
	"github.com/juju/loggo"
	errgo "gopkg.in/errgo.v1"

	"go-scoredit/quant"
	"go-scoredit/score"
)

var logger = loggo.GetLogger("scoredit.history")

var (
	ErrTxOpen         = errgo.New("transaction already open")
	ErrNoTx           = errgo.New("no transaction open")
	ErrNothingToUndo  = errgo.New("nothing to undo")
	ErrNothingToRedo  = errgo.New("nothing to redo")
	ErrBadIndex       = errgo.New("element index out of range")
	ErrElementMissing = errgo.New("element not found")
)

type opKind int

const (
	opInsert opKind = iota
	opDelete
	opCreate
)

// op is one applied edit, with enough state to reverse it.
type op struct {
	kind      opKind
	track     int
	container int
	index     int
	elem      *score.Element
	timeSig   score.TimeSignature
}

// Editor owns a document and records every edit applied to it.
type Editor struct {
	doc   *score.Document
	inTx  bool
	tx    []op
	undo  [][]op
	redo  [][]op
	limit int
}

func New(doc *score.Document) *Editor {
	return &Editor{doc: doc, limit: 1000}
}

// SetLimit bounds the number of retained undo steps.
func (ed *Editor) SetLimit(n int) {
	ed.limit = n
}

func (ed *Editor) Document() *score.Document {
	return ed.doc
}

func (ed *Editor) Table() quant.Table {
	return ed.doc.Table()
}

func (ed *Editor) Container(track, index int) (*score.Container, error) {
	c, err := ed.doc.Container(track, index)
	return c, errgo.Mask(err, errgo.Any)
}

func (ed *Editor) NumContainers(track int) (int, error) {
	n, err := ed.doc.NumContainers(track)
	return n, errgo.Mask(err, errgo.Any)
}

func (ed *Editor) Begin() error {
	if ed.inTx {
		return ErrTxOpen
	}
	ed.inTx = true
	ed.tx = nil
	return nil
}

func (ed *Editor) Commit() error {
	if !ed.inTx {
		return ErrNoTx
	}
	ed.inTx = false
	ed.push(ed.tx)
	ed.tx = nil
	return nil
}

func (ed *Editor) Rollback() error {
	if !ed.inTx {
		return ErrNoTx
	}
	ed.inTx = false
	logger.Debugf("rolling back %d edits", len(ed.tx))
	ed.revert(ed.tx)
	ed.tx = nil
	return nil
}

// push records a finished step and clears the redo stack.
func (ed *Editor) push(ops []op) {
	if len(ops) == 0 {
		return
	}
	ed.undo = append(ed.undo, ops)
	ed.redo = nil
	for ed.limit > 0 && len(ed.undo) > ed.limit {
		ed.undo = ed.undo[1:]
	}
}

// record adds an applied op to the open transaction, or makes it a step
// of its own.
func (ed *Editor) record(o op) {
	if ed.inTx {
		ed.tx = append(ed.tx, o)
		return
	}
	ed.push([]op{o})
}

func (ed *Editor) InsertElement(track, container, index int, e *score.Element) error {
	c, err := ed.doc.Container(track, container)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	if index < 0 || index > len(c.Elements) {
		return errgo.WithCausef(nil, ErrBadIndex, "index %d in measure of %d elements", index, len(c.Elements))
	}
	o := op{kind: opInsert, track: track, container: container, index: index, elem: e}
	ed.apply(o)
	ed.record(o)
	return nil
}

func (ed *Editor) DeleteElement(track, container int, id score.ElementID) error {
	c, err := ed.doc.Container(track, container)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	i := c.Index(id)
	if i < 0 {
		return errgo.WithCausef(nil, ErrElementMissing, "element %s", id)
	}
	o := op{kind: opDelete, track: track, container: container, index: i, elem: c.Elements[i]}
	ed.apply(o)
	ed.record(o)
	return nil
}

// CreateContainer appends a measure with the time signature of the
// track's last measure (4/4 on an empty track).
func (ed *Editor) CreateContainer(track int) (int, error) {
	t, err := ed.doc.Track(track)
	if err != nil {
		return 0, errgo.Mask(err, errgo.Any)
	}
	ts := score.TimeSignature{Num: 4, Den: 4}
	if n := len(t.Containers); n > 0 {
		ts = t.Containers[n-1].TimeSig
	}
	o := op{kind: opCreate, track: track, container: len(t.Containers), timeSig: ts}
	ed.apply(o)
	ed.record(o)
	return o.container, nil
}

// apply performs o. Indices were checked when o was first issued, and
// undo/redo replay ops in an order that keeps them valid.
func (ed *Editor) apply(o op) {
	t := ed.doc.Tracks[o.track]
	switch o.kind {
	case opInsert:
		c := t.Containers[o.container]
		c.Elements = append(c.Elements, nil)
		copy(c.Elements[o.index+1:], c.Elements[o.index:])
		c.Elements[o.index] = o.elem
	case opDelete:
		c := t.Containers[o.container]
		c.Elements = append(c.Elements[:o.index], c.Elements[o.index+1:]...)
	case opCreate:
		t.Containers = append(t.Containers, &score.Container{TimeSig: o.timeSig})
	}
}

// reverse turns an element insert into a delete and vice versa.
// Measure creation is reversed by unapply.
func reverse(o op) op {
	switch o.kind {
	case opInsert:
		o.kind = opDelete
	case opDelete:
		o.kind = opInsert
	}
	return o
}

func (ed *Editor) unapply(o op) {
	if o.kind == opCreate {
		t := ed.doc.Tracks[o.track]
		t.Containers = t.Containers[:o.container]
		return
	}
	ed.apply(reverse(o))
}

func (ed *Editor) revert(ops []op) {
	for i := len(ops) - 1; i >= 0; i-- {
		ed.unapply(ops[i])
	}
}

func (ed *Editor) CanUndo() bool {
	return len(ed.undo) > 0
}

func (ed *Editor) CanRedo() bool {
	return len(ed.redo) > 0
}

// Undo reverts the last committed step.
func (ed *Editor) Undo() error {
	if ed.inTx {
		return ErrTxOpen
	}
	if len(ed.undo) == 0 {
		return ErrNothingToUndo
	}
	ops := ed.undo[len(ed.undo)-1]
	ed.undo = ed.undo[:len(ed.undo)-1]
	ed.revert(ops)
	ed.redo = append(ed.redo, ops)
	return nil
}

// Redo reapplies the last undone step.
func (ed *Editor) Redo() error {
	if ed.inTx {
		return ErrTxOpen
	}
	if len(ed.redo) == 0 {
		return ErrNothingToRedo
	}
	ops := ed.redo[len(ed.redo)-1]
	ed.redo = ed.redo[:len(ed.redo)-1]
	for _, o := range ops {
		ed.apply(o)
	}
	ed.undo = append(ed.undo, ops)
	return nil
}
