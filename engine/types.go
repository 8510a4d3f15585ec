// Package engine places notes and rests into a measure-structured
// timeline. It resolves overlaps with existing elements, splits values
// that do not fit into tied fragments continued in the following
// measures, and moves the edit cursor.
package engine

import (
	"fmt"

	errgo "gopkg.in/errgo.v1"

	"go-scoredit/lily"
	"go-scoredit/quant"
	"go-scoredit/score"
)

var (
	ErrInvalidPitch      = errgo.New("invalid pitch")
	ErrInvalidMode       = errgo.New("invalid insertion mode")
	ErrTrackNotFound     = score.ErrTrackNotFound
	ErrContainerNotFound = score.ErrContainerNotFound
	ErrElementNotFound   = errgo.New("element not found")
	ErrContainerOverfull = errgo.New("measure over capacity")
)

type Mode int

const (
	Overwrite Mode = iota
	Insert
)

func (m Mode) String() string {
	switch m {
	case Overwrite:
		return "overwrite"
	case Insert:
		return "insert"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "overwrite":
		return Overwrite, nil
	case "insert":
		return Insert, nil
	}
	return 0, errgo.WithCausef(nil, ErrInvalidMode, "unknown mode %q", s)
}

// Request describes one value to place at the current cursor.
type Request struct {
	Rest bool
	// Pitch is a LilyPond pitch or chord, e.g. "a'" or "<c' e' g'>".
	// Ignored for rests.
	Pitch    string
	Duration quant.Duration
	Mode     Mode
}

// Feedback collects the advisories of a successful insertion.
type Feedback struct {
	Warnings []string
	Info     []string
}

func (f *Feedback) warnf(format string, a ...interface{}) {
	f.Warnings = append(f.Warnings, fmt.Sprintf(format, a...))
}

func (f *Feedback) infof(format string, a ...interface{}) {
	f.Info = append(f.Info, fmt.Sprintf(format, a...))
}

// Document gives read access to the live document.
type Document interface {
	Table() quant.Table
	// Container returns the live measure; its element list reflects
	// every mutation issued so far.
	Container(track, index int) (*score.Container, error)
	NumContainers(track int) (int, error)
}

// Mutator applies undoable edits. Begin, Commit and Rollback group
// the edits of one insertion into a single step.
type Mutator interface {
	Begin() error
	Commit() error
	Rollback() error
	InsertElement(track, container, index int, e *score.Element) error
	DeleteElement(track, container int, id score.ElementID) error
	// CreateContainer appends a measure to track and returns its index.
	CreateContainer(track int) (int, error)
}

// Editor is a document together with its mutation service.
type Editor interface {
	Document
	Mutator
}

type Selection interface {
	CurrentCursor() score.Cursor
	SetCursor(score.Cursor)
}

// PitchValidator parses the pitch text of a request.
type PitchValidator func(string) ([]lily.Pitch, error)
