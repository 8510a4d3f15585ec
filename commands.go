package main

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	errgo "gopkg.in/errgo.v1"

	"go-scoredit/encore"
	"go-scoredit/engine"
	"go-scoredit/history"
	"go-scoredit/lily"
	"go-scoredit/quant"
	"go-scoredit/score"
	"go-scoredit/store"
)

var newCmd = &cobra.Command{
	Use:   "new NAME",
	Short: "Create an empty document",
	Args:  cobra.ExactArgs(1),
	RunE:  runNew,
}

var selectCmd = &cobra.Command{
	Use:   "select NAME",
	Short: "Move the cursor",
	Long: `Move the cursor of a document. --element is an index into the measure;
-1 puts the cursor after the last element.`,
	Args: cobra.ExactArgs(1),
	RunE: runSelect,
}

var insertCmd = &cobra.Command{
	Use:   "insert NAME",
	Short: "Place a note, chord or rest at the cursor",
	Long: `Place a value at the cursor. In overwrite mode the value replaces what it
covers; in insert mode it pushes the rest of the measure back. Values
that run past the end of the measure are split into tied fragments
continued in the next measures, which are created as needed.

Examples:
  scoredit insert song --pitch "c'" --dur 4
  scoredit insert song --pitch "<c' e' g'>" --dur 2.
  scoredit insert song --rest --dur 8 --tuplet 3/2`,
	Args: cobra.ExactArgs(1),
	RunE: runInsert,
}

var showCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Print a document as LilyPond",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var exportCmd = &cobra.Command{
	Use:   "export NAME",
	Short: "Write a document as LilyPond or MIDI",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import GLOB...",
	Short: "Import Encore files",
	Long: `Import Encore (.enc) files as new documents named after the file.
Patterns may use ** to match directories.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Dump the structure of an Encore file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var undoCmd = &cobra.Command{
	Use:   "undo NAME",
	Short: "Revert a document to its previous revision",
	Args:  cobra.ExactArgs(1),
	RunE:  runUndo,
}

var logCmd = &cobra.Command{
	Use:   "log NAME",
	Short: "List the revisions of a document, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runLog,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var (
	newTracks   int
	newMeasures int
	newTime     string

	selTrack   int
	selMeasure int
	selElement int

	insPitch  string
	insRest   bool
	insDur    string
	insTuplet string
	insMode   string

	exportFormat string
	exportOut    string

	logLimit int
)

func init() {
	newCmd.Flags().IntVar(&newTracks, "tracks", 1, "Number of tracks")
	newCmd.Flags().IntVar(&newMeasures, "measures", 1, "Number of empty measures per track")
	newCmd.Flags().StringVar(&newTime, "time", "", "Time signature (default from config)")

	selectCmd.Flags().IntVar(&selTrack, "track", 0, "Track index")
	selectCmd.Flags().IntVar(&selMeasure, "measure", 0, "Measure index")
	selectCmd.Flags().IntVar(&selElement, "element", -1, "Element index, -1 for the end of the measure")

	insertCmd.Flags().StringVarP(&insPitch, "pitch", "p", "", "LilyPond pitch or chord, e.g. a' or <c' e'>")
	insertCmd.Flags().BoolVarP(&insRest, "rest", "r", false, "Insert a rest")
	insertCmd.Flags().StringVarP(&insDur, "dur", "d", "4", "LilyPond duration, e.g. 4 or 2.")
	insertCmd.Flags().StringVar(&insTuplet, "tuplet", "", "Tuplet ratio ACTUAL/NORMAL, e.g. 3/2")
	insertCmd.Flags().StringVarP(&insMode, "mode", "m", "", "overwrite or insert (default from config)")

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "ly or midi (default from the output name)")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Output file (default stdout)")

	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "Number of revisions to show, 0 for all")

	rootCmd.AddCommand(newCmd, selectCmd, insertCmd, showCmd, exportCmd, importCmd, inspectCmd, undoCmd, logCmd, listCmd)
}

// fail wraps err with a message for the user. The errgo cause of err
// selects the fault tag and so the exit status.
func fail(err error, issue string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fault.Wrap(err,
		fmsg.WithDesc(err.Error(), fmt.Sprintf(issue, a...)+": "+errgo.Cause(err).Error()),
		ftag.With(kindOf(err)))
}

func kindOf(err error) ftag.Kind {
	cause := errgo.Cause(err)
	switch cause {
	case store.ErrDocumentNotFound,
		engine.ErrTrackNotFound,
		engine.ErrContainerNotFound,
		engine.ErrElementNotFound:
		return ftag.NotFound
	case store.ErrDocumentExists:
		return ftag.AlreadyExists
	case engine.ErrInvalidPitch,
		engine.ErrInvalidMode,
		engine.ErrContainerOverfull,
		lily.ErrBadPitch,
		lily.ErrBadDuration,
		quant.ErrFractional,
		quant.ErrUnrepresentable,
		quant.ErrBadTimeSignature,
		store.ErrNoParent,
		encore.ErrBadTag,
		encore.ErrTruncated:
		return ftag.InvalidArgument
	}
	if os.IsNotExist(cause) {
		return ftag.NotFound
	}
	return ftag.Internal
}

func openDB() (*store.DB, error) {
	db, err := store.Open(cfg.DataPath)
	if err != nil {
		return nil, fail(err, "Cannot open %s", cfg.DataPath)
	}
	return db, nil
}

// withTx runs fn in a transaction, committing when it succeeds.
func withTx(db *store.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx()
	if err != nil {
		return errgo.Notef(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			logger.Errorf("rollback: %v", rerr)
		}
		return errgo.Mask(err, errgo.Any)
	}
	if err := tx.Commit(); err != nil {
		return errgo.Notef(err, "committing")
	}
	return nil
}

func runNew(cmd *cobra.Command, args []string) error {
	name := args[0]
	ts, err := cfg.TimeSig()
	if newTime != "" {
		ts, err = score.ParseTimeSignature(newTime)
	}
	if err != nil {
		return fail(err, "Bad time signature")
	}
	if _, err := cfg.Table().Capacity(ts.Num, ts.Den); err != nil {
		return fail(err, "Time signature %s does not fit resolution %d", ts, cfg.Resolution)
	}
	if newTracks < 1 || newMeasures < 1 {
		return fault.New("bad document shape",
			fmsg.WithDesc("bad document shape", "A document needs at least one track and one measure"),
			ftag.With(ftag.InvalidArgument))
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	doc := score.New(cfg.Resolution, newTracks, newMeasures, ts)
	var id int64
	err = withTx(db, func(tx *sql.Tx) error {
		var err error
		id, err = db.Create(tx, name, doc, score.Cursor{})
		return err
	})
	if err != nil {
		return fail(err, "Cannot create %q", name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s: %d track(s) of %d %s measure(s), revision %d\n", name, newTracks, newMeasures, ts, id)
	return nil
}

func runSelect(cmd *cobra.Command, args []string) error {
	name := args[0]
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	doc, _, err := db.Load(name)
	if err != nil {
		return fail(err, "Cannot load %q", name)
	}
	c, err := doc.Container(selTrack, selMeasure)
	if err != nil {
		return fail(err, "Cannot select in %q", name)
	}
	cur := score.Cursor{Track: selTrack, Container: selMeasure}
	switch {
	case selElement == -1:
	case selElement >= 0 && selElement < len(c.Elements):
		cur.Element = c.Elements[selElement].ID
	default:
		err := errgo.WithCausef(nil, engine.ErrElementNotFound, "element %d of %d", selElement, len(c.Elements))
		return fail(err, "Cannot select in %q", name)
	}

	err = withTx(db, func(tx *sql.Tx) error {
		_, _, err := db.SaveRevision(tx, name, doc, cur, "select")
		return err
	})
	if err != nil {
		return fail(err, "Cannot save %q", name)
	}
	fmt.Fprintln(cmd.OutOrStdout(), cur)
	return nil
}

// request builds the engine request from the insert flags.
func request() (engine.Request, error) {
	var req engine.Request
	if insRest == (insPitch != "") {
		return req, errgo.WithCausef(nil, engine.ErrInvalidPitch, "need exactly one of --pitch and --rest")
	}
	d, err := lily.ParseDuration(insDur)
	if err != nil {
		return req, errgo.Mask(err, errgo.Any)
	}
	if insTuplet != "" {
		if _, err := fmt.Sscanf(insTuplet, "%d/%d", &d.Tuplet.Actual, &d.Tuplet.Normal); err != nil || d.Tuplet.Actual <= 0 || d.Tuplet.Normal <= 0 {
			return req, errgo.WithCausef(nil, lily.ErrBadDuration, "bad tuplet %q", insTuplet)
		}
	}
	mode := cfg.DefaultMode
	if insMode != "" {
		mode = insMode
	}
	m, err := engine.ParseMode(mode)
	if err != nil {
		return req, errgo.Mask(err, errgo.Any)
	}
	return engine.Request{Rest: insRest, Pitch: insPitch, Duration: d, Mode: m}, nil
}

func runInsert(cmd *cobra.Command, args []string) error {
	name := args[0]
	req, err := request()
	if err != nil {
		return fail(err, "Bad request")
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	doc, cur, err := db.Load(name)
	if err != nil {
		return fail(err, "Cannot load %q", name)
	}
	ed := history.New(doc)
	sel := score.NewSelection(cur)
	fb, err := engine.New(ed, sel).Insert(req)
	if err != nil {
		return fail(err, "Cannot insert into %q", name)
	}
	for _, w := range fb.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	for _, msg := range fb.Info {
		fmt.Fprintln(cmd.OutOrStdout(), msg)
	}

	what := "r"
	if !req.Rest {
		what = req.Pitch
	}
	note := fmt.Sprintf("%s %s%v", req.Mode, what, req.Duration)
	err = withTx(db, func(tx *sql.Tx) error {
		_, _, err := db.SaveRevision(tx, name, ed.Document(), sel.CurrentCursor(), note)
		return err
	})
	if err != nil {
		return fail(err, "Cannot save %q", name)
	}
	fmt.Fprintln(cmd.OutOrStdout(), sel.CurrentCursor())
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	name := args[0]
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	doc, _, err := db.Load(name)
	if err != nil {
		return fail(err, "Cannot load %q", name)
	}
	src, err := renderLily(doc)
	if err != nil {
		return fail(err, "Cannot render %q", name)
	}
	fmt.Fprint(cmd.OutOrStdout(), src)
	return nil
}

func exportFormatFor(format, out string) (string, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(out)) {
		case ".mid", ".midi":
			format = "midi"
		default:
			format = "ly"
		}
	}
	switch format {
	case "ly", "midi":
		return format, nil
	}
	return "", fault.New("bad format",
		fmsg.WithDesc("bad format", fmt.Sprintf("Unknown format %q, want ly or midi", format)),
		ftag.With(ftag.InvalidArgument))
}

func runExport(cmd *cobra.Command, args []string) error {
	name := args[0]
	format, err := exportFormatFor(exportFormat, exportOut)
	if err != nil {
		return err
	}
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	doc, _, err := db.Load(name)
	if err != nil {
		return fail(err, "Cannot load %q", name)
	}

	w := cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fail(err, "Cannot create %s", exportOut)
		}
		defer f.Close()
		w = f
	}
	switch format {
	case "midi":
		err = writeMIDI(w, doc)
	default:
		var src string
		if src, err = renderLily(doc); err == nil {
			_, err = fmt.Fprint(w, src)
		}
	}
	if err != nil {
		return fail(err, "Cannot export %q", name)
	}
	logger.Infof("exported %s as %s", name, format)
	return nil
}

// documentName names an imported file after its base name.
func documentName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func runImport(cmd *cobra.Command, args []string) error {
	var files []string
	for _, pattern := range args {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return fault.Wrap(err,
				fmsg.WithDesc(err.Error(), fmt.Sprintf("Bad pattern %q", pattern)),
				ftag.With(ftag.InvalidArgument))
		}
		if len(matches) == 0 {
			return fault.New("no match",
				fmsg.WithDesc("no match", fmt.Sprintf("No file matches %q", pattern)),
				ftag.With(ftag.NotFound))
		}
		files = append(files, matches...)
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return fail(err, "Cannot read %s", path)
		}
		data, err := encore.ReadData(content)
		if err != nil {
			return fail(err, "Cannot decode %s", path)
		}
		doc, err := data.Document()
		if err != nil {
			return fail(err, "Cannot convert %s", path)
		}
		name := documentName(path)
		err = withTx(db, func(tx *sql.Tx) error {
			_, err := db.Create(tx, name, doc, score.Cursor{})
			return err
		})
		if err != nil {
			return fail(err, "Cannot import %s", path)
		}
		n, _ := doc.NumContainers(0)
		fmt.Fprintf(cmd.OutOrStdout(), "imported %s as %s: %d track(s), %d measure(s)\n", path, name, len(doc.Tracks), n)
	}
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fail(err, "Cannot read %s", args[0])
	}
	data, err := encore.ReadData(content)
	if err != nil {
		return fail(err, "Cannot decode %s", args[0])
	}
	inspect(cmd.OutOrStdout(), data)
	return nil
}

func runUndo(cmd *cobra.Command, args []string) error {
	name := args[0]
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	var id int64
	err = withTx(db, func(tx *sql.Tx) error {
		var err error
		id, err = db.Undo(tx, name)
		return err
	})
	if err != nil {
		return fail(err, "Cannot undo %q", name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: head at revision %d\n", name, id)
	return nil
}

func runLog(cmd *cobra.Command, args []string) error {
	name := args[0]
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	revs, err := db.History(name)
	if err != nil {
		return fail(err, "Cannot read history of %q", name)
	}
	if logLimit > 0 && len(revs) > logLimit {
		revs = revs[:logLimit]
	}
	out := cmd.OutOrStdout()
	for _, r := range revs {
		fmt.Fprintf(out, "%4d %s %s %-24s %s\n",
			r.ID, hex.EncodeToString(r.Digest)[:12], r.CreatedAt.Format("2006-01-02 15:04:05"), r.Note, r.Cursor)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	names, err := db.Documents()
	if err != nil {
		return fail(err, "Cannot list documents")
	}
	for _, n := range names {
		fmt.Fprintln(cmd.OutOrStdout(), n)
	}
	return nil
}
