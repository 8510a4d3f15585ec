// Package store keeps score documents and their revision history in
// SQLite.
package store

import (
	"bytes"
	"database/sql"
	_ "embed"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/juju/loggo"
	"github.com/klauspost/compress/zstd"
	errgo "gopkg.in/errgo.v1"
	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"

	"go-scoredit/score"
)

var logger = loggo.GetLogger("scoredit.store")

//go:embed schema.sql
var schemaSQL string

//go:embed pragmas.sql
var pragmasSQL string

var (
	ErrDocumentNotFound = errgo.New("document not found")
	ErrDocumentExists   = errgo.New("document already exists")
	ErrNoParent         = errgo.New("revision has no parent")
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errgo.Notef(err, "opening sqlite")
	}

	for _, pragma := range strings.Split(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" || strings.HasPrefix(pragma, "--") {
			continue
		}
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, errgo.Notef(err, "applying pragma %q", pragma)
		}
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, errgo.Notef(err, "applying schema")
	}
	logger.Debugf("opened %s", path)
	return &DB{conn: conn, path: path}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Path() string {
	return db.path
}

// BeginTx starts a new transaction.
func (db *DB) BeginTx() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Revision is one saved state of a document.
type Revision struct {
	ID int64
	// Parent is 0 for the first revision.
	Parent    int64
	Digest    []byte
	Cursor    score.Cursor
	Note      string
	CreatedAt time.Time
}

// encode returns the bytes the revision digest is computed over.
func encode(doc *score.Document, cur score.Cursor) ([]byte, error) {
	d, err := json.Marshal(doc)
	if err != nil {
		return nil, errgo.Notef(err, "encoding document")
	}
	c, err := json.Marshal(cur)
	if err != nil {
		return nil, errgo.Notef(err, "encoding cursor")
	}
	return append(append(d, '\n'), c...), nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, errgo.Notef(err, "creating zstd encoder")
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return nil, errgo.Notef(err, "compressing")
	}
	if err := enc.Close(); err != nil {
		return nil, errgo.Notef(err, "closing encoder")
	}
	return buf.Bytes(), nil
}

func decompress(blob []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, errgo.Notef(err, "creating zstd decoder")
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, errgo.Notef(err, "decompressing")
	}
	return data, nil
}

// head returns the head revision id and digest of name.
func head(q querier, name string) (int64, []byte, error) {
	var id int64
	var digest []byte
	err := q.QueryRow(
		`SELECT r.id, r.digest FROM documents d JOIN revisions r ON r.id = d.head WHERE d.name = ?`, name,
	).Scan(&id, &digest)
	if err == sql.ErrNoRows {
		return 0, nil, errgo.WithCausef(nil, ErrDocumentNotFound, "document %q", name)
	}
	if err != nil {
		return 0, nil, errgo.Notef(err, "querying head of %q", name)
	}
	return id, digest, nil
}

type querier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Create stores the first revision of a new document.
func (db *DB) Create(tx *sql.Tx, name string, doc *score.Document, cur score.Cursor) (int64, error) {
	_, _, err := head(tx, name)
	if err == nil {
		return 0, errgo.WithCausef(nil, ErrDocumentExists, "document %q", name)
	}
	if errgo.Cause(err) != ErrDocumentNotFound {
		return 0, errgo.Mask(err)
	}
	id, _, err := db.SaveRevision(tx, name, doc, cur, "create")
	return id, errgo.Mask(err)
}

// SaveRevision stores doc and cur as the new head of name. A revision
// with the same digest as the current head is not stored again; its id
// is returned with saved false.
func (db *DB) SaveRevision(tx *sql.Tx, name string, doc *score.Document, cur score.Cursor, note string) (id int64, saved bool, err error) {
	data, err := encode(doc, cur)
	if err != nil {
		return 0, false, errgo.Mask(err)
	}
	sum := blake3.Sum256(data)
	digest := sum[:]

	var parent sql.NullInt64
	headID, headDigest, err := head(tx, name)
	switch {
	case err == nil:
		if bytes.Equal(headDigest, digest) {
			logger.Debugf("%s: revision %d unchanged", name, headID)
			return headID, false, nil
		}
		parent = sql.NullInt64{Int64: headID, Valid: true}
	case errgo.Cause(err) == ErrDocumentNotFound:
		// First revision.
	default:
		return 0, false, errgo.Mask(err)
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return 0, false, errgo.Notef(err, "encoding document")
	}
	blob, err := compress(docJSON)
	if err != nil {
		return 0, false, errgo.Mask(err)
	}
	curJSON, err := json.Marshal(cur)
	if err != nil {
		return 0, false, errgo.Notef(err, "encoding cursor")
	}
	result, err := tx.Exec(
		`INSERT INTO revisions (document, parent, digest, blob, cursor, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		name, parent, digest, blob, string(curJSON), note, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, false, errgo.Notef(err, "inserting revision")
	}
	if id, err = result.LastInsertId(); err != nil {
		return 0, false, errgo.Mask(err)
	}
	if _, err := tx.Exec(
		`INSERT INTO documents (name, head) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET head = excluded.head`,
		name, id,
	); err != nil {
		return 0, false, errgo.Notef(err, "moving head of %q", name)
	}
	logger.Debugf("%s: saved revision %d (%d bytes, %d compressed)", name, id, len(docJSON), len(blob))
	return id, true, nil
}

// Load returns the head revision of name.
func (db *DB) Load(name string) (*score.Document, score.Cursor, error) {
	var blob []byte
	var curJSON string
	err := db.conn.QueryRow(
		`SELECT r.blob, r.cursor FROM documents d JOIN revisions r ON r.id = d.head WHERE d.name = ?`, name,
	).Scan(&blob, &curJSON)
	if err == sql.ErrNoRows {
		return nil, score.Cursor{}, errgo.WithCausef(nil, ErrDocumentNotFound, "document %q", name)
	}
	if err != nil {
		return nil, score.Cursor{}, errgo.Notef(err, "querying document %q", name)
	}
	data, err := decompress(blob)
	if err != nil {
		return nil, score.Cursor{}, errgo.Mask(err)
	}
	var doc score.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, score.Cursor{}, errgo.Notef(err, "decoding document %q", name)
	}
	var cur score.Cursor
	if err := json.Unmarshal([]byte(curJSON), &cur); err != nil {
		return nil, score.Cursor{}, errgo.Notef(err, "decoding cursor of %q", name)
	}
	return &doc, cur, nil
}

// Undo moves the head of name back to its parent and returns the new
// head id. The undone revision stays in the table.
func (db *DB) Undo(tx *sql.Tx, name string) (int64, error) {
	id, _, err := head(tx, name)
	if err != nil {
		return 0, errgo.Mask(err, errgo.Is(ErrDocumentNotFound))
	}
	var parent sql.NullInt64
	if err := tx.QueryRow(`SELECT parent FROM revisions WHERE id = ?`, id).Scan(&parent); err != nil {
		return 0, errgo.Notef(err, "querying revision %d", id)
	}
	if !parent.Valid {
		return 0, errgo.WithCausef(nil, ErrNoParent, "revision %d of %q", id, name)
	}
	if _, err := tx.Exec(`UPDATE documents SET head = ? WHERE name = ?`, parent.Int64, name); err != nil {
		return 0, errgo.Notef(err, "moving head of %q", name)
	}
	logger.Infof("%s: head moved from %d to %d", name, id, parent.Int64)
	return parent.Int64, nil
}

// History returns the revisions leading to the head of name, newest
// first.
func (db *DB) History(name string) ([]Revision, error) {
	id, _, err := head(db.conn, name)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Is(ErrDocumentNotFound))
	}
	var revs []Revision
	for id != 0 {
		var r Revision
		var parent sql.NullInt64
		var curJSON string
		var created int64
		err := db.conn.QueryRow(
			`SELECT id, parent, digest, cursor, note, created_at FROM revisions WHERE id = ?`, id,
		).Scan(&r.ID, &parent, &r.Digest, &curJSON, &r.Note, &created)
		if err != nil {
			return nil, errgo.Notef(err, "querying revision %d", id)
		}
		if err := json.Unmarshal([]byte(curJSON), &r.Cursor); err != nil {
			return nil, errgo.Notef(err, "decoding cursor of revision %d", id)
		}
		r.Parent = parent.Int64
		r.CreatedAt = time.UnixMilli(created)
		revs = append(revs, r)
		id = r.Parent
	}
	return revs, nil
}

// Documents returns the names of all documents, sorted.
func (db *DB) Documents() ([]string, error) {
	rows, err := db.conn.Query(`SELECT name FROM documents ORDER BY name`)
	if err != nil {
		return nil, errgo.Notef(err, "listing documents")
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errgo.Mask(err)
		}
		names = append(names, name)
	}
	return names, errgo.Mask(rows.Err())
}
