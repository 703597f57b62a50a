// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package persist stores vector indexes, the topic taxonomy and the
// Gmail sync position in SQLite.
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"github.com/pkg/errors"
)

var (
	createTableSql = []string{
		// The vectors table holds every vector index, one
		// namespace per index.
		//
		// Field: namespace
		//
		//   The index name, e.g. "messages" or "threads".
		//
		// Field: id
		//
		//   Message ID for the messages index, thread ID for the
		//   threads index.
		//
		// Field: embedding
		//
		//   Little-endian float32 values.
		//
		// Field: metadata
		//
		//   A JSON object.  Always includes "connection" and
		//   "thread".
		`
CREATE TABLE IF NOT EXISTS vectors (
namespace TEXT NOT NULL,
id TEXT NOT NULL,
embedding BLOB NOT NULL,
metadata TEXT NOT NULL,
updated_at INTEGER NOT NULL,
PRIMARY KEY (namespace, id)
);`,
		// The topics table holds the custom label taxonomy of each
		// connection.  A connection with no rows uses the default
		// taxonomy.
		//
		// Field: name
		//
		//   The label name as shown in Gmail.  Unique per
		//   connection, ignoring case.
		`
CREATE TABLE IF NOT EXISTS topics (
connection_id TEXT NOT NULL,
name TEXT NOT NULL COLLATE NOCASE,
usecase TEXT NOT NULL,
position INTEGER NOT NULL,
PRIMARY KEY (connection_id, name)
);`,
		// The gmail_history_id table holds the GMail history ID for
		// each successful synchronization pass.
		//
		// Notes:
		//
		// The highest ID is the latest history ID for which history
		// has been processed.
		`
CREATE TABLE IF NOT EXISTS gmail_history_id (
history_id INTEGER NOT NULL,
PRIMARY KEY (history_id)
);`,
	}
)

type DB struct {
	db *sql.DB
}

type Tx struct {
	tx *sql.Tx
}

func dsnFromPath(path string, addValues url.Values) (string, error) {
	var u *url.URL
	if !strings.HasPrefix(path, "file:") {
		u = &url.URL{Scheme: "file", Path: path}
	} else {
		var err error
		u, err = url.Parse(path)
		if err != nil {
			return "", err
		}
	}
	values := u.Query()
	for k, v := range addValues {
		for _, item := range v {
			values.Add(k, item)
		}
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

func Open(ctx context.Context, path string) (*DB, error) {
	// The _busy_timeout is a SQLite extension that controls how
	// long SQLite will poll before giving up.  Embedding upserts
	// from concurrent pipeline runs can hold the lock for a while.
	var busyTimeout = int(time.Minute) / int(time.Millisecond)

	dsn, err := dsnFromPath(path, url.Values{
		"_busy_timeout": {fmt.Sprintf("%d", busyTimeout)},
		"_journal_mode": {"WAL"}})
	if err != nil {
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not form a DB DSN from "+
				"the given path",
			path)
	}
	log.Printf("opening database at %q", dsn)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not open database at %q",
			path, dsn)
	}

	if err = initSchema(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not initialize the "+
				"database schema", path)
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction failed")
	}
	return &Tx{tx}, nil
}

func (tx *Tx) Commit() error {
	return tx.tx.Commit()
}

func (tx *Tx) Rollback() error {
	return tx.tx.Rollback()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	for _, sql := range createTableSql {
		if _, err := db.ExecContext(ctx, sql); err != nil {
			return errors.Wrapf(err, "while executing %q", sql)
		}
	}
	return nil
}

func orderedToSigned(u uint64) int64 {
	return int64(u - -math.MinInt64) // Imagine 0..255 -> -128..127
}

func orderedToUnsigned(s int64) uint64 {
	return uint64(s) + -math.MinInt64 // Imagine -128..127 -> 0..255
}

// LatestHistoryID returns the newest recorded history ID, or 0 if
// none has been recorded.
func (tx *Tx) LatestHistoryID(ctx context.Context) (uint64, error) {
	const q = `SELECT history_id FROM gmail_history_id ORDER BY history_id DESC LIMIT 1`
	row := tx.tx.QueryRowContext(ctx, q)
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			err = nil // a non-error
		}
		return 0, err
	}
	return orderedToUnsigned(id), nil
}

func (tx *Tx) WriteHistoryID(ctx context.Context, historyID uint64) error {
	latest, err := tx.LatestHistoryID(ctx)
	if err != nil {
		return err
	}
	if historyID <= latest {
		return errors.Errorf("attempt to decrease the latest history_id from %d to %d", latest, historyID)
	}

	sql := `INSERT INTO gmail_history_id (history_id) values ($1)`
	_, err = tx.tx.ExecContext(ctx, sql, orderedToSigned(historyID))
	if err != nil {
		return errors.Wrap(err, "db insert failed")
	}
	return nil
}

// LatestHistoryID is the single-statement form of Tx.LatestHistoryID.
func (db *DB) LatestHistoryID(ctx context.Context) (uint64, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	return tx.LatestHistoryID(ctx)
}

// WriteHistoryID records historyID, which must be newer than the
// latest recorded one.
func (db *DB) WriteHistoryID(ctx context.Context, historyID uint64) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := tx.WriteHistoryID(ctx, historyID); err != nil {
		return err
	}
	return tx.Commit()
}
