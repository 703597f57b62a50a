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

package persist

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/matta/threadmind/internal/message"
)

// Index names.
const (
	MessageIndex = "messages"
	ThreadIndex  = "threads"
)

// SQLite's default limit on host parameters is 999.
const maxIDsPerQuery = 500

// Index is one named vector index.
type Index struct {
	db        *DB
	namespace string
}

// Index returns the vector index called namespace.
func (db *DB) Index(namespace string) *Index {
	return &Index{db: db, namespace: namespace}
}

func encodeVector(values []float32) []byte {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.Errorf("embedding blob has length %d, not a multiple of 4", len(b))
	}
	values := make([]float32, len(b)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return values, nil
}

// GetByIDs returns the vectors for ids that exist.  Missing IDs are
// not an error.
func (x *Index) GetByIDs(ctx context.Context, ids []string) ([]message.Vector, error) {
	var out []message.Vector
	for len(ids) > 0 {
		n := len(ids)
		if n > maxIDsPerQuery {
			n = maxIDsPerQuery
		}
		vs, err := x.getByIDs(ctx, ids[:n])
		if err != nil {
			return nil, err
		}
		out = append(out, vs...)
		ids = ids[n:]
	}
	return out, nil
}

func (x *Index) getByIDs(ctx context.Context, ids []string) ([]message.Vector, error) {
	q := `SELECT id, embedding, metadata FROM vectors WHERE namespace = ? AND id IN (?` +
		strings.Repeat(", ?", len(ids)-1) + `)`
	args := make([]any, 0, len(ids)+1)
	args = append(args, x.namespace)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := x.db.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s vectors", x.namespace)
	}
	defer rows.Close()

	var out []message.Vector
	for rows.Next() {
		var (
			v        message.Vector
			blob     []byte
			metadata string
		)
		if err := rows.Scan(&v.ID, &blob, &metadata); err != nil {
			return nil, errors.Wrapf(err, "scanning %s vector", x.namespace)
		}
		if v.Values, err = decodeVector(blob); err != nil {
			return nil, errors.Wrapf(err, "%s vector %s", x.namespace, v.ID)
		}
		if err := json.Unmarshal([]byte(metadata), &v.Metadata); err != nil {
			log.Printf("persist: ignoring malformed metadata of %s vector %s: %v", x.namespace, v.ID, err)
			v.Metadata = nil
		}
		out = append(out, v)
	}
	return out, errors.Wrapf(rows.Err(), "reading %s vectors", x.namespace)
}

// Upsert writes vectors in one transaction, replacing existing ones
// with the same ID.
func (x *Index) Upsert(ctx context.Context, vectors []message.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	tx, err := x.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const sql = `
INSERT INTO vectors (namespace, id, embedding, metadata, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (namespace, id)
DO UPDATE SET (embedding, metadata, updated_at) = ($3, $4, $5)`
	upsert, err := tx.tx.PrepareContext(ctx, sql)
	if err != nil {
		return errors.Wrap(err, "db prepare statement failed for vectors upsert")
	}
	defer upsert.Close()

	now := time.Now().Unix()
	for _, v := range vectors {
		if v.ID == "" {
			return errors.Errorf("%s vector has no ID", x.namespace)
		}
		metadata := v.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		js, err := json.Marshal(metadata)
		if err != nil {
			return errors.Wrapf(err, "encoding metadata of %s vector %s", x.namespace, v.ID)
		}
		if _, err := upsert.ExecContext(ctx, x.namespace, v.ID, encodeVector(v.Values), string(js), now); err != nil {
			return errors.Wrapf(err, "upserting %s vector %s", x.namespace, v.ID)
		}
	}
	return tx.Commit()
}
