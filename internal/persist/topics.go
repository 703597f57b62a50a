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
	"strings"

	"github.com/pkg/errors"

	"github.com/matta/threadmind/internal/message"
)

// Topics returns the custom taxonomy of a connection, in the order
// the topics were added.
func (db *DB) Topics(ctx context.Context, connectionID string) ([]message.TopicLabel, error) {
	const q = `SELECT name, usecase FROM topics WHERE connection_id = $1 ORDER BY position`
	rows, err := db.db.QueryContext(ctx, q, connectionID)
	if err != nil {
		return nil, errors.Wrap(err, "querying topics")
	}
	defer rows.Close()

	var out []message.TopicLabel
	for rows.Next() {
		var t message.TopicLabel
		if err := rows.Scan(&t.Name, &t.Usecase); err != nil {
			return nil, errors.Wrap(err, "scanning topic")
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "reading topics")
}

// PutTopic adds a topic, or replaces the usecase of an existing one
// with the same name.
func (db *DB) PutTopic(ctx context.Context, connectionID string, t message.TopicLabel) error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return errors.New("topic name is empty")
	}
	const sql = `
INSERT INTO topics (connection_id, name, usecase, position)
VALUES ($1, $2, $3, (SELECT COALESCE(MAX(position), 0) + 1 FROM topics WHERE connection_id = $1))
ON CONFLICT (connection_id, name)
DO UPDATE SET usecase = $3`
	if _, err := db.db.ExecContext(ctx, sql, connectionID, name, strings.TrimSpace(t.Usecase)); err != nil {
		return errors.Wrapf(err, "storing topic %q", name)
	}
	return nil
}

// RemoveTopic deletes a topic by name, ignoring case.  It reports
// whether a topic was removed.
func (db *DB) RemoveTopic(ctx context.Context, connectionID, name string) (bool, error) {
	const sql = `DELETE FROM topics WHERE connection_id = $1 AND name = $2`
	res, err := db.db.ExecContext(ctx, sql, connectionID, strings.TrimSpace(name))
	if err != nil {
		return false, errors.Wrapf(err, "removing topic %q", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "removing topic")
	}
	return n > 0, nil
}

// TopicSource serves one connection's taxonomy.
type TopicSource struct {
	db           *DB
	connectionID string
}

// TopicSource returns the taxonomy source for a connection.
func (db *DB) TopicSource(connectionID string) *TopicSource {
	return &TopicSource{db: db, connectionID: connectionID}
}

func (s *TopicSource) GetUserTopics(ctx context.Context) ([]message.TopicLabel, error) {
	return s.db.Topics(ctx, s.connectionID)
}
