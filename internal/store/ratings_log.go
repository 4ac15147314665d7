package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/saferoute/internal/ratings"
	"github.com/sirupsen/logrus"
)

// logRow is one row of the append-only rating log.
type logRow struct {
	id     int64
	nodeID string
	rating ratings.Rating
}

// SaveRating appends a rating to the log. A single INSERT cannot lose a
// concurrent writer's row, so no lock is needed around it.
func (db *DB) SaveRating(nodeID string, score float64, user string, ts time.Time) (ratings.History, error) {
	if user == "" {
		user = ratings.Anonymous
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := db.Exec(`
		INSERT INTO ratings (node_id, user_id, score, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, nodeID, user, score, ratings.FormatTime(ts), time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("save rating: %w", err)
	}

	rows, _, err := db.readLog(db.DB)
	if err != nil {
		return nil, err
	}
	h := make(ratings.History)
	for _, r := range rows {
		h[r.nodeID] = append(h[r.nodeID], r.rating)
	}
	return h, nil
}

// LoadRatings reconciles the log: malformed rows and ratings superseded by a
// newer one from the same user are deleted, and the surviving ratings are
// returned per node. Only rows read in this call are deletion candidates,
// so rows appended concurrently survive until the next load.
func (db *DB) LoadRatings() (ratings.History, []ratings.Warning, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback()

	rows, warnings, err := db.readLog(tx)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 && len(warnings) == 0 {
		w := ratings.Warning{Err: ratings.ErrMissingStore}
		db.log.Warn(w.String())
		return ratings.History{}, []ratings.Warning{w}, nil
	}

	byNode := make(map[string][]logRow)
	for _, r := range rows {
		byNode[r.nodeID] = append(byNode[r.nodeID], r)
	}

	h := make(ratings.History, len(byNode))
	var superseded []int64
	for nodeID, nodeRows := range byNode {
		rs := make([]ratings.Rating, len(nodeRows))
		for i, r := range nodeRows {
			rs[i] = r.rating
		}
		keep := ratings.KeptIndices(rs)
		next := 0
		for i, r := range nodeRows {
			if next < len(keep) && keep[next] == i {
				h[nodeID] = append(h[nodeID], r.rating)
				next++
				continue
			}
			superseded = append(superseded, r.id)
		}
	}

	drop := append(superseded, malformedIDs(warnings)...)
	if len(drop) > 0 {
		stmt, err := tx.Prepare("DELETE FROM ratings WHERE id = ?")
		if err != nil {
			return nil, nil, fmt.Errorf("prepare compaction: %w", err)
		}
		defer stmt.Close()
		for _, id := range drop {
			if _, err := stmt.Exec(id); err != nil {
				return nil, nil, fmt.Errorf("compact rating %d: %w", id, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit compaction: %w", err)
	}

	out := make([]ratings.Warning, len(warnings))
	for i, w := range warnings {
		db.log.WithFields(logrus.Fields{"node": w.NodeID, "user": w.User}).Warn(w.Err)
		out[i] = w.Warning
	}
	ratings.SortWarnings(out)
	if len(drop) > 0 {
		db.log.Infof("compacted %d ratings (%d superseded, %d malformed)", len(drop), len(superseded), len(warnings))
	}
	return h, out, nil
}

// rowWarning ties a malformed-record warning to the row that produced it.
type rowWarning struct {
	ratings.Warning
	id int64
}

func malformedIDs(ws []rowWarning) []int64 {
	ids := make([]int64, len(ws))
	for i, w := range ws {
		ids[i] = w.id
	}
	return ids
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// readLog reads the whole log in insertion order, validating every row.
func (db *DB) readLog(q querier) ([]logRow, []rowWarning, error) {
	rows, err := q.Query(`
		SELECT id, node_id, user_id, score, timestamp
		FROM ratings ORDER BY id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("read ratings: %w", err)
	}
	defer rows.Close()

	var out []logRow
	var warnings []rowWarning
	for rows.Next() {
		var id int64
		var nodeID string
		var user, ts sql.NullString
		var score sql.NullFloat64
		if err := rows.Scan(&id, &nodeID, &user, &score, &ts); err != nil {
			return nil, nil, fmt.Errorf("scan rating: %w", err)
		}

		var rec ratings.Record
		if user.Valid {
			rec.User = &user.String
		}
		if score.Valid {
			rec.Score = &score.Float64
		}
		if ts.Valid {
			rec.Timestamp = &ts.String
		}

		r, err := ratings.ParseRecord(nodeID, rec)
		if err != nil {
			warnings = append(warnings, rowWarning{Warning: ratings.WarningFor(nodeID, err), id: id})
			continue
		}
		out = append(out, logRow{id: id, nodeID: nodeID, rating: r})
	}
	return out, warnings, rows.Err()
}

// Close releases the database.
func (db *DB) Close() error {
	return db.DB.Close()
}

// Backend names the storage flavour.
func (db *DB) Backend() string {
	return BackendSQLite
}
