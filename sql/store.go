package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/ln80/eventstorage/event"
)

const (
	eventColumns = `event_id, aggregate_type, aggregate_id, sequence_number, time_stamp, payload_type, payload_revision, payload, meta_data`
)

var (
	ErrNoPositionCounter = errors.New("global position counter not found, run Migrate")
)

// Store is an event.Backend on top of a relational database.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ event.Backend = &Store{}

// New returns a backend using the given database and dialect. The schema is created by Migrate.
func New(db *sql.DB, dialect Dialect) *Store {
	if db == nil {
		panic("eventstorage: nil database")
	}
	return &Store{
		db:      db,
		dialect: dialect,
	}
}

// Migrate creates the tables and indexes if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return event.Unavailable(err, "")
	}
	defer tx.Rollback()

	for _, stmt := range s.dialect.Schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return event.Unavailable(err, "", "dialect", s.dialect.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		return event.Unavailable(err, "")
	}
	return nil
}

func marshalMetadata(md map[string]string) (sql.NullString, error) {
	if len(md) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func args(d event.SerializedDomainData) ([]interface{}, error) {
	md, err := marshalMetadata(d.Metadata)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		d.EventID,
		d.AggregateType,
		d.AggregateID,
		int64(d.Sequence),
		d.At.UnixNano(),
		d.Payload.Type.Name,
		d.Payload.Type.Revision,
		d.Payload.Data,
		md,
	}, nil
}

func (s *Store) AppendEventData(ctx context.Context, data ...event.SerializedDomainData) error {
	if len(data) == 0 {
		return nil
	}
	aggID := data[0].AggregateID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return event.Unavailable(err, aggID)
	}
	defer tx.Rollback()

	// Updating the counter first locks its row until commit, so appends get their positions
	// in commit order and a tracked reader never sees a position before a smaller one.
	res, err := tx.ExecContext(ctx, `UPDATE event_position SET position = position + ? WHERE id = 1`, len(data))
	if err != nil {
		return event.Unavailable(err, aggID)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return event.Unavailable(ErrNoPositionCounter, aggID)
	}
	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT position FROM event_position WHERE id = 1`).Scan(&last); err != nil {
		return event.Unavailable(err, aggID)
	}
	first := last - int64(len(data)) + 1

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO domain_event_entry (global_index, `+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return event.Unavailable(err, aggID)
	}
	defer stmt.Close()

	for i, d := range data {
		a, err := args(d)
		if err != nil {
			return event.Err(event.ErrSerialization, d.AggregateID, err)
		}
		a = append([]interface{}{first + int64(i)}, a...)
		if _, err := stmt.ExecContext(ctx, a...); err != nil {
			if s.dialect.IsUniqueViolation(err) {
				return event.Err(event.ErrConcurrencyConflict, d.AggregateID, "seq", d.Sequence, err)
			}
			return event.Unavailable(err, d.AggregateID)
		}
	}

	if err := tx.Commit(); err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return event.Err(event.ErrConcurrencyConflict, aggID, err)
		}
		return event.Unavailable(err, aggID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanData(row scanner, extra ...interface{}) (event.SerializedDomainData, error) {
	var (
		d        event.SerializedDomainData
		aggType  sql.NullString
		revision sql.NullString
		seq, at  int64
		md       sql.NullString
	)
	dest := append(extra,
		&d.EventID,
		&aggType,
		&d.AggregateID,
		&seq,
		&at,
		&d.Payload.Type.Name,
		&revision,
		&d.Payload.Data,
		&md,
	)
	if err := row.Scan(dest...); err != nil {
		return d, err
	}
	d.AggregateType = aggType.String
	d.Sequence = uint64(seq)
	d.At = time.Unix(0, at).UTC()
	d.Payload.Type.Revision = revision.String
	if md.Valid && md.String != "" {
		if err := json.Unmarshal([]byte(md.String), &d.Metadata); err != nil {
			return d, event.AsDeserializationError(d, err)
		}
	}
	return d, nil
}

func (s *Store) ReadEventData(ctx context.Context, aggID string, firstSeq uint64) (event.Iterator[event.SerializedDomainData], error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM domain_event_entry WHERE aggregate_id = ? AND sequence_number >= ? ORDER BY sequence_number ASC`,
		aggID, int64(firstSeq))
	if err != nil {
		return nil, event.Unavailable(err, aggID)
	}
	return &iterator[event.SerializedDomainData]{
		rows: rows,
		scan: func(rows *sql.Rows) (event.SerializedDomainData, error) {
			return scanData(rows)
		},
	}, nil
}

func (s *Store) ReadTrackedEventData(ctx context.Context, after event.TrackingToken) (event.Iterator[event.SerializedTrackedData], error) {
	pos, err := event.PositionOf(after)
	if err != nil {
		return nil, err
	}
	if pos > math.MaxInt64 {
		return event.EmptyIterator[event.SerializedTrackedData](), nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT global_index, `+eventColumns+` FROM domain_event_entry WHERE global_index > ? ORDER BY global_index ASC`,
		int64(pos))
	if err != nil {
		return nil, event.Unavailable(err, "")
	}
	return &iterator[event.SerializedTrackedData]{
		rows: rows,
		scan: func(rows *sql.Rows) (event.SerializedTrackedData, error) {
			var idx int64
			d, err := scanData(rows, &idx)
			return event.SerializedTrackedData{
				SerializedDomainData: d,
				Token:                event.GlobalToken(idx),
			}, err
		},
	}, nil
}

func (s *Store) StoreSnapshotData(ctx context.Context, data event.SerializedDomainData) error {
	// a concurrent first insert of the same aggregate fails on the primary key; retry once
	var err error
	for i := 0; i < 2; i++ {
		if err = s.storeSnapshot(ctx, data); err == nil || !s.dialect.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return event.Unavailable(err, data.AggregateID)
	}
	return nil
}

func (s *Store) storeSnapshot(ctx context.Context, data event.SerializedDomainData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var curr int64
	err = tx.QueryRowContext(ctx, `SELECT sequence_number FROM snapshot_event_entry WHERE aggregate_id = ?`, data.AggregateID).Scan(&curr)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return err
	case uint64(curr) > data.Sequence:
		return nil
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_event_entry WHERE aggregate_id = ?`, data.AggregateID); err != nil {
			return err
		}
	}

	a, err := args(data)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshot_event_entry (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, a...); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ReadSnapshotData(ctx context.Context, aggID string) (event.SerializedDomainData, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM snapshot_event_entry WHERE aggregate_id = ?`, aggID)
	d, err := scanData(row)
	if err == sql.ErrNoRows {
		return event.SerializedDomainData{}, false, nil
	}
	if err != nil {
		return event.SerializedDomainData{}, false, event.Unavailable(err, aggID)
	}
	return d, true, nil
}

// iterator holds the query rows until it is closed or exhausted.
type iterator[T any] struct {
	rows *sql.Rows
	scan func(rows *sql.Rows) (T, error)

	val    T
	valErr error
	done   bool
}

func (i *iterator[T]) Next() bool {
	if i.done {
		return false
	}
	if !i.rows.Next() {
		i.done = true
		return false
	}
	i.val, i.valErr = i.scan(i.rows)
	return true
}

func (i *iterator[T]) Value() (T, error) {
	return i.val, i.valErr
}

func (i *iterator[T]) Err() error {
	if err := i.rows.Err(); err != nil {
		return event.Unavailable(err, "")
	}
	return nil
}

func (i *iterator[T]) Close() error {
	i.done = true
	return i.rows.Close()
}
