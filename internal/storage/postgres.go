package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is a PostgreSQL-backed MetadataStore. Payload and metadata
// are stored as JSONB in the metadata_records table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and verifies the connection
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// marshalDoc renders a document column value. lib/pq sends []byte as
// bytea, which jsonb rejects, so documents go over the wire as strings.
func marshalDoc(doc interface{}) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	if string(data) == "null" {
		return "{}", nil
	}
	return string(data), nil
}

const upsertQuery = `
	INSERT INTO metadata_records (event_id, event_type, timestamp, source, tenant_id, payload, metadata, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (event_id) DO UPDATE SET
		event_type = EXCLUDED.event_type,
		timestamp  = EXCLUDED.timestamp,
		source     = EXCLUDED.source,
		tenant_id  = EXCLUDED.tenant_id,
		payload    = EXCLUDED.payload,
		metadata   = EXCLUDED.metadata,
		created_at = EXCLUDED.created_at,
		updated_at = EXCLUDED.updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func upsertRecord(ctx context.Context, db execer, record *Record) error {
	normalize(record)

	payload, err := marshalDoc(record.Payload)
	if err != nil {
		return err
	}
	metadata, err := marshalDoc(record.Metadata)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, upsertQuery,
		record.EventID, record.EventType, record.Timestamp, record.Source,
		record.TenantID, payload, metadata, record.CreatedAt, record.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func (p *PostgresStore) Put(ctx context.Context, record *Record) (string, error) {
	if record.EventID == "" {
		return "", ErrMissingEventID
	}
	if err := upsertRecord(ctx, p.db, record); err != nil {
		return "", err
	}
	return record.EventID, nil
}

func (p *PostgresStore) PutBatch(ctx context.Context, records []*Record) ([]string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(records))
	for _, record := range records {
		if record.EventID == "" {
			continue
		}
		if err := upsertRecord(ctx, tx, record); err != nil {
			return nil, err
		}
		ids = append(ids, record.EventID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ids, nil
}

func scanRecord(scan func(dest ...interface{}) error) (*Record, error) {
	var record Record
	var payload, metadata []byte

	if err := scan(
		&record.EventID,
		&record.EventType,
		&record.Timestamp,
		&record.Source,
		&record.TenantID,
		&payload,
		&metadata,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &record.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(record.Metadata) == 0 {
		record.Metadata = nil
	}
	return &record, nil
}

func (p *PostgresStore) Get(ctx context.Context, eventID string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT event_id, event_type, timestamp, source, tenant_id, payload, metadata, created_at, updated_at
		FROM metadata_records
		WHERE event_id = $1
	`, eventID)

	record, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

func (p *PostgresStore) Update(ctx context.Context, eventID string, partial map[string]interface{}) (bool, error) {
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	for _, column := range []string{"event_type", "timestamp", "source", "tenant_id"} {
		if value, ok := partial[column]; ok {
			if s, ok := value.(string); ok {
				add(column, s)
			}
		}
	}
	if value, ok := partial["payload"]; ok {
		if m, ok := value.(map[string]interface{}); ok {
			doc, err := marshalDoc(m)
			if err != nil {
				return false, err
			}
			add("payload", doc)
		}
	}
	if value, ok := partial["metadata"]; ok {
		if m := toStringMap(value); m != nil {
			doc, err := marshalDoc(m)
			if err != nil {
				return false, err
			}
			add("metadata", doc)
		}
	}

	if len(sets) == 0 {
		return false, nil
	}

	add("updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, eventID)

	query := fmt.Sprintf("UPDATE metadata_records SET %s WHERE event_id = $%d",
		strings.Join(sets, ", "), len(args))

	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (p *PostgresStore) Delete(ctx context.Context, eventID string) (bool, error) {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM metadata_records
		WHERE event_id = $1
	`, eventID)

	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (p *PostgresStore) Query(ctx context.Context, filter Filter) ([]*Record, error) {
	query := `
		SELECT event_id, event_type, timestamp, source, tenant_id, payload, metadata, created_at, updated_at
		FROM metadata_records`

	var conditions []string
	var args []interface{}
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		conditions = append(conditions, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if filter.StartTime != "" {
		args = append(args, filter.StartTime)
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if filter.EndTime != "" {
		args = append(args, filter.EndTime)
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	query += "\n\t\tORDER BY created_at DESC, event_id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf("\n\t\tLIMIT $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	matched := make([]*Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		matched = append(matched, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return matched, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
