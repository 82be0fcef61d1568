package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type sqlMemoryRepo struct {
	db      *sql.DB
	dialect string
}

func (r *sqlMemoryRepo) placeholder(n int) string {
	if r.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (r *sqlMemoryRepo) placeholders(from, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = r.placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}

const memoryColumns = "id, owner, kind, content, embedding, salience, decay_at, source_origin, source_context, tags, date_created, date_updated"

func (r *sqlMemoryRepo) FindByOwner(owner string, liveOnly bool) ([]MemoryRecord, error) {
	query := "SELECT " + memoryColumns + " FROM mnemo_memory WHERE owner = " + r.placeholder(1)
	args := []any{owner}
	if liveOnly {
		query += " AND (decay_at IS NULL OR decay_at > " + r.placeholder(2) + ")"
		args = append(args, time.Now())
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemoryRecord
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *sqlMemoryRepo) UpsertByOwnerAndContent(owner, content string, fields UpsertFields) (MemoryRecord, error) {
	id := uuid.New().String()
	now := time.Now()
	uniq := ContentKey(content)
	tags := encodeTags(fields.Tags)

	maxFn := "MAX"
	if r.dialect == "postgres" {
		maxFn = "GREATEST"
	}

	query := `INSERT INTO mnemo_memory (` + memoryColumns + `, uniq)
	 VALUES (` + r.placeholders(1, 13) + `)
	 ON CONFLICT(owner, uniq) DO UPDATE SET
		kind = excluded.kind,
		content = excluded.content,
		embedding = excluded.embedding,
		salience = ` + maxFn + `(mnemo_memory.salience, excluded.salience),
		decay_at = excluded.decay_at,
		source_origin = excluded.source_origin,
		source_context = excluded.source_context,
		tags = excluded.tags,
		date_updated = excluded.date_updated`

	_, err := r.db.Exec(query,
		id, owner, fields.Kind, content, EncodeEmbedding(fields.Embedding), fields.Salience,
		fields.DecayAt, fields.SourceOrigin, fields.SourceContext, tags, now, now, uniq,
	)
	if err != nil {
		return MemoryRecord{}, err
	}

	return r.getByOwnerAndUniq(owner, uniq)
}

func (r *sqlMemoryRepo) getByOwnerAndUniq(owner, uniq string) (MemoryRecord, error) {
	query := "SELECT " + memoryColumns + " FROM mnemo_memory WHERE owner = " + r.placeholder(1) +
		" AND uniq = " + r.placeholder(2)
	row := r.db.QueryRow(query, owner, uniq)
	return scanMemory(row)
}

func (r *sqlMemoryRepo) UpdateSalience(ids []string, delta float64) error {
	if len(ids) == 0 {
		return nil
	}

	minFn, maxFn := "MIN", "MAX"
	if r.dialect == "postgres" {
		minFn, maxFn = "LEAST", "GREATEST"
	}

	query := "UPDATE mnemo_memory SET salience = " + minFn + "(1.0, " + maxFn + "(0.0, salience + " +
		r.placeholder(1) + ")), date_updated = " + r.placeholder(2) +
		" WHERE id IN (" + r.placeholders(3, len(ids)) + ")"

	args := make([]any, 0, len(ids)+2)
	args = append(args, delta, time.Now())
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := r.db.Exec(query, args...)
	return err
}

func (r *sqlMemoryRepo) DeleteByOwner(owner string) (int64, error) {
	res, err := r.db.Exec("DELETE FROM mnemo_memory WHERE owner = "+r.placeholder(1), owner)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (MemoryRecord, error) {
	var rec MemoryRecord
	var embedding []byte
	var decayAny, createdAny, updatedAny any
	var sourceOrigin, sourceContext, tags sql.NullString

	err := row.Scan(&rec.ID, &rec.Owner, &rec.Kind, &rec.Content, &embedding, &rec.Salience,
		&decayAny, &sourceOrigin, &sourceContext, &tags, &createdAny, &updatedAny)
	if err != nil {
		return MemoryRecord{}, err
	}

	rec.Embedding = DecodeEmbedding(embedding)
	rec.SourceOrigin = sourceOrigin.String
	rec.SourceContext = sourceContext.String
	rec.Tags = decodeTags(tags.String)
	if t, ok := decodeAnyTime(decayAny); ok {
		rec.DecayAt = &t
	}
	if t, ok := decodeAnyTime(createdAny); ok {
		rec.CreatedAt = t
	}
	if t, ok := decodeAnyTime(updatedAny); ok {
		rec.UpdatedAt = t
	}
	return rec, nil
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil
	}
	return tags
}

// Memories is called concurrently from the request path and the
// distillation workers.
func (d *SQLDriver) Memories() MemoryRepo {
	d.repoOnce.Do(func() {
		d.repo = &sqlMemoryRepo{db: d.db(), dialect: d.dialect}
	})
	return d.repo
}
