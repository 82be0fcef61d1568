package storage

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// MemoryRecord is the durable unit of recall.
type MemoryRecord struct {
	ID            string
	Owner         string
	Kind          string
	Content       string
	Embedding     []float32
	Salience      float64
	DecayAt       *time.Time
	SourceOrigin  string
	SourceContext string
	Tags          []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Live reports whether the record is still visible to retrieval.
func (r MemoryRecord) Live(now time.Time) bool {
	return r.DecayAt == nil || r.DecayAt.After(now)
}

// UpsertFields carries everything except the dedupe key (owner, content).
type UpsertFields struct {
	Kind          string
	Embedding     []float32
	Salience      float64
	DecayAt       *time.Time
	SourceOrigin  string
	SourceContext string
	Tags          []string
}

// ContentKey is the dedupe key for (owner, content) upserts.
func ContentKey(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", h[:])
}

// EncodeEmbedding serializes []float32 into little-endian bytes.
func EncodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// DecodeEmbedding converts little-endian bytes back to []float32.
func DecodeEmbedding(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := 0; i < len(out); i++ {
		u := binary.LittleEndian.Uint32(b[i*4:])
		out[i] = math.Float32frombits(u)
	}
	return out
}
