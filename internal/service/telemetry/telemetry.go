// Package telemetry buffers accepted samples per match and flushes them to
// durable storage when the match ends.
package telemetry

import (
	"context"
	"fmt"
	"log"

	"parkclash/internal/model"
	"parkclash/internal/service/storage"
)

// Buffer is the append-only per-match staging area
type Buffer interface {
	Append(ctx context.Context, entry model.TelemetryEntry) error
	Entries(ctx context.Context, matchID string) ([]model.TelemetryEntry, error)
	// Trim drops the first n entries, which a flush has persisted
	Trim(ctx context.Context, matchID string, n int) error
}

// Sink persists entries. Writing an entry id twice must not create a second row.
type Sink interface {
	Write(ctx context.Context, entries []model.TelemetryEntry) (int, error)
}

// Log ties a buffer to its sink
type Log struct {
	buffer Buffer
	sink   Sink
	// one flush per match at a time
	flushLocks *storage.KeyedMutex
}

func NewLog(buffer Buffer, sink Sink) *Log {
	return &Log{
		buffer:     buffer,
		sink:       sink,
		flushLocks: storage.NewKeyedMutex(64),
	}
}

// Append stages an accepted sample
func (l *Log) Append(ctx context.Context, entry model.TelemetryEntry) error {
	if err := l.buffer.Append(ctx, entry); err != nil {
		return fmt.Errorf("buffer telemetry: %w", err)
	}
	return nil
}

// Flush persists everything buffered for matchID and returns the number of new rows.
// Entries are only removed from the buffer after the sink accepted them, so a
// failed flush can be retried and a repeated flush writes nothing new.
func (l *Log) Flush(ctx context.Context, matchID string) (int, error) {
	unlock := l.flushLocks.Lock(matchID)
	defer unlock()

	entries, err := l.buffer.Entries(ctx, matchID)
	if err != nil {
		return 0, fmt.Errorf("read telemetry buffer: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	written, err := l.sink.Write(ctx, entries)
	if err != nil {
		return 0, fmt.Errorf("persist telemetry: %w", err)
	}

	if err := l.buffer.Trim(ctx, matchID, len(entries)); err != nil {
		// rows are durable already; a retry re-reads them and inserts nothing
		log.Printf("Telemetry: failed to trim buffer of match %s: %v", matchID, err)
	}

	log.Printf("Telemetry: flushed match %s, %d buffered, %d new rows", matchID, len(entries), written)
	return written, nil
}
