package wal

// ============================================================================
// Write-ahead journal
// 1. Appends one JSON record per line, each with a sequence number and
//    a CRC32 checksum
// 2. Replays the records after a given sequence number to rebuild state
// 3. Is reset once a snapshot covers everything it holds
//
// Recovery = load snapshot (LastSeq) + replay events with Seq > LastSeq.
// A record torn by a crash mid-write is dropped on Open.
// ============================================================================

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Options tune a WAL.
type Options struct {
	// SyncOnAppend fsyncs after every record.
	SyncOnAppend bool
	// BaseSeq is the sequence number already covered by a snapshot. New
	// records are numbered after it even when the file is empty.
	BaseSeq uint64
}

// WAL is an append-only journal file.
type WAL struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	seq    uint64
	count  int
	opts   Options
	closed bool
}

// Open opens or creates the journal at path.
func Open(path string, opts Options) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	w := &WAL{file: file, path: path, seq: opts.BaseSeq, opts: opts}
	good, err := w.scan()
	if err != nil {
		file.Close()
		return nil, err
	}
	// drop a torn tail and position for appends
	if err := file.Truncate(good); err != nil {
		file.Close()
		return nil, fmt.Errorf("wal: truncate torn record: %w", err)
	}
	if _, err := file.Seek(good, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

// scan validates the file, counts its records and returns the offset just
// past the last complete one.
func (w *WAL) scan() (int64, error) {
	var offset int64
	err := readEvents(w.file, func(event Event, end int64) error {
		if event.Seq > w.seq {
			w.seq = event.Seq
		}
		w.count++
		offset = end
		return nil
	})
	return offset, err
}

// readEvents decodes records from r in order. A final line without newline
// is a torn write and ends the scan silently.
func readEvents(r io.Reader, fn func(event Event, end int64) error) error {
	br := bufio.NewReader(r)
	var (
		offset int64
		line   int
	)
	for {
		raw, err := br.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line++
		offset += int64(len(raw))

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			return &CorruptionError{Line: line, Cause: err}
		}
		if want := CalculateChecksum(event.Seq, event.Type, event.Payload); event.Checksum != want {
			return &ChecksumError{Seq: event.Seq, Expected: want, Actual: event.Checksum}
		}
		if err := fn(event, offset); err != nil {
			return err
		}
	}
}

// Append journals v under eventType and returns the sequence number given
// to the record.
func (w *WAL) Append(eventType EventType, v any) (uint64, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("wal: encode %s: %w", eventType, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrWALClosed
	}

	seq := w.seq + 1
	event := Event{
		Seq:       seq,
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		Checksum:  CalculateChecksum(seq, eventType, payload),
	}
	record, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("wal: encode event: %w", err)
	}
	if _, err := w.file.Write(append(record, '\n')); err != nil {
		return 0, fmt.Errorf("wal: append seq=%d: %w", seq, err)
	}
	if w.opts.SyncOnAppend {
		if err := w.file.Sync(); err != nil {
			return 0, fmt.Errorf("wal: sync seq=%d: %w", seq, err)
		}
	}

	w.seq = seq
	w.count++
	return seq, nil
}

// Replay calls handler for every record with Seq > after, in order.
func (w *WAL) Replay(after uint64, handler EventHandler) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWALClosed
	}

	file, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer file.Close()

	return readEvents(file, func(event Event, _ int64) error {
		if event.Seq <= after {
			return nil
		}
		return handler(event)
	})
}

// Reset empties the journal once a snapshot covers it. Numbering continues
// from the last sequence number.
func (w *WAL) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWALClosed
	}

	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("wal: reset: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal: reset: %w", err)
	}
	w.count = 0
	return w.file.Sync()
}

// LastSeq returns the sequence number of the latest record.
func (w *WAL) LastSeq() uint64 {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Len returns the number of records in the file.
func (w *WAL) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *WAL) Path() string { return w.path }

// Close syncs and closes the file. The WAL must not be used afterwards.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
