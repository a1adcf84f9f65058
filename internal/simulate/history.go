package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/okian/passwatch/internal/adapters/repository"
	"github.com/okian/passwatch/internal/domain/model"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// historyRecord is one line of the JSON-lines history dump.
type historyRecord struct {
	Kind        string                   `json:"kind"`
	Checkpoint  *model.CheckpointMeta    `json:"checkpoint,omitempty"`
	Observation *model.StatusObservation `json:"observation,omitempty"`
	Signal      *model.SocialSignal      `json:"signal,omitempty"`
}

// historyWriter forwards every record to next and appends it to a file.
type historyWriter struct {
	next repository.Writer
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func newHistoryWriter(next repository.Writer, filename string) (*historyWriter, error) {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create history file: %w", err)
	}
	return &historyWriter{next: next, file: f, enc: json.NewEncoder(f)}, nil
}

func (h *historyWriter) write(rec historyRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enc.Encode(rec)
}

func (h *historyWriter) UpsertCheckpoint(ctx context.Context, cp model.CheckpointMeta) error {
	if err := h.next.UpsertCheckpoint(ctx, cp); err != nil {
		return err
	}
	return h.write(historyRecord{Kind: "checkpoint", Checkpoint: &cp})
}

func (h *historyWriter) AppendObservation(ctx context.Context, obs model.StatusObservation) error {
	if err := h.next.AppendObservation(ctx, obs); err != nil {
		return err
	}
	return h.write(historyRecord{Kind: "observation", Observation: &obs})
}

func (h *historyWriter) AppendSignal(ctx context.Context, sig model.SocialSignal) error {
	if err := h.next.AppendSignal(ctx, sig); err != nil {
		return err
	}
	return h.write(historyRecord{Kind: "signal", Signal: &sig})
}

func (h *historyWriter) Close() error { return h.file.Close() }
