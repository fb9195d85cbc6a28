// Package journal appends envelopes to a line-delimited log file in their
// canonical wire form. It is write-only observability: replay is out of
// scope.
package journal

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/nfrund/courier/internal/bus"
)

// Journal writes one encoded envelope per line to a file on an afero
// filesystem. Appends are serialized internally, so a Journal can back hooks
// on several mailboxes at once.
type Journal struct {
	fs     afero.Fs
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	file afero.File
}

// New opens (or creates) the journal file at path.
func New(fs afero.Fs, path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{
		fs:     fs,
		path:   path,
		logger: logger.With("component", "journal", "path", path),
		file:   f,
	}, nil
}

// Append writes the envelope's wire form followed by a newline.
func (j *Journal) Append(e bus.Envelope) error {
	encoded, err := e.Encode()
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.file.Write(append(encoded, '\n')); err != nil {
		return err
	}
	return nil
}

// Hook adapts the journal to the mailbox hook contract. Write failures are
// logged; a hook must never affect delivery.
func (j *Journal) Hook() bus.Hook {
	return func(e bus.Envelope) {
		if err := j.Append(e); err != nil {
			j.logger.Error("journal append failed", "kind", e.Kind, "id", e.ID, "error", err)
		}
	}
}

// Handler adapts the journal to the subscription handler contract, for
// running it as a serial subscriber on a topic.
func (j *Journal) Handler() bus.Handler {
	return func(e bus.Envelope) error {
		return j.Append(e)
	}
}

// Close flushes and closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
