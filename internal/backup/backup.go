// Package backup exports and imports the full workspace as a portable
// archive: gzip-compressed JSON with a checksummed manifest, optionally
// encrypted with a passphrase.
package backup

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kimhsiao/promptdeck/internal/crypto"
	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/logging"
	"github.com/kimhsiao/promptdeck/internal/models"
	"github.com/kimhsiao/promptdeck/internal/store"
)

const archiveVersion = "1.0"

// Manifest describes the archive contents and carries the payload checksum.
type Manifest struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	TaskCount  int       `json:"taskCount"`
	Checksum   string    `json:"checksum"`
	Encrypted  bool      `json:"encrypted"`
}

// envelope is the outer wire format. Data holds the gzipped snapshot,
// encrypted when the manifest says so.
type envelope struct {
	Manifest Manifest `json:"manifest"`
	Data     []byte   `json:"data"`
}

// Result reports what an export or import touched.
type Result struct {
	TaskCount   int           `json:"taskCount"`
	FolderCount int           `json:"folderCount"`
	SizeBytes   int           `json:"sizeBytes"`
	Encrypted   bool          `json:"encrypted"`
	Duration    time.Duration `json:"-"`
}

// Service builds and restores workspace archives.
type Service struct {
	store *store.Store
	now   func() time.Time
}

// New creates a backup Service over the entity store.
func New(st *store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// Export writes an archive of the current workspace to w. A non-empty
// passphrase encrypts the payload.
func (s *Service) Export(w io.Writer, passphrase string) (*Result, error) {
	start := s.now()
	snap := s.store.Snapshot()

	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to serialize snapshot", err)
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(payload); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to compress snapshot", err)
	}
	if err := gz.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to compress snapshot", err)
	}

	data := compressed.Bytes()
	checksum := sha256.Sum256(data)

	encrypted := passphrase != ""
	if encrypted {
		data, err = crypto.Encrypt(data, []byte(passphrase))
		if err != nil {
			return nil, errors.Wrap(errors.ErrInternal, "failed to encrypt archive", err)
		}
	}

	env := envelope{
		Manifest: Manifest{
			Version:    archiveVersion,
			ExportedAt: start,
			TaskCount:  len(snap.Tasks),
			Checksum:   hex.EncodeToString(checksum[:]),
			Encrypted:  encrypted,
		},
		Data: data,
	}

	encoded, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to encode archive", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to write archive", err)
	}

	logging.Info("Workspace exported", map[string]interface{}{
		"tasks":     len(snap.Tasks),
		"folders":   len(snap.Folders),
		"encrypted": encrypted,
		"bytes":     len(encoded),
	})

	return &Result{
		TaskCount:   len(snap.Tasks),
		FolderCount: len(snap.Folders),
		SizeBytes:   len(encoded),
		Encrypted:   encrypted,
		Duration:    s.now().Sub(start),
	}, nil
}

// Read parses an archive and returns the snapshot it holds without applying
// it. The checksum is verified against the decrypted compressed payload.
func (s *Service) Read(r io.Reader, passphrase string) (*models.Snapshot, *Manifest, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrInvalid, "failed to read archive", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, errors.Wrap(errors.ErrInvalid, "not a workspace archive", err)
	}
	if env.Manifest.Version != archiveVersion {
		return nil, nil, errors.Newf(errors.ErrInvalid, "unsupported archive version %q", env.Manifest.Version)
	}

	data := env.Data
	if env.Manifest.Encrypted {
		if passphrase == "" {
			return nil, nil, errors.New(errors.ErrInvalid, "archive is encrypted, passphrase required")
		}
		data, err = crypto.Decrypt(data, []byte(passphrase))
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrInvalid, "wrong passphrase or corrupted archive", err)
		}
	}

	checksum := sha256.Sum256(data)
	if hex.EncodeToString(checksum[:]) != env.Manifest.Checksum {
		return nil, nil, errors.New(errors.ErrInvalid, "archive checksum mismatch")
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrInvalid, "failed to decompress archive", err)
	}
	defer gz.Close()

	payload, err := io.ReadAll(gz)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrInvalid, "failed to decompress archive", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, nil, errors.Wrap(errors.ErrInvalid, "failed to decode snapshot", err)
	}

	return &snap, &env.Manifest, nil
}

// Import replaces the workspace with the archive contents.
func (s *Service) Import(r io.Reader, passphrase string) (*Result, error) {
	start := s.now()

	snap, manifest, err := s.Read(r, passphrase)
	if err != nil {
		return nil, err
	}
	if err := validateSnapshot(snap); err != nil {
		return nil, err
	}

	s.store.Restore(snap)

	logging.Info("Workspace imported", map[string]interface{}{
		"tasks":       len(snap.Tasks),
		"folders":     len(snap.Folders),
		"exported_at": manifest.ExportedAt,
	})

	return &Result{
		TaskCount:   len(snap.Tasks),
		FolderCount: len(snap.Folders),
		Encrypted:   manifest.Encrypted,
		Duration:    s.now().Sub(start),
	}, nil
}

// validateSnapshot rejects archives whose tasks reference folders that do
// not exist in the same archive.
func validateSnapshot(snap *models.Snapshot) error {
	folders := make(map[string]bool, len(snap.Folders)+1)
	folders[models.DefaultFolderID] = true
	for _, f := range snap.Folders {
		folders[f.ID] = true
	}
	for _, task := range snap.Tasks {
		if !folders[task.FolderID] {
			return errors.Newf(errors.ErrInvalid, "task %s references missing folder %s", task.ID, task.FolderID)
		}
	}
	return nil
}

// Filename returns the default download name for an export.
func Filename(at time.Time) string {
	return fmt.Sprintf("promptdeck_%s.pdbak", at.Format("20060102_150405"))
}
