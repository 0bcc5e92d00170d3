// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/aegis-foundation/aegis/lib/codec"
)

// CompressionTag identifies the compression algorithm of a stored
// record. Tags are written to disk (1 byte each) — these values are
// format constants, never renumber.
type CompressionTag uint8

const (
	// CompressionNone stores the record uncompressed.
	CompressionNone CompressionTag = 0
	// CompressionLZ4 stores the record as an LZ4 block.
	CompressionLZ4 CompressionTag = 1
	// CompressionZstd stores the record zstd-compressed.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// auditFileSuffix names per-session ledger files in the state
// directory.
const auditFileSuffix = ".audit"

// maxRecordSize bounds a single stored record. A length prefix past
// this is treated as corruption rather than an allocation request.
const maxRecordSize = 16 << 20

// zstdEncoder and zstdDecoder are shared across records. Both are
// safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("audit: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("audit: zstd decoder initialization failed: " + err.Error())
	}
}

// FileStorage is a file-backed Storage. Each session's chain lives in
// an append-only file of length-prefixed CBOR records:
//
//	[1 byte compression tag][4 bytes raw size][4 bytes stored size][stored bytes]
//
// All sizes are big-endian. The full ledger is indexed in memory on
// open; Store appends to the session file and the index together.
type FileStorage struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	index *MemoryStorage
}

// FileStorageOptions configures OpenFileStorage.
type FileStorageOptions struct {
	// Logger receives warnings about unreadable records. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// OpenFileStorage opens (creating if needed) audit storage in the
// given directory. Existing session files are loaded into the index;
// a torn or corrupt trailing record stops the load of that file with
// a warning, keeping the intact prefix.
func OpenFileStorage(dir string, opts FileStorageOptions) (*FileStorage, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("audit: creating storage directory: %w", err)
	}

	storage := &FileStorage{
		dir:    dir,
		logger: logger,
		index:  NewMemoryStorage(),
	}
	if err := storage.loadAll(); err != nil {
		return nil, err
	}
	return storage, nil
}

func (s *FileStorage) loadAll() error {
	names, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("audit: reading storage directory: %w", err)
	}
	for _, dirEntry := range names {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), auditFileSuffix) {
			continue
		}
		if err := s.loadSessionFile(filepath.Join(s.dir, dirEntry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStorage) loadSessionFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audit: opening %s: %w", path, err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for {
		entry, err := readRecord(reader)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// Keep the intact prefix of the chain; verification will
			// surface the truncation as a broken or missing link.
			s.logger.Warn("audit: unreadable record, stopping load of session file",
				"path", path, "error", err)
			return nil
		}
		if err := s.index.Store(entry); err != nil {
			return err
		}
	}
}

// Store implements Storage.
func (s *FileStorage) Store(entry *Entry) error {
	if err := validSessionID(entry.SessionID); err != nil {
		return err
	}
	record, err := encodeRecord(entry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, entry.SessionID+auditFileSuffix)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("audit: opening session file: %w", err)
	}
	if _, err := file.Write(record); err != nil {
		file.Close()
		return fmt.Errorf("audit: writing record: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("audit: closing session file: %w", err)
	}

	return s.index.Store(entry)
}

// Get implements Storage.
func (s *FileStorage) Get(id string) (*Entry, error) { return s.index.Get(id) }

// ChainHead implements Storage.
func (s *FileStorage) ChainHead(sessionID string) (*Entry, error) {
	return s.index.ChainHead(sessionID)
}

// SessionEntries implements Storage.
func (s *FileStorage) SessionEntries(sessionID string) ([]*Entry, error) {
	return s.index.SessionEntries(sessionID)
}

// Count implements Storage.
func (s *FileStorage) Count() (int, error) { return s.index.Count() }

// CountSession implements Storage.
func (s *FileStorage) CountSession(sessionID string) (int, error) {
	return s.index.CountSession(sessionID)
}

// ListSessions implements Storage.
func (s *FileStorage) ListSessions() ([]string, error) { return s.index.ListSessions() }

// validSessionID restricts session IDs to names safe to use as file
// names.
func validSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.New("audit: empty session ID")
	}
	for _, r := range sessionID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("audit: session ID %q contains %q; only letters, digits, '-', and '_' are allowed", sessionID, r)
		}
	}
	return nil
}

// encodeRecord serializes an entry into the on-disk record format,
// choosing a compression tag by probing: zstd when it compresses well,
// LZ4 when it compresses a little, raw otherwise.
func encodeRecord(entry *Entry) ([]byte, error) {
	payload, err := codec.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("audit: encoding entry %s: %w", entry.ID, err)
	}
	if len(payload) > maxRecordSize {
		return nil, fmt.Errorf("audit: entry %s exceeds record size limit", entry.ID)
	}

	tag, stored := compressPayload(payload)

	record := make([]byte, 0, 9+len(stored))
	record = append(record, byte(tag))
	record = binary.BigEndian.AppendUint32(record, uint32(len(payload)))
	record = binary.BigEndian.AppendUint32(record, uint32(len(stored)))
	return append(record, stored...), nil
}

// compressPayload probes zstd on the payload: a ratio of 1.5x or
// better selects zstd, 1.1x or better selects LZ4, anything less
// stores raw.
func compressPayload(payload []byte) (CompressionTag, []byte) {
	if len(payload) < 128 {
		return CompressionNone, payload
	}

	compressed := zstdEncoder.EncodeAll(payload, nil)
	ratio := float64(len(payload)) / float64(len(compressed))
	switch {
	case ratio >= 1.5:
		return CompressionZstd, compressed
	case ratio >= 1.1:
		bound := lz4.CompressBlockBound(len(payload))
		block := make([]byte, bound)
		written, err := lz4.CompressBlock(payload, block, nil)
		if err != nil || written == 0 || written >= len(payload) {
			return CompressionNone, payload
		}
		return CompressionLZ4, block[:written]
	default:
		return CompressionNone, payload
	}
}

// readRecord reads and decodes one record. Returns io.EOF cleanly at
// the end of the file.
func readRecord(reader *bufio.Reader) (*Entry, error) {
	var header [9]byte
	if _, err := io.ReadFull(reader, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.New("audit: truncated record header")
		}
		return nil, err
	}

	tag := CompressionTag(header[0])
	rawSize := binary.BigEndian.Uint32(header[1:5])
	storedSize := binary.BigEndian.Uint32(header[5:9])
	if rawSize > maxRecordSize || storedSize > maxRecordSize {
		return nil, fmt.Errorf("audit: record size %d/%d exceeds limit", rawSize, storedSize)
	}

	stored := make([]byte, storedSize)
	if _, err := io.ReadFull(reader, stored); err != nil {
		return nil, errors.New("audit: truncated record body")
	}

	payload, err := decompressPayload(tag, stored, int(rawSize))
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := codec.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("audit: decoding record: %w", err)
	}
	return &entry, nil
}

func decompressPayload(tag CompressionTag, stored []byte, rawSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(stored) != rawSize {
			return nil, fmt.Errorf("audit: raw record size %d does not match header %d", len(stored), rawSize)
		}
		return stored, nil

	case CompressionLZ4:
		payload := make([]byte, rawSize)
		read, err := lz4.UncompressBlock(stored, payload)
		if err != nil {
			return nil, fmt.Errorf("audit: lz4 decompress: %w", err)
		}
		if read != rawSize {
			return nil, fmt.Errorf("audit: lz4 decompress: got %d bytes, expected %d", read, rawSize)
		}
		return payload, nil

	case CompressionZstd:
		payload, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("audit: zstd decompress: %w", err)
		}
		if len(payload) != rawSize {
			return nil, fmt.Errorf("audit: zstd decompress: got %d bytes, expected %d", len(payload), rawSize)
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("audit: unknown compression tag %d", tag)
	}
}
