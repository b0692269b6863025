// Package snapshot writes zstd-compressed dumps of the mirror for offline
// inspection.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/MatthiasLenz/TechniteLogic/internal/mirror"
)

const Version = 1

var ErrUnsupportedVersion = errors.New("snapshot: unsupported version")

// Header is stored as one JSON line ahead of the gob body so tools can read
// it without decoding the whole mirror.
type Header struct {
	Version  int       `json:"version"`
	ClientID string    `json:"client_id"`
	State    string    `json:"state"`
	Nodes    int       `json:"nodes"`
	Units    int       `json:"units"`
	Rounds   uint64    `json:"rounds"`
	TakenAt  time.Time `json:"taken_at"`
}

type SnapshotV1 struct {
	Header Header
	Mirror mirror.Snapshot
}

// FromMirror wraps a mirror snapshot with its header.
func FromMirror(clientID string, s mirror.Snapshot, at time.Time) SnapshotV1 {
	return SnapshotV1{
		Header: Header{
			Version:  Version,
			ClientID: clientID,
			State:    s.State.String(),
			Nodes:    len(s.Grid.Nodes),
			Units:    len(s.Units),
			Rounds:   s.Rounds,
			TakenAt:  at.UTC(),
		},
		Mirror: s,
	}
}

// Write replaces the file at path atomically.
func Write(path string, snap SnapshotV1) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if err := encode(tmp, snap); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	tmpName = ""
	return nil
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func Read(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	br, closeFn, err := open(path)
	if err != nil {
		return snap, err
	}
	defer closeFn()

	if _, err := readHeader(br); err != nil {
		return snap, err
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	br, closeFn, err := open(path)
	if err != nil {
		return Header{}, err
	}
	defer closeFn()
	return readHeader(br)
}

func open(path string) (*bufio.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return bufio.NewReaderSize(dec, 256*1024), func() {
		dec.Close()
		_ = f.Close()
	}, nil
}

func readHeader(br *bufio.Reader) (Header, error) {
	line, err := br.ReadBytes('\n')
	if err != nil {
		return Header{}, fmt.Errorf("snapshot header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return Header{}, fmt.Errorf("snapshot header: %w", err)
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}
