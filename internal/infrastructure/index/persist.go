package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

const snapshotPrefix = "indexes"

// manifest points at the current persisted version of a corpus. It is
// written after the index blobs so a reader never follows a partial save.
type manifest struct {
	Version     string        `json:"version"`
	Corpus      domain.Corpus `json:"corpus"`
	Kind        Kind          `json:"kind"`
	Compression Compression   `json:"compression"`
	Size        int           `json:"size"`
	BuiltAt     time.Time     `json:"built_at"`
	Dense       string        `json:"dense"`
	Lexical     string        `json:"lexical"`
	Metadata    string        `json:"metadata"`
}

// Persister saves and restores store snapshots through object storage.
type Persister struct {
	store       *Store
	storage     ports.ObjectStorage
	compression Compression
}

func NewPersister(store *Store, storage ports.ObjectStorage, compression Compression) *Persister {
	return &Persister{store: store, storage: storage, compression: compression}
}

func manifestKey(c domain.Corpus) string {
	return path.Join(snapshotPrefix, string(c), "CURRENT.json")
}

// Save writes the dense blob, the lexical blob and the metadata array of
// the current snapshot, then flips the manifest.
func (p *Persister) Save(ctx context.Context, c domain.Corpus) error {
	snap := p.store.Snapshot(c)
	if snap.Version() == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save snapshot", fmt.Errorf("corpus %s has no built version", c))
	}

	dir := path.Join(snapshotPrefix, string(c), snap.Version())
	m := manifest{
		Version:     snap.Version(),
		Corpus:      c,
		Kind:        snap.Dense().Kind(),
		Compression: p.compression,
		Size:        snap.Len(),
		BuiltAt:     snap.BuiltAt(),
		Dense:       path.Join(dir, "dense.bin"+p.compression.Ext()),
		Lexical:     path.Join(dir, "lexical.bin"+p.compression.Ext()),
		Metadata:    path.Join(dir, "metadata.json"+p.compression.Ext()),
	}

	if err := p.saveBlob(ctx, m.Dense, func(w io.Writer) error { return EncodeDense(w, snap.Dense()) }); err != nil {
		return fmt.Errorf("save dense index for %s: %w", c, err)
	}
	if err := p.saveBlob(ctx, m.Lexical, func(w io.Writer) error { return EncodeLexical(w, snap.Lexical()) }); err != nil {
		return fmt.Errorf("save lexical index for %s: %w", c, err)
	}
	if err := p.saveBlob(ctx, m.Metadata, func(w io.Writer) error { return json.NewEncoder(w).Encode(snap.Units()) }); err != nil {
		return fmt.Errorf("save metadata for %s: %w", c, err)
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := p.storage.Save(ctx, manifestKey(c), bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("save manifest for %s: %w", c, err)
	}
	return nil
}

func (p *Persister) saveBlob(ctx context.Context, key string, encode func(io.Writer) error) error {
	var buf bytes.Buffer
	zw, err := compressWriter(&buf, p.compression)
	if err != nil {
		return err
	}
	if err := encode(zw); err != nil {
		_ = zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return p.storage.Save(ctx, key, &buf)
}

// Restore loads the persisted version of c and publishes it. A missing
// manifest is reported as domain.ErrNotFound.
func (p *Persister) Restore(ctx context.Context, c domain.Corpus) error {
	snap, err := p.Load(ctx, c)
	if err != nil {
		return err
	}
	return p.store.Publish(snap)
}

// Load reads the persisted version of c without publishing it.
func (p *Persister) Load(ctx context.Context, c domain.Corpus) (*Snapshot, error) {
	var m manifest
	if err := p.readBlob(ctx, manifestKey(c), CompressionNone, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&m)
	}); err != nil {
		return nil, fmt.Errorf("read manifest for %s: %w", c, err)
	}

	var dense Dense
	if err := p.readBlob(ctx, m.Dense, m.Compression, func(r io.Reader) error {
		var err error
		dense, err = DecodeDense(r)
		return err
	}); err != nil {
		return nil, fmt.Errorf("load dense index for %s: %w", c, err)
	}

	var lexical *BM25
	if err := p.readBlob(ctx, m.Lexical, m.Compression, func(r io.Reader) error {
		var err error
		lexical, err = DecodeLexical(r)
		return err
	}); err != nil {
		return nil, fmt.Errorf("load lexical index for %s: %w", c, err)
	}

	var units []domain.Unit
	if err := p.readBlob(ctx, m.Metadata, m.Compression, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&units)
	}); err != nil {
		return nil, fmt.Errorf("load metadata for %s: %w", c, err)
	}

	return NewSnapshot(c, m.Version, m.BuiltAt, units, dense, lexical, p.store.opts.Tokenizer)
}

func (p *Persister) readBlob(ctx context.Context, key string, c Compression, decode func(io.Reader) error) error {
	rc, err := p.storage.Open(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	zr, err := decompressReader(rc, c)
	if err != nil {
		return err
	}
	defer zr.Close()

	if err := decode(zr); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: %w", key, io.ErrUnexpectedEOF)
		}
		return err
	}
	return nil
}
