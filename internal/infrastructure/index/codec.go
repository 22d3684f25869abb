package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

const (
	denseMagic   = "FQDN"
	lexicalMagic = "FQLX"
	codecVersion = uint16(1)

	// Decode limits. Counts above these are treated as corruption.
	maxDecodeDim    = 1 << 16
	maxDecodeString = 1 << 20
	maxDecodeLevel  = 64
	decodeChunk     = 1 << 14
)

// Compression wraps persisted index blobs.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

func ParseCompression(raw string) (Compression, error) {
	switch Compression(raw) {
	case CompressionNone, CompressionZstd, CompressionLZ4:
		return Compression(raw), nil
	case "":
		return CompressionZstd, nil
	default:
		return "", domain.WrapError(domain.ErrConfig, "parse compression", fmt.Errorf("unrecognized compression %q", raw))
	}
}

func (c Compression) Ext() string {
	switch c {
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func compressWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionZstd:
		return zstd.NewWriter(w)
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionNone, "":
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", c)
	}
}

func decompressReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionNone, "":
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", c)
	}
}

// binWriter keeps the first error so encoders can write without checks.
type binWriter struct {
	w   *bufio.Writer
	err error
}

func newBinWriter(w io.Writer) *binWriter {
	return &binWriter{w: bufio.NewWriter(w)}
}

func (b *binWriter) put(v any) {
	if b.err != nil {
		return
	}
	b.err = binary.Write(b.w, binary.LittleEndian, v)
}

func (b *binWriter) str(s string) {
	b.put(uint32(len(s)))
	if b.err != nil {
		return
	}
	_, b.err = b.w.WriteString(s)
}

func (b *binWriter) flush() error {
	if b.err != nil {
		return b.err
	}
	return b.w.Flush()
}

type binReader struct {
	r   io.Reader
	err error
}

func (b *binReader) get(v any) {
	if b.err != nil {
		return
	}
	b.err = binary.Read(b.r, binary.LittleEndian, v)
}

func (b *binReader) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *binReader) u32() uint32 {
	var v uint32
	b.get(&v)
	return v
}

// count reads a length prefix and rejects values above limit.
func (b *binReader) count(what string, limit int) int {
	v := int(b.u32())
	if b.err == nil && v > limit {
		b.fail(fmt.Errorf("%s count %d exceeds limit %d", what, v, limit))
	}
	if b.err != nil {
		return 0
	}
	return v
}

func (b *binReader) str() string {
	n := b.count("string", maxDecodeString)
	if b.err != nil {
		return ""
	}
	buf := make([]byte, n)
	_, b.err = io.ReadFull(b.r, buf)
	return string(buf)
}

// f32s and i32s grow in chunks so a corrupt length cannot allocate more
// than the stream actually holds.
func (b *binReader) f32s(n int) []float32 {
	out := make([]float32, 0, min(n, decodeChunk))
	for len(out) < n && b.err == nil {
		chunk := make([]float32, min(decodeChunk, n-len(out)))
		b.get(chunk)
		out = append(out, chunk...)
	}
	return out
}

func (b *binReader) i32s(n int) []int32 {
	out := make([]int32, 0, min(n, decodeChunk))
	for len(out) < n && b.err == nil {
		chunk := make([]int32, min(decodeChunk, n-len(out)))
		b.get(chunk)
		out = append(out, chunk...)
	}
	return out
}

// ids reads n positions and checks each lies in [0, size).
func (b *binReader) ids(what string, n, size int) []int32 {
	out := b.i32s(n)
	if b.err != nil {
		return nil
	}
	for _, id := range out {
		if id < 0 || int(id) >= size {
			b.fail(fmt.Errorf("%s id %d out of range [0,%d)", what, id, size))
			return nil
		}
	}
	return out
}

func (b *binReader) header(magic string) {
	got := make([]byte, len(magic))
	if b.err == nil {
		_, b.err = io.ReadFull(b.r, got)
	}
	if b.err == nil && string(got) != magic {
		b.err = fmt.Errorf("bad magic %q, want %q", got, magic)
	}
	var version uint16
	b.get(&version)
	if b.err == nil && version != codecVersion {
		b.err = fmt.Errorf("unsupported codec version %d", version)
	}
}

// EncodeDense writes a dense index in a little-endian binary layout.
func EncodeDense(w io.Writer, d Dense) error {
	bw := newBinWriter(w)
	bw.w.WriteString(denseMagic)
	bw.put(codecVersion)
	bw.str(string(d.Kind()))
	bw.put(uint32(d.Dimension()))
	bw.put(uint32(d.Len()))

	switch idx := d.(type) {
	case *Flat:
		bw.put(idx.data)
	case *HNSW:
		bw.put(idx.data)
		bw.put([]uint32{uint32(idx.m), uint32(idx.m0), uint32(idx.efConstruction), uint32(idx.efSearch), uint32(idx.maxLevel)})
		bw.put(idx.entry)
		bw.put(idx.levels)
		for id := range idx.links {
			for _, conns := range idx.links[id] {
				bw.put(uint32(len(conns)))
				bw.put(conns)
			}
		}
	case *IVF:
		bw.put(idx.data)
		bw.put(uint32(idx.nprobe))
		bw.put(uint32(len(idx.lists)))
		bw.put(idx.centroids)
		for _, list := range idx.lists {
			bw.put(uint32(len(list)))
			bw.put(list)
		}
	default:
		return fmt.Errorf("encode dense index: unsupported type %T", d)
	}
	return bw.flush()
}

// DecodeDense reads an index written by EncodeDense. Corrupt or truncated
// input is reported as an error.
func DecodeDense(r io.Reader) (Dense, error) {
	br := &binReader{r: bufio.NewReader(r)}
	br.header(denseMagic)
	kind := Kind(br.str())
	dim := br.count("dimension", maxDecodeDim)
	n := int(br.u32())
	if br.err == nil && n > 0 && dim == 0 {
		br.fail(fmt.Errorf("zero dimension for %d vectors", n))
	}
	if br.err != nil {
		return nil, fmt.Errorf("decode dense header: %w", truncated(br.err))
	}

	var d Dense
	switch kind {
	case KindFlat:
		d = &Flat{dim: dim, n: n, data: br.f32s(n * dim)}
	case KindHNSW:
		d = decodeHNSW(br, dim, n)
	case KindIVF:
		d = decodeIVF(br, dim, n)
	default:
		return nil, domain.WrapError(domain.ErrConfig, "decode dense index", fmt.Errorf("unrecognized index kind %q", kind))
	}
	if br.err != nil {
		return nil, fmt.Errorf("decode %s index: %w", kind, truncated(br.err))
	}
	return d, nil
}

func decodeHNSW(br *binReader, dim, n int) *HNSW {
	h := &HNSW{dim: dim, n: n, data: br.f32s(n * dim)}
	params := make([]uint32, 5)
	br.get(params)
	h.m, h.m0, h.efConstruction, h.efSearch, h.maxLevel = int(params[0]), int(params[1]), int(params[2]), int(params[3]), int(params[4])
	br.get(&h.entry)
	if br.err != nil {
		return h
	}
	if h.maxLevel > maxDecodeLevel {
		br.fail(fmt.Errorf("max level %d exceeds limit %d", h.maxLevel, maxDecodeLevel))
		return h
	}
	if (n == 0 && h.entry != -1) || (n > 0 && (h.entry < 0 || int(h.entry) >= n)) {
		br.fail(fmt.Errorf("entry point %d out of range for %d nodes", h.entry, n))
		return h
	}

	h.levels = br.i32s(n)
	h.links = make([][][]int32, 0, min(n, decodeChunk))
	for id := 0; id < n && br.err == nil; id++ {
		level := h.levels[id]
		if level < 0 || int(level) > h.maxLevel {
			br.fail(fmt.Errorf("node %d level %d out of range [0,%d]", id, level, h.maxLevel))
			break
		}
		layers := make([][]int32, level+1)
		for l := range layers {
			layers[l] = br.ids("neighbor", br.count("neighbor", n), n)
		}
		h.links = append(h.links, layers)
	}
	return h
}

func decodeIVF(br *binReader, dim, n int) *IVF {
	ivf := &IVF{dim: dim, n: n, data: br.f32s(n * dim)}
	ivf.nprobe = int(br.u32())
	nlist := br.count("list", ivfListCount(n))
	ivf.centroids = br.f32s(nlist * dim)
	ivf.lists = make([][]int32, nlist)
	for c := 0; c < nlist && br.err == nil; c++ {
		ivf.lists[c] = br.ids("list member", br.count("list member", n), n)
	}
	return ivf
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("truncated: %w", io.ErrUnexpectedEOF)
	}
	return err
}

// EncodeLexical writes postings, document lengths and idf values.
func EncodeLexical(w io.Writer, idx *BM25) error {
	bw := newBinWriter(w)
	bw.w.WriteString(lexicalMagic)
	bw.put(codecVersion)
	bw.put([]float64{idx.k1, idx.b, idx.avgdl})
	bw.put(uint32(len(idx.docLens)))
	bw.put(idx.docLens)

	terms := idx.sortedTerms()
	bw.put(uint32(len(terms)))
	for _, term := range terms {
		bw.str(term)
		bw.put(idx.idf[term])
		plist := idx.postings[term]
		bw.put(uint32(len(plist)))
		for _, p := range plist {
			bw.put([2]int32{p.doc, p.tf})
		}
	}
	return bw.flush()
}

func DecodeLexical(r io.Reader) (*BM25, error) {
	br := &binReader{r: bufio.NewReader(r)}
	br.header(lexicalMagic)
	params := make([]float64, 3)
	br.get(params)
	n := int(br.u32())
	idx := &BM25{
		k1:      params[0],
		b:       params[1],
		avgdl:   params[2],
		docLens: br.i32s(n),
	}

	termCount := int(br.u32())
	idx.postings = make(map[string][]posting, min(termCount, decodeChunk))
	idx.idf = make(map[string]float64, min(termCount, decodeChunk))
	for i := 0; i < termCount && br.err == nil; i++ {
		term := br.str()
		var idf float64
		br.get(&idf)
		count := br.count("posting", n)
		plist := make([]posting, 0, min(count, decodeChunk))
		for j := 0; j < count && br.err == nil; j++ {
			var pair [2]int32
			br.get(&pair)
			if br.err == nil && (pair[0] < 0 || int(pair[0]) >= n) {
				br.fail(fmt.Errorf("posting doc %d out of range [0,%d)", pair[0], n))
			}
			plist = append(plist, posting{doc: pair[0], tf: pair[1]})
		}
		idx.postings[term] = plist
		idx.idf[term] = idf
	}
	if br.err != nil {
		return nil, fmt.Errorf("decode lexical index: %w", truncated(br.err))
	}
	return idx, nil
}
