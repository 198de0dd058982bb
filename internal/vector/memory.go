package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// MemoryIndex is an in-memory index using brute-force cosine search. Every operation
// holds the index lock, so Upsert is atomic with respect to readers.
type MemoryIndex struct {
	collections map[string]*memCollection
	mu          sync.RWMutex
}

type memCollection struct {
	dimension int
	records   []Record
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]*memCollection)}
}

// EnsureIndex creates the collection if needed.
func (m *MemoryIndex) EnsureIndex(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[name]; ok {
		if c.dimension != dimension {
			return fmt.Errorf("%w: index %q has dimension %d, requested %d", ErrDimensionMismatch, name, c.dimension, dimension)
		}
		return nil
	}
	m.collections[name] = &memCollection{dimension: dimension}
	return nil
}

// Upsert removes records matching deleteFilter and records with the same IDs as the
// new ones, then appends records.
func (m *MemoryIndex) Upsert(ctx context.Context, name string, records []Record, deleteFilter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return notFound(name)
	}
	replaced := make(map[string]bool, len(records))
	for _, r := range records {
		if err := checkDimension(name, c.dimension, r.Vector); err != nil {
			return err
		}
		if !finite(r.Vector) {
			return fmt.Errorf("record %s: vector has non-finite components", r.ID)
		}
		replaced[r.ID] = true
	}
	kept := make([]Record, 0, len(c.records)+len(records))
	for _, r := range c.records {
		if replaced[r.ID] || (len(deleteFilter) > 0 && deleteFilter.Matches(r.Metadata)) {
			continue
		}
		kept = append(kept, r)
	}
	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		kept = append(kept, Record{ID: r.ID, Vector: vec, Metadata: copyMetadata(r.Metadata)})
	}
	c.records = kept
	return nil
}

// Query returns the topK most similar records matching filter.
func (m *MemoryIndex) Query(ctx context.Context, name string, vector []float32, topKCount int, filter Filter) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, notFound(name)
	}
	if err := checkDimension(name, c.dimension, vector); err != nil {
		return nil, err
	}
	if topKCount <= 0 {
		return nil, nil
	}
	var results []Result
	for _, r := range c.records {
		if !filter.Matches(r.Metadata) {
			continue
		}
		results = append(results, Result{ID: r.ID, Score: CosineSimilarity(vector, r.Vector), Metadata: copyMetadata(r.Metadata)})
	}
	return topK(results, topKCount), nil
}

// DeleteByFilter removes records matching filter.
func (m *MemoryIndex) DeleteByFilter(ctx context.Context, name string, filter Filter) error {
	if len(filter) == 0 {
		return ErrEmptyFilter
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return notFound(name)
	}
	kept := c.records[:0]
	for _, r := range c.records {
		if !filter.Matches(r.Metadata) {
			kept = append(kept, r)
		}
	}
	for i := len(kept); i < len(c.records); i++ {
		c.records[i] = Record{}
	}
	c.records = kept
	return nil
}

// Count returns the number of records matching filter.
func (m *MemoryIndex) Count(ctx context.Context, name string, filter Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return 0, notFound(name)
	}
	n := 0
	for _, r := range c.records {
		if filter.Matches(r.Metadata) {
			n++
		}
	}
	return n, nil
}

// snapshotMagic starts every snapshot file.
const snapshotMagic = "DRVX1"

// Save persists all collections to path. The directory is created if needed. Format:
// magic, collection count (4), then per collection: name, dimension (4), record count (4),
// and per record: id, vector (dimension*4 bytes), metadata JSON. Strings are
// length-prefixed (4).
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.writeSnapshot(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryIndex) writeSnapshot(w io.Writer) error {
	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.collections))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for name, c := range m.collections {
		if err := writeBytes(w, []byte(name)); err != nil {
			return fmt.Errorf("write name: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(c.dimension), uint32(len(c.records))}); err != nil {
			return fmt.Errorf("write collection header: %w", err)
		}
		for _, r := range c.records {
			meta, err := json.Marshal(r.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata of %s: %w", r.ID, err)
			}
			if err := writeBytes(w, []byte(r.ID)); err != nil {
				return fmt.Errorf("write id: %w", err)
			}
			if _, err := w.Write(float32SliceToBytes(r.Vector)); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
			if err := writeBytes(w, meta); err != nil {
				return fmt.Errorf("write metadata: %w", err)
			}
		}
	}
	return nil
}

// Load replaces the in-memory contents with the snapshot at path. If the file does not
// exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != snapshotMagic {
		return fmt.Errorf("%s is not an index snapshot", path)
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	collections := make(map[string]*memCollection, n)
	for i := uint32(0); i < n; i++ {
		name, err := readBytes(r)
		if err != nil {
			return fmt.Errorf("read name: %w", err)
		}
		var hdr [2]uint32
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return fmt.Errorf("read collection header: %w", err)
		}
		c := &memCollection{dimension: int(hdr[0]), records: make([]Record, 0, hdr[1])}
		buf := make([]byte, c.dimension*4)
		for j := uint32(0); j < hdr[1]; j++ {
			id, err := readBytes(r)
			if err != nil {
				return fmt.Errorf("read id: %w", err)
			}
			if _, err := io.ReadFull(r, buf); err != nil {
				return fmt.Errorf("read vector: %w", err)
			}
			metaJSON, err := readBytes(r)
			if err != nil {
				return fmt.Errorf("read metadata: %w", err)
			}
			var meta map[string]any
			if err := json.Unmarshal(metaJSON, &meta); err != nil {
				return fmt.Errorf("unmarshal metadata of %s: %w", id, err)
			}
			c.records = append(c.records, Record{ID: string(id), Vector: bytesToFloat32Slice(buf), Metadata: meta})
		}
		collections[string(name)] = c
	}
	m.mu.Lock()
	m.collections = collections
	m.mu.Unlock()
	return nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
