package detector

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"
	"github.com/panbanda/clonestream/pkg/models"
)

// Chunkify slides a window of size k over lines and returns one chunk per
// position. A sequence shorter than k yields no chunks.
func Chunkify(lines []models.ContentLine, k int) []models.Chunk {
	if k <= 0 || len(lines) < k {
		return nil
	}

	chunks := make([]models.Chunk, 0, len(lines)-k+1)
	for i := 0; i+k <= len(lines); i++ {
		window := lines[i : i+k]
		chunks = append(chunks, models.Chunk{
			Offset:      i,
			Lines:       window,
			Fingerprint: fingerprint(window),
		})
	}
	return chunks
}

// fingerprint hashes the line texts of a window. Equal windows always share
// a fingerprint; matches are still confirmed text by text.
func fingerprint(lines []models.ContentLine) uint64 {
	d := xxhash.New()
	for _, l := range lines {
		d.WriteString(l.Text)
		d.Write([]byte{0})
	}
	return d.Sum64()
}

// PreparedFile is a file after normalization and chunking, with an index
// from chunk fingerprint to the offsets of the chunks carrying it.
type PreparedFile struct {
	Name   string
	Lines  []models.ContentLine
	Chunks []models.Chunk

	index map[uint64]*roaring.Bitmap
}

func newPreparedFile(name string, lines []models.ContentLine, chunks []models.Chunk) *PreparedFile {
	index := make(map[uint64]*roaring.Bitmap, len(chunks))
	for _, c := range chunks {
		bm, ok := index[c.Fingerprint]
		if !ok {
			bm = roaring.New()
			index[c.Fingerprint] = bm
		}
		bm.Add(uint32(c.Offset))
	}
	return &PreparedFile{
		Name:   name,
		Lines:  lines,
		Chunks: chunks,
		index:  index,
	}
}

// Offsets returns the offsets of chunks with the given fingerprint, or nil.
func (p *PreparedFile) Offsets(fp uint64) *roaring.Bitmap {
	return p.index[fp]
}

// DistinctChunks returns the number of distinct chunk fingerprints.
func (p *PreparedFile) DistinctChunks() int {
	return len(p.index)
}
