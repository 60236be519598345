package mcuupdate

import (
	"fmt"
	"os"
	"path/filepath"
)

// ChunkSize is the number of image bytes carried by one download data frame.
const ChunkSize = 166

// maxChunks is bounded by the 16 bit chunk index.
const maxChunks = 1<<16 - 1

// Image is a firmware binary to be transferred.
type Image struct {
	Name string
	Data []byte
}

// LoadImage reads an image from disk.
func LoadImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", ErrFile, err)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: %s is empty", ErrFile, path)
	}
	return Image{Name: filepath.Base(path), Data: data}, nil
}

// Chunk is one slice of an image.
type Chunk struct {
	Index uint16
	Data  []byte
}

// ChunkCount returns ceil(n/size).
func ChunkCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// SplitChunks slices data into chunks of at most size bytes. The chunks share
// the backing array of data.
func SplitChunks(data []byte, size int) ([]Chunk, error) {
	if size <= 0 {
		size = ChunkSize
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrFile)
	}

	count := ChunkCount(len(data), size)
	if count > maxChunks {
		return nil, fmt.Errorf("%w: image of %d bytes needs %d chunks, limit is %d", ErrFile, len(data), count, maxChunks)
	}

	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		end := min((i+1)*size, len(data))
		chunks = append(chunks, Chunk{Index: uint16(i), Data: data[i*size : end]})
	}
	return chunks, nil
}
