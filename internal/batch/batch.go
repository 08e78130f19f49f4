package batch

import (
	"fmt"

	"github.com/daypack/daypack/internal/scan"
	"github.com/daypack/daypack/internal/types"
)

// Batch is one fixed-size group of files, the unit of archiving and upload.
// Indices are 0-based and contiguous within a day. Every batch except the
// last holds exactly Size files; the last holds the remainder. No batch is
// empty.
type Batch struct {
	Index int
	Files []scan.FileRecord
}

// TotalBytes returns the summed size of the batch's files.
func (b *Batch) TotalBytes() int64 {
	var total int64
	for _, f := range b.Files {
		total += f.Size
	}
	return total
}

// Count returns the number of batches a sequence of n files produces with
// the given batch size: ceil(n/size).
func Count(n, size int) int {
	if size <= 0 {
		size = types.BATCH_SIZE
	}
	return (n + size - 1) / size
}

// At derives the batch at index from the enumerated sequence. The batch
// partition is a pure function of (ordering, size, index), which is what
// makes an interrupted run resumable: no iterator state is stored, the
// same inputs always reproduce the same batch contents.
func At(files []scan.FileRecord, size, index int) (*Batch, error) {
	if size <= 0 {
		size = types.BATCH_SIZE
	}
	total := Count(len(files), size)
	if index < 0 || index >= total {
		return nil, fmt.Errorf("batch index %d out of range (have %d batches)", index, total)
	}

	start := index * size
	end := start + size
	if end > len(files) {
		end = len(files)
	}

	return &Batch{Index: index, Files: files[start:end]}, nil
}

// From derives all batches starting at startIndex. Passing 0 partitions
// the whole sequence.
func From(files []scan.FileRecord, size, startIndex int) ([]*Batch, error) {
	if size <= 0 {
		size = types.BATCH_SIZE
	}
	total := Count(len(files), size)
	if startIndex < 0 || startIndex > total {
		return nil, fmt.Errorf("start index %d out of range (have %d batches)", startIndex, total)
	}

	batches := make([]*Batch, 0, total-startIndex)
	for i := startIndex; i < total; i++ {
		b, err := At(files, size, i)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}
