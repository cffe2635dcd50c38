package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// ErrInvalidRatio is returned when a train ratio falls outside (0,1)
var ErrInvalidRatio = errors.New("train ratio must be in the open interval (0,1)")

// Split is a shuffled partition of all triples
type Split struct {
	Ratio float64
	Train []Triple
	Valid []Triple
	Test  []Triple
}

// Len returns the total number of triples across the three partitions
func (s *Split) Len() int {
	return len(s.Train) + len(s.Valid) + len(s.Test)
}

// SplitSizes returns the partition sizes for n triples:
// train = floor(ratio*n), and the remainder is halved with the odd element going to valid.
func SplitSizes(n int, ratio float64) (train, valid, test int) {
	// The epsilon absorbs binary float error such as 0.7*10 = 6.999...
	train = int(math.Floor(ratio*float64(n) + 1e-9))
	if train > n {
		train = n
	}
	holdout := n - train
	test = holdout / 2
	valid = holdout - test
	return train, valid, test
}

// Split partitions the triples into train/valid/test. The partition is cached and
// served again on later calls with a ratio producing the same sizes, until
// AddTriple or Restore mutates the store. Each call returns its own copy.
func (d *Dataset) Split(ratio float64) (*Split, error) {
	if math.IsNaN(ratio) || ratio <= 0 || ratio >= 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRatio, ratio)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.triples)
	train, valid, test := SplitSizes(n, ratio)

	if s := d.split; s != nil && len(s.Train) == train && len(s.Valid) == valid && len(s.Test) == test {
		return s.clone(), nil
	}

	shuffled := make([]Triple, n)
	copy(shuffled, d.triples)
	rng := rand.New(rand.NewPCG(d.splitSeed, uint64(n)))
	rng.Shuffle(n, func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	d.split = &Split{
		Ratio: ratio,
		Train: shuffled[:train:train],
		Valid: shuffled[train : train+valid : train+valid],
		Test:  shuffled[train+valid:],
	}
	return d.split.clone(), nil
}

func (s *Split) clone() *Split {
	return &Split{
		Ratio: s.Ratio,
		Train: slices.Clone(s.Train),
		Valid: slices.Clone(s.Valid),
		Test:  slices.Clone(s.Test),
	}
}

func ratioOf(train, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(train) / float64(total)
}
