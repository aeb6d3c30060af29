package replay

import (
	"errors"
	"math/rand"
)

var (
	ErrInsufficientData = errors.New("replay: not enough eligible episodes")
	ErrEmptyEpisode     = errors.New("replay: episode has no transitions")
)

// EpisodeBuffer holds completed episodes up to a fixed capacity, evicting
// oldest-first once full. Sampling draws fixed-length contiguous windows
// from episodes long enough to contain them.
//
// The buffer is owned by the training loop and is not safe for concurrent
// use; the whole trainer runs on one goroutine.
type EpisodeBuffer struct {
	episodes []Episode
	capacity int
	rng      *rand.Rand
}

func NewEpisodeBuffer(capacity int, rng *rand.Rand) (*EpisodeBuffer, error) {
	if capacity <= 0 {
		return nil, errors.New("replay: capacity must be greater than zero")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &EpisodeBuffer{
		episodes: make([]Episode, 0, capacity),
		capacity: capacity,
		rng:      rng,
	}, nil
}

// AddEpisode appends a completed episode, evicting the oldest episode first
// when the buffer is at capacity.
func (b *EpisodeBuffer) AddEpisode(e Episode) error {
	if e.Len() == 0 {
		return ErrEmptyEpisode
	}
	if len(b.episodes) >= b.capacity {
		b.episodes = b.episodes[1:]
	}
	b.episodes = append(b.episodes, e)
	return nil
}

func (b *EpisodeBuffer) Len() int {
	return len(b.episodes)
}

func (b *EpisodeBuffer) Capacity() int {
	return b.capacity
}

// NumEligible reports how many stored episodes are long enough to yield a
// window of the given length.
func (b *EpisodeBuffer) NumEligible(window int) int {
	n := 0
	for i := range b.episodes {
		if b.episodes[i].Len() >= window {
			n++
		}
	}
	return n
}

// SampleBatch draws batchSize windows of exactly window transitions. Each
// window comes from an episode chosen independently and uniformly among the
// eligible ones (length >= window), with a uniform contiguous start index,
// so the window always fits inside its episode. Episodes are drawn with
// replacement across the batch.
func (b *EpisodeBuffer) SampleBatch(batchSize, window int) ([][]Transition, error) {
	if batchSize <= 0 {
		return nil, errors.New("replay: batch size must be greater than zero")
	}
	if window <= 0 {
		return nil, errors.New("replay: window length must be greater than zero")
	}

	eligible := make([]int, 0, len(b.episodes))
	for i := range b.episodes {
		if b.episodes[i].Len() >= window {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) < batchSize {
		return nil, ErrInsufficientData
	}

	batch := make([][]Transition, batchSize)
	for i := range batch {
		ep := &b.episodes[eligible[b.rng.Intn(len(eligible))]]
		start := b.rng.Intn(ep.Len() - window + 1)
		batch[i] = ep.window(start, window)
	}
	return batch, nil
}
