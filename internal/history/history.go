package history

import "EMOTISENSE/go-client/internal/models"

// DefaultCapacity bounds the rolling sample history.
const DefaultCapacity = 300

// Ring is a bounded, insertion-ordered buffer of classification samples.
// When full, Append evicts the oldest sample. Ring is not safe for
// concurrent use; the owning session serializes access.
type Ring struct {
	buf   []models.ClassificationSample
	start int
	count int
}

func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]models.ClassificationSample, capacity)}
}

// Append adds a sample at the tail, evicting the oldest when full. O(1).
func (r *Ring) Append(s models.ClassificationSample) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = s
		r.count++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

func (r *Ring) Len() int {
	return r.count
}

func (r *Ring) Cap() int {
	return len(r.buf)
}

// Samples returns a copy of the buffer in insertion order, oldest first.
func (r *Ring) Samples() []models.ClassificationSample {
	out := make([]models.ClassificationSample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Reset empties the buffer.
func (r *Ring) Reset() {
	r.start = 0
	r.count = 0
}

// Aggregate computes the mean intensity and the most frequent primary label
// over the current buffer. Label ties break toward the label that first
// reached the winning count in insertion order; empty labels do not compete.
func (r *Ring) Aggregate() models.Aggregate {
	agg := models.Aggregate{Count: r.count}
	if r.count == 0 {
		return agg
	}

	var sum float64
	counts := make(map[string]int)
	best := 0
	for i := 0; i < r.count; i++ {
		s := r.buf[(r.start+i)%len(r.buf)]
		sum += s.Intensity
		if s.PrimaryLabel == "" {
			continue
		}
		counts[s.PrimaryLabel]++
		if counts[s.PrimaryLabel] > best {
			best = counts[s.PrimaryLabel]
		}
	}
	agg.MeanIntensity = sum / float64(r.count)

	// second pass in insertion order settles ties deterministically
	if best > 0 {
		seen := make(map[string]bool, len(counts))
		for i := 0; i < r.count && agg.TopLabel == ""; i++ {
			label := r.buf[(r.start+i)%len(r.buf)].PrimaryLabel
			if label == "" || seen[label] {
				continue
			}
			seen[label] = true
			if counts[label] == best {
				agg.TopLabel = label
			}
		}
	}
	return agg
}
