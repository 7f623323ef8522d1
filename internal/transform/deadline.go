package transform

import "time"

const mib = 1 << 20

// Budget turns an input size into a processing deadline.
type Budget struct {
	Floor   time.Duration // also the base for tiny inputs
	PerMiB  time.Duration
	Ceiling time.Duration
}

// Deadline is Floor + PerMiB*size, clamped to [Floor, Ceiling].
func (b Budget) Deadline(size int64) time.Duration {
	d := b.Floor
	if size > 0 {
		d += time.Duration(float64(b.PerMiB) * float64(size) / mib)
	}
	if d < b.Floor {
		d = b.Floor
	}
	if b.Ceiling > 0 && d > b.Ceiling {
		d = b.Ceiling
	}
	return d
}
