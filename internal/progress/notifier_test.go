package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	seen []int
}

func (r *recorder) sink(p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, p)
}

func (r *recorder) values() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.seen...)
}

func TestNotifier_MonotonicStepsAndFinal(t *testing.T) {
	r := &recorder{}
	n := New(5, 0, r.sink)
	const total = 1000
	for done := int64(0); done <= total; done += 7 {
		n.Report(done, total)
	}
	n.Report(total, total)
	n.Close()

	got := r.values()
	require.NotEmpty(t, got)
	assert.Equal(t, 100, got[len(got)-1])
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1], "values must be strictly increasing: %v", got)
		if got[i] != 100 {
			assert.GreaterOrEqual(t, got[i]-got[i-1], 5, "values must respect the step: %v", got)
		}
	}
}

func TestNotifier_UnknownTotalIsIgnored(t *testing.T) {
	r := &recorder{}
	n := New(5, 0, r.sink)
	n.Report(100, 0)
	n.Report(100, -1)
	n.Close()
	assert.Empty(t, r.values())
}

func TestNotifier_RateLimitStillDeliversCompletion(t *testing.T) {
	r := &recorder{}
	n := New(1, time.Hour, r.sink)
	for i := int64(0); i <= 100; i++ {
		n.Report(i, 100)
	}
	n.Close()

	got := r.values()
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 2, "one burst token plus the final update: %v", got)
	assert.Equal(t, 100, got[len(got)-1])
}

func TestNotifier_ReportAfterCloseIsNoop(t *testing.T) {
	r := &recorder{}
	n := New(5, 0, r.sink)
	n.Close()
	assert.NotPanics(t, func() { n.Report(50, 100) })
	n.Close()
	assert.Empty(t, r.values())
}
