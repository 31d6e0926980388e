package enrich

// breaker tracks consecutive fetch failures. When the count reaches
// maxFailures the worker pauses for its backoff window and then resumes
// with a zeroed count. This is a pause-and-resume breaker, not an
// escalating backoff: one quiet period is the whole penalty.
//
// The breaker is owned by the single consumer goroutine and needs no
// locking.
type breaker struct {
	maxFailures int
	failures    int
}

func newBreaker(maxFailures int) *breaker {
	return &breaker{maxFailures: maxFailures}
}

// failure counts one more consecutive failure and reports whether the
// breaker tripped.
func (b *breaker) failure() bool {
	b.failures++
	return b.maxFailures > 0 && b.failures >= b.maxFailures
}

// success resets the consecutive-failure count.
func (b *breaker) success() {
	b.failures = 0
}

// reset clears the count after a backoff window has elapsed.
func (b *breaker) reset() {
	b.failures = 0
}
