package scheduling

import "context"

// ForwardScheduler produces the weekly schedule by forwarding the
// repository's jobs in order. It performs no optimisation.
type ForwardScheduler struct {
	repo JobRepository
}

// NewForwardScheduler returns a scheduler reading from repo.
func NewForwardScheduler(repo JobRepository) *ForwardScheduler {
	return &ForwardScheduler{repo: repo}
}

// Generate returns the repository jobs unchanged.
func (f *ForwardScheduler) Generate(ctx context.Context) (Schedule, error) {
	return f.repo.Jobs(ctx)
}
