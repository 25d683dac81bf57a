package generation

import (
	"context"
	"sync"
)

// fakeBackend replays scripted answers in order; the last one repeats.
type fakeBackend struct {
	mu       sync.Mutex
	answers  []fakeAnswer
	requests []Request
}

type fakeAnswer struct {
	text string
	err  error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Complete(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.answers) == 0 {
		return "", nil
	}
	a := f.answers[0]
	if len(f.answers) > 1 {
		f.answers = f.answers[1:]
	}
	return a.text, a.err
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
