package completion

import (
	"errors"
	"testing"
)

func TestCollect(t *testing.T) {
	chunks := make(chan *Chunk, 4)
	chunks <- &Chunk{Text: "hello"}
	chunks <- &Chunk{Text: " "}
	chunks <- &Chunk{Text: "world"}
	chunks <- &Chunk{Done: true}
	close(chunks)

	got, err := Collect(chunks)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if got != "hello world" {
		t.Errorf("Collect() = %q, want %q", got, "hello world")
	}
}

func TestCollectSurfacesStreamError(t *testing.T) {
	streamErr := errors.New("stream broke")
	chunks := make(chan *Chunk, 3)
	chunks <- &Chunk{Text: "partial"}
	chunks <- &Chunk{Error: streamErr, Done: true}
	close(chunks)

	_, err := Collect(chunks)
	if !errors.Is(err, streamErr) {
		t.Errorf("Collect() error = %v, want %v", err, streamErr)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 too many requests"), true},
		{"server error", errors.New("502 bad gateway"), true},
		{"timeout", errors.New("context deadline exceeded"), true},
		{"connection", errors.New("connection refused"), true},
		{"auth", errors.New("401 invalid api key"), false},
		{"validation", errors.New("400 bad request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
