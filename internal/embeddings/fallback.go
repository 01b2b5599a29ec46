package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// Path identifies which provider in a fallback chain produced a result.
type Path string

const (
	PathPrimary  Path = "primary"
	PathFallback Path = "fallback"
)

// Result carries an embedding together with the path that produced it, so
// callers can tell whether the local provider served the request or the
// chain fell through to the remote one.
type Result struct {
	Vector   []float32
	Path     Path
	Provider string
	Language string
}

// Fallback chains a primary (typically local) provider with a secondary
// (typically remote) one. The secondary is consulted only when the primary
// fails; context cancellation is never retried.
type Fallback struct {
	primary   Provider
	secondary Provider
}

var _ Provider = (*Fallback)(nil)

// NewFallback builds a two-provider chain. Both providers must be non-nil.
func NewFallback(primary, secondary Provider) (*Fallback, error) {
	if primary == nil || secondary == nil {
		return nil, errors.New("embeddings: fallback requires two providers")
	}
	return &Fallback{primary: primary, secondary: secondary}, nil
}

// Name returns the chain name.
func (f *Fallback) Name() string {
	return fmt.Sprintf("hybrid(%s,%s)", f.primary.Name(), f.secondary.Name())
}

// Dimension reports the primary provider's dimension. Mixing providers with
// different dimensions in one store is the caller's mistake; NewFallback does
// not police it because dimensions can legitimately match across vendors.
func (f *Fallback) Dimension() int {
	return f.primary.Dimension()
}

// MaxBatchSize returns the smaller of the two providers' batch limits so a
// batch that falls through still fits.
func (f *Fallback) MaxBatchSize() int {
	if p, s := f.primary.MaxBatchSize(), f.secondary.MaxBatchSize(); p < s {
		return p
	}
	return f.secondary.MaxBatchSize()
}

// Embed tries the primary provider and falls back to the secondary.
func (f *Fallback) Embed(ctx context.Context, text string, languageHint string) ([]float32, error) {
	res, err := f.EmbedWithPath(ctx, text, languageHint)
	if err != nil {
		return nil, err
	}
	return res.Vector, nil
}

// EmbedWithPath is like Embed but records which provider served the request.
func (f *Fallback) EmbedWithPath(ctx context.Context, text string, languageHint string) (*Result, error) {
	vector, primaryErr := f.primary.Embed(ctx, text, languageHint)
	if primaryErr == nil {
		return &Result{Vector: vector, Path: PathPrimary, Provider: f.primary.Name()}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	vector, secondaryErr := f.secondary.Embed(ctx, text, languageHint)
	if secondaryErr != nil {
		return nil, fmt.Errorf("primary %s: %v; fallback %s: %w", f.primary.Name(), primaryErr, f.secondary.Name(), secondaryErr)
	}
	return &Result{Vector: vector, Path: PathFallback, Provider: f.secondary.Name()}, nil
}

// EmbedBatch tries the primary provider for the whole batch and falls back
// wholesale. Partial fallback would mix vector spaces within one batch.
func (f *Fallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, primaryErr := f.primary.EmbedBatch(ctx, texts)
	if primaryErr == nil {
		return vectors, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	vectors, secondaryErr := f.secondary.EmbedBatch(ctx, texts)
	if secondaryErr != nil {
		return nil, fmt.Errorf("primary %s: %v; fallback %s: %w", f.primary.Name(), primaryErr, f.secondary.Name(), secondaryErr)
	}
	return vectors, nil
}

// DetectLanguage delegates to the primary provider; detection is local for
// every provider in this package, so there is nothing to fall back to.
func (f *Fallback) DetectLanguage(ctx context.Context, text string) (string, error) {
	return f.primary.DetectLanguage(ctx, text)
}
