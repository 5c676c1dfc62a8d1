package provider

import (
	"context"
	"errors"
)

var (
	ErrTrackNotFound    = errors.New("track not found")
	ErrUnavailable      = errors.New("provider unavailable")
	ErrProviderNotFound = errors.New("provider not found")
)

// StreamHandle is an opaque playable reference resolved by a provider.
type StreamHandle struct {
	URL        string
	DurationMS int64
}

type MusicProvider interface {
	Resolve(ctx context.Context, title, artist string) (StreamHandle, error)
}

type Registry struct {
	providers map[string]MusicProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]MusicProvider)}
}

func (r *Registry) Register(id string, p MusicProvider) {
	r.providers[id] = p
}

func (r *Registry) Get(id string) (MusicProvider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}

	return p, nil
}
