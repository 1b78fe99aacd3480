package musiclink

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupportedLink is returned for links no resolver understands.
var ErrUnsupportedLink = errors.New("unsupported music link")

// Manager dispatches a link to the first resolver that accepts it.
type Manager struct {
	resolvers []Resolver
}

// NewManager returns a manager with every built-in resolver.
func NewManager() *Manager {
	return NewManagerWith(NewYouTubeResolver(), NewSoundCloudResolver(), NewDeezerResolver(), NewAppleMusicResolver())
}

func NewManagerWith(resolvers ...Resolver) *Manager {
	return &Manager{resolvers: resolvers}
}

func (m *Manager) CanResolve(url string) bool {
	return m.resolverFor(url) != nil
}

func (m *Manager) Resolve(ctx context.Context, url string) (*TrackInfo, error) {
	r := m.resolverFor(url)
	if r == nil {
		return nil, ErrUnsupportedLink
	}
	info, err := r.Resolve(ctx, url)
	if err != nil {
		return nil, err
	}
	if info.Title == "" && info.Artist == "" {
		return nil, fmt.Errorf("%s: no track information found", r.Name())
	}
	return info, nil
}

// SearchQuery resolves url into a Spotify search query.
func (m *Manager) SearchQuery(ctx context.Context, url string) (string, error) {
	info, err := m.Resolve(ctx, url)
	if err != nil {
		return "", err
	}
	return info.Query(), nil
}

func (m *Manager) resolverFor(url string) Resolver {
	for _, r := range m.resolvers {
		if r.CanResolve(url) {
			return r
		}
	}
	return nil
}
