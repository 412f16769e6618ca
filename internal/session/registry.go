// SPDX-License-Identifier: MIT

package session

import (
	"errors"
	"sync"

	"github.com/typhoonhub/playcore/internal/assets"
	"github.com/typhoonhub/playcore/internal/content"
	"github.com/typhoonhub/playcore/internal/ledger"
	"github.com/typhoonhub/playcore/internal/playback"
)

// ErrNotFound is returned when no session exists for an ID.
var ErrNotFound = errors.New("session not found")

// Registry owns all live sessions in the daemon.
type Registry struct {
	resolver      *assets.Resolver
	recorder      *ledger.Recorder
	platformPayee string
	ad            AdConfig
	mediaFactory  func() playback.MediaElement

	mu       sync.Mutex
	sessions map[string]*Session
}

// RegistryOptions configures shared session collaborators.
type RegistryOptions struct {
	Resolver      *assets.Resolver
	Recorder      *ledger.Recorder
	PlatformPayee string
	Ad            AdConfig
	MediaFactory  func() playback.MediaElement
}

// NewRegistry builds an empty registry. A nil MediaFactory defaults to
// headless media elements.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.MediaFactory == nil {
		opts.MediaFactory = func() playback.MediaElement {
			return playback.NewHeadlessElement(0)
		}
	}
	return &Registry{
		resolver:      opts.Resolver,
		recorder:      opts.Recorder,
		platformPayee: opts.PlatformPayee,
		ad:            opts.Ad,
		mediaFactory:  opts.MediaFactory,
		sessions:      make(map[string]*Session),
	}
}

// Open creates and registers a session for the given content.
func (r *Registry) Open(c content.PlayableContent) *Session {
	s := New(Options{
		Content:       c,
		Resolver:      r.resolver,
		Recorder:      r.recorder,
		PlatformPayee: r.platformPayee,
		Ad:            r.ad,
		MediaFactory:  r.mediaFactory,
	})

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns the session for the ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close tears down and forgets the session.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.Close()
	return nil
}

// CloseAll tears down every live session. Used on daemon shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
