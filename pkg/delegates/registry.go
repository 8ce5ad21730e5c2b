// Package delegates tracks the rendering-host resources created for skills.
// The registry never builds visual objects itself: it asks a Host to create a
// resource bound to the skill's session bag, remembers the returned handle
// under (skill, url), and asks the Host to dispose every handle of a skill
// when that skill is dropped.
package delegates

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/germanamz/guibridge/pkg/sessiondata"
)

var (
	// ErrNoHost is returned when no rendering host is attached.
	ErrNoHost = errors.New("delegates: no rendering host")
	// ErrInvalidKey is returned for an empty skill id or url.
	ErrInvalidKey = errors.New("delegates: skill id and url are required")
)

// Handle is an opaque reference to a resource owned by the rendering host.
type Handle any

// Host creates and disposes rendering resources.
type Host interface {
	// CreateResource instantiates the resource at url bound to data. The bag
	// stays valid for at least as long as the returned handle.
	CreateResource(url string, data *sessiondata.Bag) (Handle, error)
	// DisposeResource releases a handle returned by CreateResource.
	DisposeResource(h Handle)
}

// Option configures a Registry.
type Option func(*Registry)

// WithSharedURLs lets a url already created for one skill be reused by another
// skill instead of creating a second resource. The shared handle stays bound
// to the first skill's bag and is disposed with that skill.
func WithSharedURLs(share bool) Option {
	return func(r *Registry) { r.share = share }
}

// Registry maps (skill id, url) to host handles. It is safe for concurrent use.
type Registry struct {
	host  Host
	store *sessiondata.Store
	share bool

	mu      sync.Mutex
	entries map[string]map[string]Handle
}

// New creates a Registry that creates resources through host and binds them to
// bags from store. host may be nil, in which case GetOrCreate reports ErrNoHost
// until SetHost is called.
func New(host Host, store *sessiondata.Store, opts ...Option) *Registry {
	r := &Registry{
		host:    host,
		store:   store,
		entries: make(map[string]map[string]Handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetHost attaches the rendering host.
func (r *Registry) SetHost(host Host) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.host = host
}

// GetOrCreate returns the handle for (skillID, url), asking the host to create
// it when missing. created reports whether a new handle was made. When the
// host fails nothing is registered.
func (r *Registry) GetOrCreate(skillID, url string) (h Handle, created bool, err error) {
	if skillID == "" || url == "" {
		return nil, false, ErrInvalidKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.entries[skillID][url]; ok {
		return h, false, nil
	}

	if r.share {
		if h, ok := r.findURL(url); ok {
			return h, false, nil
		}
	}

	if r.host == nil {
		return nil, false, ErrNoHost
	}

	h, err = r.host.CreateResource(url, r.store.GetOrCreate(skillID))
	if err != nil {
		return nil, false, fmt.Errorf("delegates: create %q for %q: %w", url, skillID, err)
	}

	byURL, ok := r.entries[skillID]
	if !ok {
		byURL = make(map[string]Handle)
		r.entries[skillID] = byURL
	}
	byURL[url] = h

	return h, true, nil
}

// findURL scans every skill for url. Callers must hold r.mu.
func (r *Registry) findURL(url string) (Handle, bool) {
	for _, byURL := range r.entries {
		if h, ok := byURL[url]; ok {
			return h, true
		}
	}
	return nil, false
}

// Lookup returns the handle registered for (skillID, url).
func (r *Registry) Lookup(skillID, url string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[skillID][url]
	return h, ok
}

// URLs returns the sorted urls registered under skillID.
func (r *Registry) URLs(skillID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	urls := make([]string, 0, len(r.entries[skillID]))
	for u := range r.entries[skillID] {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Handles returns the handles registered under skillID, ordered by url.
func (r *Registry) Handles(skillID string) []Handle {
	urls := r.URLs(skillID)

	r.mu.Lock()
	defer r.mu.Unlock()

	hs := make([]Handle, 0, len(urls))
	for _, u := range urls {
		if h, ok := r.entries[skillID][u]; ok {
			hs = append(hs, h)
		}
	}
	return hs
}

// Skills returns the sorted ids of skills with at least one handle.
func (r *Registry) Skills() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DropSkill disposes every handle registered under skillID and forgets them.
// It returns the number of handles disposed.
func (r *Registry) DropSkill(skillID string) int {
	r.mu.Lock()
	byURL, ok := r.entries[skillID]
	delete(r.entries, skillID)
	host := r.host
	r.mu.Unlock()

	if !ok {
		return 0
	}

	if host != nil {
		for _, h := range byURL {
			host.DisposeResource(h)
		}
	}

	return len(byURL)
}

// DropAll disposes every registered handle.
func (r *Registry) DropAll() int {
	n := 0
	for _, id := range r.Skills() {
		n += r.DropSkill(id)
	}
	return n
}
