package main

import (
	"errors"
	"sync"

	"github.com/germanamz/guibridge/pkg/delegates"
	"github.com/germanamz/guibridge/pkg/sessiondata"
)

var errEmptyURL = errors.New("empty delegate url")

// delegateCard is the terminal rendition of a skill delegate: the url the core
// asked to show and the live session data bound to it.
type delegateCard struct {
	url string
	bag *sessiondata.Bag

	mu       sync.Mutex
	disposed bool
}

func (c *delegateCard) isDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// cardHost creates delegate cards for the engine.
type cardHost struct {
	mu   sync.Mutex
	live int
}

func newCardHost() *cardHost { return &cardHost{} }

func (h *cardHost) CreateResource(url string, data *sessiondata.Bag) (delegates.Handle, error) {
	if url == "" {
		return nil, errEmptyURL
	}

	h.mu.Lock()
	h.live++
	h.mu.Unlock()

	return &delegateCard{url: url, bag: data}, nil
}

func (h *cardHost) DisposeResource(handle delegates.Handle) {
	c, ok := handle.(*delegateCard)
	if !ok {
		return
	}

	c.mu.Lock()
	wasLive := !c.disposed
	c.disposed = true
	c.mu.Unlock()

	if wasLive {
		h.mu.Lock()
		h.live--
		h.mu.Unlock()
	}
}

// Live returns the number of cards not yet disposed.
func (h *cardHost) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}
