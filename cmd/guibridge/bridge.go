package main

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/germanamz/guibridge/pkg/engine"
)

// bridgeBuffer is the event backlog held for the TUI while it is busy.
const bridgeBuffer = 128

// programReadyMsg hands the running program to the model together with the
// subscription taken before the engine started, so nothing published during
// startup is lost.
type programReadyMsg struct {
	program *tea.Program
	sub     *engine.Subscription
}

// engineEventMsg wraps one engine event.
type engineEventMsg struct {
	event engine.Event
}

// startBridge forwards engine events from sub to the program, subscribing
// first when sub is nil. The goroutine only calls p.Send; it never touches
// model state. The returned function cancels the bridge and waits for it to
// exit.
func startBridge(ctx context.Context, p *tea.Program, events *engine.EventBus, sub *engine.Subscription) context.CancelFunc {
	bridgeCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	if sub == nil {
		sub = events.Subscribe(bridgeBuffer)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer events.Unsubscribe(sub)
		for {
			select {
			case <-bridgeCtx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				p.Send(engineEventMsg{event: ev})
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}
