package worker

import (
	"context"
	"log"
	"sync"
	"time"
)

type tickerEntry struct {
	cancel context.CancelFunc
}

// TickerGroup runs one periodic task per key (a match id). Stop is idempotent
// and may be called from inside the task itself.
type TickerGroup struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	wg      sync.WaitGroup
}

func NewTickerGroup() *TickerGroup {
	return &TickerGroup{tickers: make(map[string]*tickerEntry)}
}

// Start runs fn every interval until Stop(id) or ctx is done.
// Returns false if a ticker for id is already running.
func (g *TickerGroup) Start(ctx context.Context, id string, interval time.Duration, fn func(ctx context.Context)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, running := g.tickers[id]; running {
		return false
	}

	tickCtx, cancel := context.WithCancel(ctx)
	entry := &tickerEntry{cancel: cancel}
	g.tickers[id] = entry
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()
		defer g.forget(id, entry)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				fn(tickCtx)
			}
		}
	}()

	log.Printf("Ticker %s started with interval: %v", id, interval)
	return true
}

// forget drops id when its goroutine exits on its own (parent context done)
func (g *TickerGroup) forget(id string, entry *tickerEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tickers[id] == entry {
		delete(g.tickers, id)
	}
	entry.cancel()
}

// Stop cancels the ticker for id. It does not wait for a running tick to return.
func (g *TickerGroup) Stop(id string) bool {
	g.mu.Lock()
	entry, ok := g.tickers[id]
	delete(g.tickers, id)
	g.mu.Unlock()

	if ok {
		entry.cancel()
		log.Printf("Ticker %s stopped", id)
	}
	return ok
}

// Running reports whether a ticker for id is active
func (g *TickerGroup) Running(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.tickers[id]
	return ok
}

// StopAll cancels every ticker and waits for them to exit
func (g *TickerGroup) StopAll() {
	g.mu.Lock()
	for id, entry := range g.tickers {
		entry.cancel()
		delete(g.tickers, id)
	}
	g.mu.Unlock()

	g.wg.Wait()
}
