package index

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const gcDiscardRatio = 0.5

// background runs periodic refresh and value log GC until stopped.
type background struct {
	x       *Index
	refresh time.Duration
	gc      time.Duration
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func startBackground(x *Index, refresh, gc time.Duration) *background {
	b := &background{
		x:       x,
		refresh: refresh,
		gc:      gc,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *background) stop() {
	close(b.stopCh)
	<-b.doneCh
}

func (b *background) run() {
	defer close(b.doneCh)

	var refreshC, gcC <-chan time.Time
	if b.refresh > 0 {
		t := time.NewTicker(b.refresh)
		defer t.Stop()
		refreshC = t.C
	}
	if b.gc > 0 {
		t := time.NewTicker(b.gc)
		defer t.Stop()
		gcC = t.C
	}

	for {
		select {
		case <-b.stopCh:
			return
		case <-refreshC:
			b.refreshOnce()
		case <-gcC:
			b.runGC()
		}
	}
}

func (b *background) refreshOnce() {
	// A tick that cannot finish within the next interval is abandoned;
	// its writes stay pending for the next tick.
	ctx, cancel := context.WithTimeout(context.Background(), b.refresh)
	defer cancel()

	if err := b.x.Refresh(ctx); err != nil && !errors.Is(err, ErrIndexClosed) {
		b.x.logger.Warn("background refresh failed", slog.String("error", err.Error()))
	}
}

func (b *background) runGC() {
	err := b.x.db.RunValueLogGC(gcDiscardRatio)
	if err == nil {
		b.x.logger.Debug("badger value log GC completed")
	} else if !errors.Is(err, badger.ErrNoRewrite) {
		b.x.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
	}
}
