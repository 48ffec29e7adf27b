package activity

import (
	"log/slog"
	"sync"
)

const watcherBuffer = 64

// Feed fans newly recorded activity out to live watchers. A watcher that
// falls behind loses records rather than blocking the recorder.
type Feed struct {
	mu       sync.RWMutex
	watchers map[*Watcher]struct{}
	logger   *slog.Logger
}

type Watcher struct {
	C    chan Record
	feed *Feed
}

func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{
		watchers: make(map[*Watcher]struct{}),
		logger:   logger,
	}
}

func (f *Feed) Watch() *Watcher {
	w := &Watcher{C: make(chan Record, watcherBuffer), feed: f}

	f.mu.Lock()
	f.watchers[w] = struct{}{}
	n := len(f.watchers)
	f.mu.Unlock()

	f.logger.Debug("activity watcher added", "watchers", n)
	return w
}

// Close stops delivery and closes C. It is safe to call more than once.
func (w *Watcher) Close() {
	f := w.feed
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.watchers[w]; !ok {
		return
	}
	delete(f.watchers, w)
	close(w.C)
}

func (f *Feed) Publish(rec Record) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for w := range f.watchers {
		select {
		case w.C <- rec:
		default:
			f.logger.Warn("activity watcher dropped record", "id", rec.ID)
		}
	}
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.watchers)
}
