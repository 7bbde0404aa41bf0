package jobs

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/hiragana-park/kotoba/internal/cache"
)

// CacheSweepJob removes expired audio from the request caches.
// Lookups already skip expired entries; the sweep returns their memory
// for keys nobody asks for again.
type CacheSweepJob struct {
	caches   map[string]*cache.Cache
	logger   *log.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCacheSweepJob creates a new sweep job over the named caches.
func NewCacheSweepJob(caches map[string]*cache.Cache, logger *log.Logger, interval time.Duration) *CacheSweepJob {
	if interval == 0 {
		interval = 10 * time.Minute
	}
	return &CacheSweepJob{
		caches:   caches,
		logger:   logger.WithPrefix("cache-sweep"),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background job.
func (j *CacheSweepJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Info("started", "interval", j.interval)
}

// Stop gracefully stops the background job.
func (j *CacheSweepJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Info("stopped")
}

func (j *CacheSweepJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.SweepOnce()
		case <-j.stopCh:
			return
		}
	}
}

// SweepOnce purges expired entries from every cache and returns the total.
func (j *CacheSweepJob) SweepOnce() int {
	total := 0
	for name, c := range j.caches {
		n := c.PurgeExpired()
		total += n
		if n == 0 {
			continue
		}
		st := c.Stats()
		j.logger.Debug("swept expired audio",
			"cache", name,
			"removed", n,
			"entries", st.Entries,
			"size", humanize.Bytes(uint64(st.Bytes)),
		)
	}
	return total
}
