package metrics

import (
	"time"

	"github.com/darbyjahn/smallphot0-backend/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current library statistics
type Stats struct {
	TotalGalleries int
	TotalImages    int
	TotalVideos    int
	PendingVideos  int
	DoneVideos     int
	FailedVideos   int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	GalleriesTotal.Set(float64(stats.TotalGalleries))
	MediaItemsTotal.WithLabelValues("image").Set(float64(stats.TotalImages))
	MediaItemsTotal.WithLabelValues("video").Set(float64(stats.TotalVideos))
	MediaItemsByStatus.WithLabelValues("pending").Set(float64(stats.PendingVideos))
	MediaItemsByStatus.WithLabelValues("done").Set(float64(stats.DoneVideos))
	MediaItemsByStatus.WithLabelValues("failed").Set(float64(stats.FailedVideos))

	logging.Debug("Metrics collected: %d galleries, %d images, %d videos (%d pending)",
		stats.TotalGalleries, stats.TotalImages, stats.TotalVideos, stats.PendingVideos)
}
