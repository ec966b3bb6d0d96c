package metrics

import (
	"time"

	"github.com/agentfarm/agentfarm/pkg/storage"
)

// Collector periodically samples the State Store and updates the builder,
// util, annotation, and tab gauges once started. No package in this module
// constructs or starts a Collector.
type Collector struct {
	store  *storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over store.
func NewCollector(store *storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	st, err := c.store.LoadState()
	if err != nil {
		return
	}

	statusCounts := make(map[string]int)
	for _, b := range st.Builders {
		statusCounts[string(b.Status)]++
	}
	for status, count := range statusCounts {
		BuildersTotal.WithLabelValues(status).Set(float64(count))
	}

	UtilsTotal.Set(float64(len(st.Utils)))
	AnnotationsTotal.Set(float64(len(st.Annotations)))
	TabsOpenTotal.Set(float64(len(st.Builders) + len(st.Utils) + len(st.Annotations)))
}
