package pager

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "packagedb"
	subsystem = "pager"
)

var (
	unitsRead = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "units_read_total",
		Help:      "Units read from bound entries.",
	})

	unitsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "units_written_total",
		Help:      "Units written to bound entries.",
	})

	pagesAllocated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pages_allocated_total",
		Help:      "Pages handed out to entries, including pages appended by file growth.",
	})

	pagesReleased = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pages_released_total",
		Help:      "Pages returned to the free set.",
	})

	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "cache_hits_total",
		Help:      "Page reads served from the page cache.",
	})

	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "cache_misses_total",
		Help:      "Page reads that went to the payload file.",
	})
)

var register sync.Once

// Registry holds the pager collectors once Register has run.
var Registry *prometheus.Registry

// Register registers the pager metrics. This is always called only once.
func Register() *prometheus.Registry {
	register.Do(func() {
		Registry = prometheus.NewRegistry()
		Registry.MustRegister(unitsRead, unitsWritten, pagesAllocated, pagesReleased, cacheHits, cacheMisses)
	})
	return Registry
}
