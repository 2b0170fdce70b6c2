package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pomelo_lookups_total",
		Help: "Total number of cache lookups.",
	}, []string{"status" /* hit | miss */})
	cacheLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pomelo_loads_total",
		Help: "Total number of retriever invocations.",
	}, []string{"status" /* ok | error */})
	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pomelo_evicted_entries_total",
		Help: "Total number of entries evicted from the LRU store.",
	})
	cacheDiscardedLoads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pomelo_discarded_loads_total",
		Help: "Total number of loaded values discarded because another goroutine inserted first.",
	})
)
