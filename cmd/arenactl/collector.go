package main

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nmxmxh/quadarena/kernel/arena"
)

// collector republishes a single Arena's Stats as Prometheus gauges on
// every scrape. It holds no state of its own beyond the Arena reference,
// since Stats is cheap enough (one pass over Inspect) to recompute live.
// Arena is not safe for concurrent use (spec section 5), and the scrape
// goroutine runs alongside runWorkload's goroutine, so every access goes
// through mu, the same mutex runWorkload locks around its own Alloc/Free
// calls.
type collector struct {
	a  *arena.Arena
	mu *sync.Mutex

	totalBytes    *prometheus.Desc
	usedBytes     *prometheus.Desc
	freeBytes     *prometheus.Desc
	usedBlocks    *prometheus.Desc
	freeBlocks    *prometheus.Desc
	listHeight    *prometheus.Desc
	fragmentation *prometheus.Desc
}

func newCollector(a *arena.Arena, mu *sync.Mutex) *collector {
	ns := "arenactl"
	return &collector{
		a:             a,
		mu:            mu,
		totalBytes:    prometheus.NewDesc(ns+"_total_bytes", "Total size of the arena's backing region.", nil, nil),
		usedBytes:     prometheus.NewDesc(ns+"_used_bytes", "Bytes currently held by allocated blocks.", nil, nil),
		freeBytes:     prometheus.NewDesc(ns+"_free_bytes", "Bytes currently held by free blocks.", nil, nil),
		usedBlocks:    prometheus.NewDesc(ns+"_used_blocks", "Number of currently allocated blocks.", nil, nil),
		freeBlocks:    prometheus.NewDesc(ns+"_free_blocks", "Number of currently free blocks.", nil, nil),
		listHeight:    prometheus.NewDesc(ns+"_list_height", "Current height of the freelist skip list.", nil, nil),
		fragmentation: prometheus.NewDesc(ns+"_fragmentation_ratio", "Fraction of free bytes outside the largest free block.", nil, nil),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalBytes
	ch <- c.usedBytes
	ch <- c.freeBytes
	ch <- c.usedBlocks
	ch <- c.freeBlocks
	ch <- c.listHeight
	ch <- c.fragmentation
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	s, err := c.a.Stats()
	c.mu.Unlock()
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.totalBytes, prometheus.GaugeValue, float64(s.TotalBytes))
	ch <- prometheus.MustNewConstMetric(c.usedBytes, prometheus.GaugeValue, float64(s.UsedBytes))
	ch <- prometheus.MustNewConstMetric(c.freeBytes, prometheus.GaugeValue, float64(s.FreeBytes))
	ch <- prometheus.MustNewConstMetric(c.usedBlocks, prometheus.GaugeValue, float64(s.UsedBlocks))
	ch <- prometheus.MustNewConstMetric(c.freeBlocks, prometheus.GaugeValue, float64(s.FreeBlocks))
	ch <- prometheus.MustNewConstMetric(c.listHeight, prometheus.GaugeValue, float64(s.ListHeight))
	ch <- prometheus.MustNewConstMetric(c.fragmentation, prometheus.GaugeValue, s.Fragmentation())
}
