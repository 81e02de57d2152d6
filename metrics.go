package polka

import (
	"github.com/prometheus/client_golang/prometheus"
)

var LoadCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "polka",
	Subsystem: "map",
	Name:      "record_loads",
}, []string{"dir", "result"})

var ShortcutPruneCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "polka",
	Subsystem: "map",
	Name:      "shortcut_prunes",
}, []string{"dir", "reason"})

var SearchCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "polka",
	Subsystem: "map",
	Name:      "searches",
}, []string{"dir", "outcome"})

// MapCollector exposes the live shape of one Map: how much of the disk
// inventory is cached and whether the map has gone fully loaded. Register
// it alongside the package counters.
type MapCollector[R any] struct {
	m *Map[R]

	loadedRecords *prometheus.Desc
	diskRecords   *prometheus.Desc
	diskShortcuts *prometheus.Desc
	fullyLoaded   *prometheus.Desc
}

func NewMapCollector[R any](m *Map[R]) *MapCollector[R] {
	return &MapCollector[R]{
		m: m,

		loadedRecords: prometheus.NewDesc(
			"polka_map_loaded_records",
			"Number of records currently cached in memory",
			[]string{"dir"}, nil,
		),
		diskRecords: prometheus.NewDesc(
			"polka_map_disk_records",
			"Number of record directories in the last inventory scan",
			[]string{"dir"}, nil,
		),
		diskShortcuts: prometheus.NewDesc(
			"polka_map_disk_shortcuts",
			"Number of numeric shortcut links still trusted",
			[]string{"dir"}, nil,
		),
		fullyLoaded: prometheus.NewDesc(
			"polka_map_fully_loaded",
			"Whether every known record directory has been materialized",
			[]string{"dir"}, nil,
		),
	}
}

func (mc *MapCollector[R]) Describe(ch chan<- *prometheus.Desc) {
	ch <- mc.loadedRecords
	ch <- mc.diskRecords
	ch <- mc.diskShortcuts
	ch <- mc.fullyLoaded
}

func (mc *MapCollector[R]) Collect(ch chan<- prometheus.Metric) {
	snap := mc.m.cache.Load()
	inv := mc.m.inv.Load()

	ch <- prometheus.MustNewConstMetric(
		mc.loadedRecords,
		prometheus.GaugeValue,
		float64(snap.len()),
		mc.m.dir,
	)
	ch <- prometheus.MustNewConstMetric(
		mc.diskRecords,
		prometheus.GaugeValue,
		float64(inv.ids.Len()),
		mc.m.dir,
	)
	ch <- prometheus.MustNewConstMetric(
		mc.diskShortcuts,
		prometheus.GaugeValue,
		float64(inv.nums.Len()),
		mc.m.dir,
	)
	full := 0.0
	if mc.m.full.Load() {
		full = 1.0
	}
	ch <- prometheus.MustNewConstMetric(
		mc.fullyLoaded,
		prometheus.GaugeValue,
		full,
		mc.m.dir,
	)
}
