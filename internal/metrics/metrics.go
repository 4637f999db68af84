// Package metrics exposes the engine's statistics surface (spec.md §6) as
// Prometheus metrics, polling internal/stats on every scrape rather than
// instrumenting each counter at its call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pinba-platform/pinba2/internal/stats"
)

const namespace = "pinba_engine"

// Collector implements prometheus.Collector by snapshotting a stats.Source
// on every scrape.
type Collector struct {
	source stats.Source

	datagramsReceived *prometheus.Desc
	collectorDrops    *prometheus.Desc
	collectorErrors   *prometheus.Desc

	datagramsDecoded *prometheus.Desc
	decodeErrors     *prometheus.Desc
	packetsDropped   *prometheus.Desc
	slicesReaped     *prometheus.Desc

	repackerBatchesSealed  *prometheus.Desc
	repackerBatchesDropped *prometheus.Desc

	batchesFanned  *prometheus.Desc
	batchesDropped *prometheus.Desc

	dictionaryEntries     *prometheus.Desc
	dictionaryHashBytes   *prometheus.Desc
	dictionaryStringBytes *prometheus.Desc
}

// NewCollector creates a Collector reading from source on every scrape.
func NewCollector(source stats.Source) *Collector {
	return &Collector{
		source: source,

		datagramsReceived: prometheus.NewDesc(namespace+"_datagrams_received_total", "UDP datagrams received by the collector.", nil, nil),
		collectorDrops:    prometheus.NewDesc(namespace+"_collector_batch_drops_total", "Raw batches dropped by the collector.", nil, nil),
		collectorErrors:   prometheus.NewDesc(namespace+"_collector_read_errors_total", "Non-timeout read errors observed by the collector.", nil, nil),

		datagramsDecoded: prometheus.NewDesc(namespace+"_datagrams_decoded_total", "Datagrams successfully decoded by the repacker.", nil, nil),
		decodeErrors:     prometheus.NewDesc(namespace+"_decode_errors_total", "Datagrams rejected at the wire-decode stage.", nil, nil),
		packetsDropped:   prometheus.NewDesc(namespace+"_packets_dropped_total", "Decoded records rejected at packet validation.", nil, nil),
		slicesReaped:     prometheus.NewDesc(namespace+"_word_slices_reaped_total", "Sealed word-slices reclaimed by the dictionary reaper.", nil, nil),

		repackerBatchesSealed:  prometheus.NewDesc(namespace+"_repacker_batches_sealed_total", "Packet batches sealed by the repacker.", nil, nil),
		repackerBatchesDropped: prometheus.NewDesc(namespace+"_repacker_batches_dropped_total", "Packet batches dropped because the coordinator queue was full.", nil, nil),

		batchesFanned:  prometheus.NewDesc(namespace+"_batches_fanned_total", "Packet batches fanned out to report hosts.", nil, nil),
		batchesDropped: prometheus.NewDesc(namespace+"_batches_dropped_total", "Fan-out deliveries dropped because a report host's queue was full.", nil, nil),

		dictionaryEntries:     prometheus.NewDesc(namespace+"_dictionary_entries", "Live entries in the shared string dictionary.", nil, nil),
		dictionaryHashBytes:   prometheus.NewDesc(namespace+"_dictionary_hash_bytes", "Bytes held by the dictionary's hash-to-id index.", nil, nil),
		dictionaryStringBytes: prometheus.NewDesc(namespace+"_dictionary_string_bytes", "Bytes held by the dictionary's interned strings.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.datagramsReceived
	ch <- c.collectorDrops
	ch <- c.collectorErrors
	ch <- c.datagramsDecoded
	ch <- c.decodeErrors
	ch <- c.packetsDropped
	ch <- c.slicesReaped
	ch <- c.repackerBatchesSealed
	ch <- c.repackerBatchesDropped
	ch <- c.batchesFanned
	ch <- c.batchesDropped
	ch <- c.dictionaryEntries
	ch <- c.dictionaryHashBytes
	ch <- c.dictionaryStringBytes
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := stats.Snapshot(c.source)

	ch <- prometheus.MustNewConstMetric(c.datagramsReceived, prometheus.CounterValue, float64(snap.DatagramsReceived))
	ch <- prometheus.MustNewConstMetric(c.collectorDrops, prometheus.CounterValue, float64(snap.CollectorDrops))
	ch <- prometheus.MustNewConstMetric(c.collectorErrors, prometheus.CounterValue, float64(snap.CollectorErrors))

	ch <- prometheus.MustNewConstMetric(c.datagramsDecoded, prometheus.CounterValue, float64(snap.DatagramsDecoded))
	ch <- prometheus.MustNewConstMetric(c.decodeErrors, prometheus.CounterValue, float64(snap.DecodeErrors))
	ch <- prometheus.MustNewConstMetric(c.packetsDropped, prometheus.CounterValue, float64(snap.PacketsDropped))
	ch <- prometheus.MustNewConstMetric(c.slicesReaped, prometheus.CounterValue, float64(snap.SlicesReaped))

	ch <- prometheus.MustNewConstMetric(c.repackerBatchesSealed, prometheus.CounterValue, float64(snap.RepackerBatchesSealed))
	ch <- prometheus.MustNewConstMetric(c.repackerBatchesDropped, prometheus.CounterValue, float64(snap.RepackerBatchesDropped))

	ch <- prometheus.MustNewConstMetric(c.batchesFanned, prometheus.CounterValue, float64(snap.BatchesFanned))
	ch <- prometheus.MustNewConstMetric(c.batchesDropped, prometheus.CounterValue, float64(snap.BatchesDropped))

	ch <- prometheus.MustNewConstMetric(c.dictionaryEntries, prometheus.GaugeValue, float64(snap.DictionaryEntries))
	ch <- prometheus.MustNewConstMetric(c.dictionaryHashBytes, prometheus.GaugeValue, float64(snap.DictionaryHashBytes))
	ch <- prometheus.MustNewConstMetric(c.dictionaryStringBytes, prometheus.GaugeValue, float64(snap.DictionaryStringBytes))
}
