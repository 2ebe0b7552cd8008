// Package metrics exposes cernan's own self-observability surface: a
// /metrics endpoint reporting per-channel depth, per-node parse-error
// counts, flush latency, and sketch cardinality, kept separate from the
// telemetry the process is aggregating on behalf of others.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cernan/cernan/internal/util"
)

// DepthReporter is the narrow view of a hopper.Channel the depth poller
// needs, avoiding a direct dependency on package hopper from package
// metrics.
type DepthReporter interface {
	DepthBytes() int64
}

var (
	// ChannelDepthBytes reports each channel's current on-disk size, one
	// gauge per (producer, target) edge.
	ChannelDepthBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cernan_channel_depth_bytes",
		Help: "Current on-disk size, in bytes, of a hopper channel.",
	}, []string{"channel"})

	// ParseErrorsTotal counts malformed input lines/packets a source
	// discarded, labeled by source name.
	ParseErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cernan_parse_errors_total",
		Help: "Total malformed input units discarded by a source.",
	}, []string{"source"})

	// FlushLatencySeconds reports how long a sink's egress send took for
	// one flush, labeled by sink name.
	FlushLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cernan_flush_latency_seconds",
		Help:    "Time spent delivering one flush's emissions to a sink's egress client.",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})

	// SketchCardinality reports the number of distinct bucket keys held by
	// a sink's in-memory Buckets instance at its last flush, labeled by
	// sink name.
	SketchCardinality = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cernan_sketch_cardinality",
		Help: "Number of distinct (name, tags, kind) bucket entries held by a sink at its last flush.",
	}, []string{"sink"})

	// DataDirectoryUsageMB reports the total size, in megabytes, of a
	// directory holding hopper channel segments — the top-level data
	// directory or one channel's own subdirectory under it.
	DataDirectoryUsageMB = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cernan_data_directory_usage_megabytes",
		Help: "Disk space used by a hopper data directory, in megabytes.",
	}, []string{"directory"})

	// ChannelSegmentFiles reports how many on-disk segment files a channel
	// currently holds, one gauge per (producer, target) edge.
	ChannelSegmentFiles = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cernan_channel_segment_files",
		Help: "Number of on-disk segment files currently held by a hopper channel.",
	}, []string{"channel"})
)

func init() {
	prometheus.MustRegister(ChannelDepthBytes, ParseErrorsTotal, FlushLatencySeconds, SketchCardinality, DataDirectoryUsageMB, ChannelSegmentFiles)
}

// ObserveFlush records how long a sink's egress send took for one flush.
func ObserveFlush(sink string, d time.Duration) {
	FlushLatencySeconds.WithLabelValues(sink).Observe(d.Seconds())
}

// dirReporter is the optional capability a DepthReporter may additionally
// provide: its on-disk directory, so WatchChannelDepths can also report a
// segment file count alongside the byte-depth gauge.
type dirReporter interface {
	Dir() string
}

// WatchChannelDepths polls every channel in channels (keyed by edge name)
// once per interval and updates ChannelDepthBytes, until ctx is cancelled.
// A reporter that also exposes Dir() additionally gets its segment file
// count reported under ChannelSegmentFiles.
func WatchChannelDepths(ctx context.Context, channels map[string]DepthReporter, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, ch := range channels {
				ChannelDepthBytes.WithLabelValues(name).Set(float64(ch.DepthBytes()))
				if dr, ok := ch.(dirReporter); ok {
					ChannelSegmentFiles.WithLabelValues(name).Set(float64(util.GetFilecount(dr.Dir())))
				}
			}
		}
	}
}

// WatchDataDirectory polls dir's on-disk size once per interval and
// reports it under DataDirectoryUsageMB, until ctx is cancelled. dir is
// used verbatim as the metric's label, so callers watching several
// directories (the root data directory, or one per channel) should pass a
// stable, distinguishing path for each.
func WatchDataDirectory(ctx context.Context, dir string, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			DataDirectoryUsageMB.WithLabelValues(dir).Set(util.DiskUsage(dir))
		}
	}
}

// Serve starts the /metrics HTTP endpoint on addr and blocks until ctx is
// cancelled, then shuts the server down gracefully.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
