package base

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// clientMetrics are the counters of all client transports of one kind (e.g. tcp)
type clientMetrics struct {
	requests     *metrics.Counter
	errors       *metrics.Counter
	retries      *metrics.Counter
	connects     *metrics.Counter
	bufferGrowth *metrics.Counter
	duration     *metrics.Histogram
}

func newClientMetrics(transportName string) *clientMetrics {
	name := func(metric string) string {
		return fmt.Sprintf(`%s{transport=%q}`, metric, transportName)
	}
	return &clientMetrics{
		requests:     metrics.GetOrCreateCounter(name("smap_client_requests_total")),
		errors:       metrics.GetOrCreateCounter(name("smap_client_request_errors_total")),
		retries:      metrics.GetOrCreateCounter(name("smap_client_request_retries_total")),
		connects:     metrics.GetOrCreateCounter(name("smap_client_connects_total")),
		bufferGrowth: metrics.GetOrCreateCounter(name("smap_client_buffer_growths_total")),
		duration:     metrics.GetOrCreateHistogram(name("smap_client_request_duration_seconds")),
	}
}

// serverMetrics are the counters of all server transports of one kind
type serverMetrics struct {
	connections *metrics.Counter
	frames      *metrics.Counter
	overflows   *metrics.Counter
	duration    *metrics.Histogram
}

func newServerMetrics(transportName string) *serverMetrics {
	name := func(metric string) string {
		return fmt.Sprintf(`%s{transport=%q}`, metric, transportName)
	}
	return &serverMetrics{
		connections: metrics.GetOrCreateCounter(name("smap_server_connections_total")),
		frames:      metrics.GetOrCreateCounter(name("smap_server_frames_total")),
		overflows:   metrics.GetOrCreateCounter(name("smap_server_overflows_total")),
		duration:    metrics.GetOrCreateHistogram(name("smap_server_frame_duration_seconds")),
	}
}
