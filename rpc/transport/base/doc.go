// Package base implements the protocol independent part of the transports, the tcp and
// unix packages only add connectors for dialing and listening.
//
// Frames:
//
//	magic (1) | shardID (8) | correlationID (8) | length (4) | payload (length)
//
// The magic byte is 0xE2 for requests and 0xE3 for responses, all integers are big endian.
//
// Client:
//
//   - One connection per transport, established by the first request. A server that is
//     not listening yet is retried with exponential backoff until ConnectTimeoutSecond
//     is over, so clients may be created before their server.
//   - Requests are synchronous, a mutex keeps one request in flight. Every request gets
//     a new correlation id which the response must echo.
//   - Read and write buffers start at InitialBufferBytes and double up to MaxFrameBytes.
//     Larger requests fail with ErrPayloadTooLarge before anything is sent.
//   - A timeout, a protocol error or an oversized response closes the connection, the
//     next request reconnects. Only requests that never reached the server are retried.
//
// Server:
//
//   - One goroutine per connection, frames are handled strictly in order.
//   - Oversized requests are read to the void and answered with the handler's overflow
//     response, so the connection stays usable.
//   - Responses are written with net.Buffers (header and payload in a single writev).
//
// Counters and histograms are exported with github.com/VictoriaMetrics/metrics.
package base
