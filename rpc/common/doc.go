// Package common provides the data structures shared by clients and servers of smap:
// the wire message, the client and server configuration and the logger setup.
//
// Key Components:
//
//   - Message: a single request or response. Which fields are set depends on the
//     MessageType. Responses echo the type of their request and carry a Status
//     (OK, NotFound, Overflow, Error). Bulk transfers use Entries, Seq and More.
//
//   - ClientConfig: endpoint, timeouts, buffer limits, the chunk budget for bulk
//     transfers and the response mode (whether Put and Remove return the previous
//     value).
//
//   - ServerConfig: the served maps, the replication settings that are passed to
//     Dragonboat unchanged, and the listener settings.
//
//   - Logger: a dragonboat logger.ILogger factory with the format
//     "LEVEL | name | message", installed by InitLoggers.
package common
