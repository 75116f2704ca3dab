// Package unix implements the Unix domain socket transport for clients and servers on
// the same host. The server removes a stale socket file before listening.
package unix
