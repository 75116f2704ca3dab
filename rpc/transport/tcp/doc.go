// Package tcp implements the TCP socket transport. It only provides the connectors for
// the base package (dialing, listening and socket options such as TCP_NODELAY, keep-alive
// and linger), framing and connection handling are inherited from base.
package tcp
