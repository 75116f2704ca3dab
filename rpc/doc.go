// Package rpc is the network layer of smap. It lets any number of stateless
// clients work on maps that live on a server.
//
// The package is organized into several subpackages:
//
//   - common: the Message protocol, the client and server configuration and
//     the logger setup.
//
//   - transport: framed request/response exchange over TCP or Unix sockets,
//     including lazy connects, growable buffers and the frame size limit.
//
//   - serializer: converts Messages to bytes (Binary, JSON, GOB).
//
//   - client: the store.IStore implementation that forwards every call to a server.
//
//   - server: serves local and replicated maps and runs the bulk transfer
//     sessions of every connection.
package rpc
