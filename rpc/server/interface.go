package server

import (
	"github.com/ValentinKolb/smap/lib/store"
	"github.com/ValentinKolb/smap/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request of a connection and returns a response.
	// Requests of one connection are never handled concurrently.
	// If an error occurs, it should be set in the response
	Handle(connID uint64, req *common.Message, store store.IStore) (resp *common.Message)
	// DropSession discards all transfer state of a connection
	DropSession(connID uint64)
}
