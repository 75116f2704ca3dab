package client

import (
	"fmt"

	"github.com/ValentinKolb/smap/rpc/common"
	"github.com/ValentinKolb/smap/rpc/serializer"
	"github.com/ValentinKolb/smap/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")

	chunksSent     = metrics.NewCounter("smap_client_chunks_sent_total")
	chunksReceived = metrics.NewCounter("smap_client_chunks_received_total")
	remoteErrors   = metrics.NewCounter("smap_client_remote_errors_total")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends a single request and decodes the response
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	return a.invokeWith(func(b []byte) ([]byte, error) {
		return a.transport.Send(a.shardId, b)
	}, req)
}

// invokeWith sends a request using the given send function (e.g. the one of a stream)
// It checks if the response is an error response and if the type of the response is the expected type
func (a *rpcClientAdapter) invokeWith(send transport.SendFunc, req *common.Message) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s request: %w", req.MsgType, err)
	}

	respBytes, err := send(reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("%w: invalid %s response: %w", transport.ErrProtocol, req.MsgType, err)
	}

	switch {
	case resp.Status == common.StatusOverflow:
		return nil, fmt.Errorf("%w: %s", transport.ErrPayloadTooLarge, resp.Err)
	case resp.Status == common.StatusError || resp.MsgType == common.MsgTError:
		remoteErrors.Inc()
		return nil, &common.RemoteError{Op: req.MsgType, Msg: resp.Err}
	case resp.MsgType != req.MsgType:
		return nil, fmt.Errorf("%w: unexpected message type %s, expected %s", transport.ErrProtocol, resp.MsgType, req.MsgType)
	}

	// Some serializers (gob) do not transmit empty slices. A found value is never nil.
	if resp.Ok && resp.Value == nil {
		switch req.MsgType {
		case common.MsgTGet, common.MsgTPut, common.MsgTPutIfAbsent, common.MsgTRemove:
			resp.Value = []byte{}
		}
	}

	return resp, nil
}
