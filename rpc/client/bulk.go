package client

import (
	"fmt"
	"math"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/rpc/common"
	"github.com/ValentinKolb/smap/rpc/transport"
)

// entryOverhead approximates the framing bytes of one entry inside a chunk
const entryOverhead = 8

// --------------------------------------------------------------------------
// Send path
// --------------------------------------------------------------------------

// splitChunks packs entries into chunks of at most budget payload bytes.
// An entry larger than the budget gets a chunk of its own.
func splitChunks(entries []db.Entry, budget int) [][]db.Entry {
	var chunks [][]db.Entry
	start, size := 0, 0
	for j, e := range entries {
		n := e.SizeBytes() + entryOverhead
		if j > start && size+n > budget {
			chunks = append(chunks, entries[start:j])
			start, size = j, 0
		}
		size += n
	}
	if start < len(entries) {
		chunks = append(chunks, entries[start:])
	}
	return chunks
}

// fitChunks halves every chunk whose serialized message exceeds the frame limit. The budget
// of splitChunks ignores the encoding overhead, which is large for many small entries (e.g. JSON).
// A single entry that does not fit is kept and fails when it is sent.
func (a *rpcClientAdapter) fitChunks(chunks [][]db.Entry) ([][]db.Entry, error) {
	fitted := make([][]db.Entry, 0, len(chunks))
	for len(chunks) > 0 {
		chunk := chunks[0]
		chunks = chunks[1:]

		data, err := a.serializer.Serialize(*common.NewPutAllChunk(math.MaxUint32, chunk, true))
		if err != nil {
			return nil, fmt.Errorf("failed to serialize putAll chunk: %w", err)
		}
		if len(data) <= a.config.MaxFrameBytes || len(chunk) == 1 {
			fitted = append(fitted, chunk)
			continue
		}

		half := len(chunk) / 2
		chunks = append([][]db.Entry{chunk[:half], chunk[half:]}, chunks...)
	}
	return fitted, nil
}

// sendChunked sends all entries as one PutAll transfer. Every chunk is acknowledged,
// the server applies the entries only after the last chunk arrived.
func (a *rpcClientAdapter) sendChunked(entries []db.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	chunks, err := a.fitChunks(splitChunks(entries, a.config.ChunkBytes))
	if err != nil {
		return err
	}

	return a.transport.Stream(a.shardId, func(send transport.SendFunc) error {
		for seq, chunk := range chunks {
			more := seq < len(chunks)-1
			resp, err := a.invokeWith(send, common.NewPutAllChunk(uint32(seq), chunk, more))
			if err != nil {
				return fmt.Errorf("chunk %d/%d of putAll failed: %w", seq+1, len(chunks), err)
			}
			if resp.Seq != uint32(seq) {
				return fmt.Errorf("%w: %w: ack for chunk %d, expected %d",
					transport.ErrTransfer, transport.ErrProtocol, resp.Seq, seq)
			}
			chunksSent.Inc()
		}
		Logger.Debugf("Sent %d entries in %d chunks to shard %d", len(entries), len(chunks), a.shardId)
		return nil
	})
}

// --------------------------------------------------------------------------
// Receive path
// --------------------------------------------------------------------------

// receiveSnapshot pulls a full snapshot from the server. The first request (t) makes the
// server take the snapshot, further chunks are requested with NextChunk until the server
// reports no more chunks. Nothing is returned unless all announced entries arrived.
func (a *rpcClientAdapter) receiveSnapshot(t common.MessageType) ([]db.Entry, error) {
	budget := uint64(a.config.ChunkBytes)
	var result []db.Entry

	err := a.transport.Stream(a.shardId, func(send transport.SendFunc) error {
		var total uint64
		req := common.NewSnapshotRequest(t, budget)

		for seq := uint32(0); ; seq++ {
			if seq > 0 {
				req = common.NewNextChunkRequest(seq, budget)
			}

			resp, err := a.invokeWith(send, req)
			if err != nil {
				return fmt.Errorf("chunk %d of %s failed: %w", seq, t, err)
			}
			if resp.Seq != seq {
				return fmt.Errorf("%w: %w: received chunk %d, expected %d",
					transport.ErrTransfer, transport.ErrProtocol, resp.Seq, seq)
			}
			chunksReceived.Inc()

			if seq == 0 {
				total = resp.Count
				result = make([]db.Entry, 0, total)
			} else if resp.Count != total {
				return fmt.Errorf("%w: snapshot size changed from %d to %d", transport.ErrTransfer, total, resp.Count)
			}

			result = append(result, resp.Entries...)
			if uint64(len(result)) > total {
				return fmt.Errorf("%w: received more than the announced %d entries", transport.ErrTransfer, total)
			}

			if !resp.More {
				break
			}
		}

		if uint64(len(result)) != total {
			return fmt.Errorf("%w: received %d of %d entries", transport.ErrTransfer, len(result), total)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	normalizeEntries(t, result)
	return result, nil
}

// normalizeEntries restores empty keys and values that a serializer transmitted as nil
func normalizeEntries(t common.MessageType, entries []db.Entry) {
	for j := range entries {
		if t != common.MsgTValues && entries[j].Key == nil {
			entries[j].Key = []byte{}
		}
		if t != common.MsgTKeySet && entries[j].Value == nil {
			entries[j].Value = []byte{}
		}
	}
}
