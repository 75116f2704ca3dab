package server

import (
	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/rpc/common"
)

// defaultChunkBytes is used if a snapshot request carries no chunk budget
const defaultChunkBytes = 32 * 1024

// session holds the state of the bulk transfers of one connection
type session struct {
	// PutAll: entries received so far and the next expected chunk
	staged  []db.Entry
	nextSeq uint32

	// snapshot transfer: the snapshot, the first entry of the next chunk and the last sent chunk
	snapshot []db.Entry
	snapType common.MessageType
	offset   int
	lastSeq  uint32
}

func (s *session) resetPutAll() {
	s.staged = nil
	s.nextSeq = 0
}

func (s *session) resetSnapshot() {
	s.snapshot = nil
	s.offset = 0
	s.lastSeq = 0
}

// nextChunk cuts the next chunk of at most budget bytes from the snapshot (at least one entry)
func (s *session) nextChunk(budget uint64) (chunk []db.Entry, more bool) {
	if budget == 0 {
		budget = defaultChunkBytes
	}

	end, size := s.offset, uint64(0)
	for end < len(s.snapshot) {
		n := uint64(s.snapshot[end].SizeBytes())
		if end > s.offset && size+n > budget {
			break
		}
		size += n
		end++
	}

	chunk = s.snapshot[s.offset:end]
	s.offset = end
	return chunk, s.offset < len(s.snapshot)
}
