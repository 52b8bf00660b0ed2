package ring

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/alephtx/shmipc/region"
)

const (
	// DefaultNodeCount is N, the total ring slots including the one-node gap.
	DefaultNodeCount uint32 = 1024
	// DefaultNodeSize is the number of bytes per slot, including the
	// 4-byte length prefix reserved at the front of every node.
	DefaultNodeSize uint32 = 4096

	lengthPrefixSize = 4
	pollInterval     = time.Millisecond
)

// Buffer is a lock-free ring of fixed-size nodes overlaid on a region's
// payload area. Exactly one writer and one reader may advance it at a
// time; concurrent callers within one process must serialize through
// spin.Acquire before calling Write/Read (see the stream package).
type Buffer struct {
	reg       *region.Region
	header    *Header
	nodes     []byte
	nodeCount uint32
	nodeSize  uint32
	owner     bool
}

// OpenOrCreate opens the named ring if it exists (adopting its stored
// node count and node size), otherwise creates it with the given
// dimensions.
func OpenOrCreate(name string, nodeCount, nodeSize uint32) (*Buffer, error) {
	if nodeCount < 2 {
		return nil, fmt.Errorf("ring: node_count must be >= 2, got %d", nodeCount)
	}
	if nodeSize <= lengthPrefixSize {
		return nil, fmt.Errorf("ring: node_size must exceed %d, got %d", lengthPrefixSize, nodeSize)
	}

	total := int(HeaderSize) + int(nodeCount)*int(nodeSize)
	reg, err := region.OpenOrCreate(name, total)
	if err != nil {
		return nil, err
	}

	h := overlay(reg.Data())
	b := &Buffer{reg: reg, header: h, owner: reg.Owner()}

	if reg.Owner() {
		h.Magic = Magic
		h.Version = Version
		h.NodeCount = nodeCount
		h.NodeSize = nodeSize
		h.ReadIndex = 0
		h.WriteIndex = 0
		h.FreeNodes = int32(nodeCount - 1)
		h.OwnerPID = uint32(os.Getpid())
		h.ShuttingDown = 0
		b.nodeCount = nodeCount
		b.nodeSize = nodeSize
	} else {
		if h.Magic != Magic || h.Version != Version {
			reg.Close()
			return nil, ErrIncompatible
		}
		b.nodeCount = h.NodeCount
		b.nodeSize = h.NodeSize
	}

	b.nodes = reg.Data()[HeaderSize:]
	return b, nil
}

// NodeCount returns N, the total number of ring slots.
func (b *Buffer) NodeCount() uint32 { return b.nodeCount }

// NodeSize returns the configured bytes per slot (including the length prefix).
func (b *Buffer) NodeSize() uint32 { return b.nodeSize }

// PayloadSize is the maximum bytes a single Write call can move per node.
func (b *Buffer) PayloadSize() int { return int(b.nodeSize) - lengthPrefixSize }

func (b *Buffer) nodeOffset(idx uint32) int { return int(idx) * int(b.nodeSize) }

// occupied returns the number of nodes between r and w on a ring of n
// slots. w - r underflows in uint32 once w has wrapped below r, and the
// result of (w-r)%n is only correct on wraparound when n divides 2^32 —
// i.e. when n is a power of two, which node_count is not required to be.
// Branching on w >= r avoids the underflow for any n.
func occupied(r, w, n uint32) uint32 {
	if w >= r {
		return w - r
	}
	return n - r + w
}

// FreeNodeCount returns the number of nodes currently available for
// writing, derived from the cursors (free_nodes is advisory only).
func (b *Buffer) FreeNodeCount() uint32 {
	r := b.header.loadRead()
	w := b.header.loadWrite()
	return b.nodeCount - 1 - occupied(r, w, b.nodeCount)
}

// HasNodeToRead reports whether the reader has at least one node pending.
func (b *Buffer) HasNodeToRead() bool {
	return b.header.loadRead() != b.header.loadWrite()
}

// Write copies up to PayloadSize() bytes from src into one free node,
// blocking (with a 1ms poll) until a node frees up or timeout elapses.
// It never writes more than one node per call; multi-node payloads must
// be written by looping (stream.Stream does this).
func (b *Buffer) Write(src []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		if b.header.isShuttingDown() {
			return 0, ErrClosed
		}
		w := b.header.loadWrite()
		r := b.header.loadRead()
		free := b.nodeCount - 1 - occupied(r, w, b.nodeCount)
		if free == 0 {
			if time.Now().After(deadline) {
				return 0, ErrTimeout
			}
			time.Sleep(pollInterval)
			continue
		}

		toWrite := len(src)
		if toWrite > b.PayloadSize() {
			toWrite = b.PayloadSize()
		}
		off := b.nodeOffset(w)
		binary.LittleEndian.PutUint32(b.nodes[off:], uint32(toWrite))
		copy(b.nodes[off+lengthPrefixSize:], src[:toWrite])

		b.header.storeWrite((w + 1) % b.nodeCount)
		b.header.addFree(-1)
		return toWrite, nil
	}
}

// Read copies the contents of one pending node into dst, blocking (with a
// 1ms poll) until a node is available or timeout elapses. If the node's
// valid length exceeds len(dst), the excess is dropped — callers size
// their scratch buffer to at least PayloadSize() (stream.Stream does this).
//
// The on-node length prefix is trusted as written and is not checked
// against PayloadSize(): a larger value (a corrupt node or a reader/writer
// disagreeing on node_size despite matching Magic/Version) makes the slice
// below run on into the following node's bytes, and panics only once it
// runs past the end of the node area. ErrIncompatible is never returned
// here. Acceptable under the single trusted-writer model this ring assumes,
// but worth knowing.
func (b *Buffer) Read(dst []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		r := b.header.loadRead()
		w := b.header.loadWrite()
		if r == w {
			if b.header.isShuttingDown() {
				return 0, ErrClosed
			}
			if time.Now().After(deadline) {
				return 0, ErrTimeout
			}
			time.Sleep(pollInterval)
			continue
		}

		off := b.nodeOffset(r)
		length := binary.LittleEndian.Uint32(b.nodes[off:])
		n := copy(dst, b.nodes[off+lengthPrefixSize:off+lengthPrefixSize+int(length)])

		b.header.storeRead((r + 1) % b.nodeCount)
		b.header.addFree(1)
		return n, nil
	}
}

// Close marks the ring shutting down. Subsequent Read/Write calls, here and
// in any peer that has the ring open, report ErrClosed; Close may be called
// more than once. The mapping stays in place so those calls remain safe:
// Close does not unmap the region or close its file. If this process owns
// the underlying region, Close also unlinks its name.
func (b *Buffer) Close() error {
	b.header.setShuttingDown()
	if b.owner {
		os.Remove(b.reg.Name())
	}
	return nil
}

// Owner reports whether this process created the ring's backing region.
func (b *Buffer) Owner() bool { return b.owner }
