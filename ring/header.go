// Package ring implements the lock-free circular byte buffer: a fixed
// header at offset 0 of a memory-mapped region, followed by N fixed-size
// nodes. One writer and one reader advance the cursors with atomic
// release/acquire stores and loads; free_nodes is advisory bookkeeping,
// never authoritative.
package ring

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

const (
	// Magic identifies a region as a shmipc ring.
	Magic uint32 = 0x73686d71 // "shmq"
	// Version is the on-disk header layout version.
	Version uint32 = 1

	cacheLine = 64
)

// Header is the fixed-layout metadata overlaid on the first cacheLine
// bytes of the mapped region. Field order and types must not change
// without bumping Version. All access to the mutable fields goes through
// sync/atomic.
type Header struct {
	Magic        uint32
	Version      uint32
	NodeCount    uint32
	NodeSize     uint32
	ReadIndex    uint32
	WriteIndex   uint32
	FreeNodes    int32
	OwnerPID     uint32
	ShuttingDown uint32
	_pad         [cacheLine - 9*4]byte
}

const HeaderSize = cacheLine

func init() {
	if unsafe.Sizeof(Header{}) != HeaderSize {
		panic(fmt.Sprintf("ring: Header size is %d, expected %d", unsafe.Sizeof(Header{}), HeaderSize))
	}
}

func overlay(data []byte) *Header {
	return (*Header)(unsafe.Pointer(&data[0]))
}

func (h *Header) loadRead() uint32     { return atomic.LoadUint32(&h.ReadIndex) }
func (h *Header) loadWrite() uint32    { return atomic.LoadUint32(&h.WriteIndex) }
func (h *Header) storeRead(v uint32)   { atomic.StoreUint32(&h.ReadIndex, v) }
func (h *Header) storeWrite(v uint32)  { atomic.StoreUint32(&h.WriteIndex, v) }
func (h *Header) addFree(delta int32)  { atomic.AddInt32(&h.FreeNodes, delta) }
func (h *Header) loadFree() int32      { return atomic.LoadInt32(&h.FreeNodes) }
func (h *Header) isShuttingDown() bool { return atomic.LoadUint32(&h.ShuttingDown) == 1 }
func (h *Header) setShuttingDown()     { atomic.StoreUint32(&h.ShuttingDown, 1) }
