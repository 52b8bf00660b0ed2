package stream

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alephtx/shmipc/ring"
)

var nameSeq atomic.Uint64

func testName(t *testing.T) string {
	return fmt.Sprintf("shmipc-stream-test-%s-%d-%d", t.Name(), os.Getpid(), nameSeq.Add(1))
}

func TestStreamWriteReadRoundTripAcrossNodes(t *testing.T) {
	buf, err := ring.OpenOrCreate(testName(t), 8, 32)
	require.NoError(t, err)
	defer buf.Close()

	s := New(buf, "s", WithSpinTimeout(time.Second))

	payload := make([]byte, 100) // spans multiple 28-byte payload nodes
	for i := range payload {
		payload[i] = byte(i)
	}

	n, err := s.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	got := make([]byte, 0, len(payload))
	dst := make([]byte, 16)
	for len(got) < len(payload) {
		n, err := s.Read(dst)
		require.NoError(t, err)
		got = append(got, dst[:n]...)
	}
	require.Equal(t, payload, got)
}

func TestStreamReadReportsZeroNilOnRingTimeout(t *testing.T) {
	buf, err := ring.OpenOrCreate(testName(t), 4, 64)
	require.NoError(t, err)
	defer buf.Close()

	s := New(buf, "s", WithReadTimeout(10*time.Millisecond), WithSpinTimeout(time.Second))

	n, err := s.Read(make([]byte, 16))
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestStreamCloseClosesUnderlyingRing(t *testing.T) {
	buf, err := ring.OpenOrCreate(testName(t), 4, 64)
	require.NoError(t, err)

	s := New(buf, "s", WithSpinTimeout(time.Second))
	require.NoError(t, s.Close())

	_, err = s.Write([]byte("x"))
	require.ErrorIs(t, err, ring.ErrClosed)
}

// TestStreamSpinExcludesConcurrentWriters has two writer Streams sharing
// one ring and one spin name hammer Write concurrently with distinct
// fixed-size messages; the named spin must serialize their Buffer.Write
// calls so the reader always sees one writer's whole message never
// interleaved with the other's.
func TestStreamSpinExcludesConcurrentWriters(t *testing.T) {
	name := testName(t)
	writerBuf, err := ring.OpenOrCreate(name, 8, 64)
	require.NoError(t, err)
	defer writerBuf.Close()
	readerBuf, err := ring.OpenOrCreate(name, 8, 64)
	require.NoError(t, err)

	const spinName = "shared"
	const perWriter = 50
	msgA := []byte("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	msgB := []byte("BBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")

	writeAll := func(msg []byte) {
		s := New(writerBuf, spinName, WithWriteTimeout(5*time.Second), WithSpinTimeout(5*time.Second))
		for i := 0; i < perWriter; i++ {
			_, err := s.Write(msg)
			require.NoError(t, err)
		}
	}

	go writeAll(msgA)
	go writeAll(msgB)

	reader := New(readerBuf, "reader-side", WithReadTimeout(5*time.Second), WithSpinTimeout(5*time.Second))
	dst := make([]byte, len(msgA))
	total := 0
	for total < perWriter*2 {
		n, err := reader.Read(dst)
		require.NoError(t, err)
		if n == 0 {
			continue
		}
		require.Equal(t, len(msgA), n)
		if dst[0] != 'A' && dst[0] != 'B' {
			t.Fatalf("corrupted message: %q", dst[:n])
		}
		total++
	}
}
