package ring

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var nameSeq atomic.Uint64

func testName(t *testing.T) string {
	return fmt.Sprintf("shmipc-ring-test-%s-%d-%d", t.Name(), os.Getpid(), nameSeq.Add(1))
}

func TestBufferWriteReadRoundTrip(t *testing.T) {
	name := testName(t)
	b, err := OpenOrCreate(name, 4, 64)
	require.NoError(t, err)
	defer b.Close()

	msg := []byte("hello ring")
	n, err := b.Write(msg, time.Second)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)

	dst := make([]byte, b.PayloadSize())
	n, err = b.Read(dst, time.Second)
	require.NoError(t, err)
	require.Equal(t, msg, dst[:n])
}

func TestBufferFreeNodeCountTracksOccupancy(t *testing.T) {
	name := testName(t)
	b, err := OpenOrCreate(name, 4, 64)
	require.NoError(t, err)
	defer b.Close()

	require.EqualValues(t, 3, b.FreeNodeCount())
	require.False(t, b.HasNodeToRead())

	_, err = b.Write([]byte("a"), time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 2, b.FreeNodeCount())
	require.True(t, b.HasNodeToRead())

	dst := make([]byte, b.PayloadSize())
	_, err = b.Read(dst, time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 3, b.FreeNodeCount())
	require.False(t, b.HasNodeToRead())
}

func TestBufferFillsThenTimesOutOnWrite(t *testing.T) {
	name := testName(t)
	b, err := OpenOrCreate(name, 2, 64)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Write([]byte("only slot"), time.Second)
	require.NoError(t, err)

	_, err = b.Write([]byte("no room"), 10*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestBufferReadTimesOutWhenEmpty(t *testing.T) {
	name := testName(t)
	b, err := OpenOrCreate(name, 4, 64)
	require.NoError(t, err)
	defer b.Close()

	dst := make([]byte, b.PayloadSize())
	_, err = b.Read(dst, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestBufferCloseIsStickyForReadAndWrite(t *testing.T) {
	name := testName(t)
	b, err := OpenOrCreate(name, 4, 64)
	require.NoError(t, err)

	require.NoError(t, b.Close())

	_, err = b.Write([]byte("x"), time.Second)
	require.ErrorIs(t, err, ErrClosed)

	dst := make([]byte, b.PayloadSize())
	_, err = b.Read(dst, time.Second)
	require.ErrorIs(t, err, ErrClosed)
}

func TestBufferJoinerAdoptsStoredDimensions(t *testing.T) {
	name := testName(t)
	owner, err := OpenOrCreate(name, 8, 128)
	require.NoError(t, err)
	defer owner.Close()

	joiner, err := OpenOrCreate(name, 2, 32)
	require.NoError(t, err)
	require.EqualValues(t, 8, joiner.NodeCount())
	require.EqualValues(t, 128, joiner.NodeSize())
}

func TestBufferRejectsIncompatibleHeader(t *testing.T) {
	name := testName(t)
	owner, err := OpenOrCreate(name, 8, 128)
	require.NoError(t, err)
	defer owner.Close()

	owner.header.Version = Version + 1

	_, err = OpenOrCreate(name, 8, 128)
	require.ErrorIs(t, err, ErrIncompatible)
}

func TestBufferRejectsInvalidDimensions(t *testing.T) {
	_, err := OpenOrCreate(testName(t), 1, 64)
	require.Error(t, err)

	_, err = OpenOrCreate(testName(t), 4, lengthPrefixSize)
	require.Error(t, err)
}

func TestBufferConcurrentWriterAndReader(t *testing.T) {
	name := testName(t)
	writerSide, err := OpenOrCreate(name, 16, 128)
	require.NoError(t, err)
	defer writerSide.Close()

	readerSide, err := OpenOrCreate(name, 16, 128)
	require.NoError(t, err)
	require.False(t, readerSide.Owner())
	defer readerSide.Close()

	const count = 200
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			msg := []byte(fmt.Sprintf("msg-%d", i))
			for {
				_, err := writerSide.Write(msg, time.Second)
				if err == nil {
					break
				}
			}
		}
	}()

	received := make([]string, 0, count)
	go func() {
		defer wg.Done()
		dst := make([]byte, readerSide.PayloadSize())
		for len(received) < count {
			n, err := readerSide.Read(dst, time.Second)
			if err != nil {
				continue
			}
			received = append(received, string(dst[:n]))
		}
	}()

	wg.Wait()
	require.Len(t, received, count)
	for i, s := range received {
		require.Equal(t, fmt.Sprintf("msg-%d", i), s)
	}
}
