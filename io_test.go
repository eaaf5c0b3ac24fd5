package fiberrt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestNetFD_ReadSuspendsUntilWritable(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[1])

	rnfd, err := sched.NewNetFD(fds[0], false)
	require.NoError(t, err)

	var got string
	var readErr error
	_, err = sched.Spawn(func(f *Fiber) {
		buf := make([]byte, 16)
		n, rerr := rnfd.Read(f, buf)
		readErr = rerr
		got = string(buf[:n])
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		unix.Write(fds[1], []byte("hello"))
	}()

	require.NoError(t, sched.Run())
	require.NoError(t, readErr)
	assert.Equal(t, "hello", got)
}

func TestNetFD_PollTimeout(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	rnfd, err := sched.NewNetFD(fds[0], false)
	require.NoError(t, err)

	var pollErr error
	_, err = sched.Spawn(func(f *Fiber) {
		_, pollErr = rnfd.poll(f, PollIn, 10_000)
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	assert.True(t, IsTimedOut(pollErr))
}

func TestNetFD_CloseBusyWithOutstandingInterest(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[1])

	rnfd, err := sched.NewNetFD(fds[0], false)
	require.NoError(t, err)

	_, err = sched.Spawn(func(f *Fiber) {
		_, _ = rnfd.poll(f, PollIn, NoTimeout)
	}, SpawnOptions{})
	require.NoError(t, err)

	_, err = sched.Spawn(func(f *Fiber) {
		assert.True(t, IsBusy(rnfd.Close()))
		unix.Write(fds[1], []byte("x"))
	}, SpawnOptions{})
	require.NoError(t, err)

	_, err = sched.Spawn(func(f *Fiber) {
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	require.NoError(t, sched.Run())
}

func TestNetFD_WritevReadvAcrossVectorBoundary(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))

	rnfd, err := sched.NewNetFD(fds[0], false)
	require.NoError(t, err)
	wnfd, err := sched.NewNetFD(fds[1], false)
	require.NoError(t, err)

	var readErr, writeErr error
	var got string
	_, err = sched.Spawn(func(f *Fiber) {
		iov := [][]byte{[]byte("hello, "), []byte("world")}
		_, writeErr = wnfd.Writev(f, iov)
	}, SpawnOptions{})
	require.NoError(t, err)

	_, err = sched.Spawn(func(f *Fiber) {
		bufs := [][]byte{make([]byte, 4), make([]byte, 8)}
		n, rerr := rnfd.Readv(f, bufs)
		readErr = rerr
		got = string(append(bufs[0], bufs[1]...)[:n])
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	require.NoError(t, writeErr)
	require.NoError(t, readErr)
	assert.Equal(t, "hello, world", got)
}

func TestNetFD_RecvmsgSendmsgRoundTrip(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)

	anfd, err := sched.NewNetFD(fds[0], true)
	require.NoError(t, err)
	bnfd, err := sched.NewNetFD(fds[1], true)
	require.NoError(t, err)

	var sendErr, recvErr error
	var got string
	_, err = sched.Spawn(func(f *Fiber) {
		sendErr = anfd.Sendmsg(f, []byte("ping"), nil, nil, 0)
	}, SpawnOptions{})
	require.NoError(t, err)

	_, err = sched.Spawn(func(f *Fiber) {
		buf := make([]byte, 16)
		n, _, _, _, rerr := bnfd.Recvmsg(f, buf, nil, 0)
		recvErr = rerr
		got = string(buf[:n])
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	require.NoError(t, sendErr)
	require.NoError(t, recvErr)
	assert.Equal(t, "ping", got)
}

func TestNetFD_SendmmsgSendsEachMessage(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)

	anfd, err := sched.NewNetFD(fds[0], true)
	require.NoError(t, err)
	bnfd, err := sched.NewNetFD(fds[1], true)
	require.NoError(t, err)

	var sendErr error
	var sent int
	var received []string
	_, err = sched.Spawn(func(f *Fiber) {
		msgs := []MMsgHdr{
			{Buf: []byte("one")},
			{Buf: []byte("two")},
		}
		sent, sendErr = anfd.Sendmmsg(f, msgs, 0)
	}, SpawnOptions{})
	require.NoError(t, err)

	_, err = sched.Spawn(func(f *Fiber) {
		for i := 0; i < 2; i++ {
			buf := make([]byte, 16)
			n, rerr := bnfd.Read(f, buf)
			require.NoError(t, rerr)
			received = append(received, string(buf[:n]))
		}
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	require.NoError(t, sendErr)
	assert.Equal(t, 2, sent)
	assert.ElementsMatch(t, []string{"one", "two"}, received)
}

func TestScheduler_OpenFIFO(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	dir := t.TempDir()
	fifoPath := dir + "/fifo"
	require.NoError(t, unix.Mkfifo(fifoPath, 0o600))

	readerFD, err := sched.Open(fifoPath, unix.O_RDONLY, 0)
	require.NoError(t, err)

	writerFD, err := sched.Open(fifoPath, unix.O_WRONLY, 0)
	require.NoError(t, err)

	var got string
	var readErr error
	_, err = sched.Spawn(func(f *Fiber) {
		buf := make([]byte, 16)
		n, rerr := readerFD.Read(f, buf)
		readErr = rerr
		got = string(buf[:n])
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	_, err = sched.Spawn(func(f *Fiber) {
		_, werr := writerFD.Write(f, []byte("fifo data"))
		require.NoError(t, werr)
	}, SpawnOptions{})
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	require.NoError(t, readErr)
	assert.Equal(t, "fifo data", got)
}

func TestNetFD_SetDataGetDataAndDestructor(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))

	rnfd, err := sched.NewNetFD(fds[0], false)
	require.NoError(t, err)
	require.NoError(t, unix.Close(fds[1]))

	assert.Nil(t, rnfd.GetData())

	var destructed []string
	rnfd.SetData("first", func(v any) { destructed = append(destructed, v.(string)) })
	assert.Equal(t, "first", rnfd.GetData())

	rnfd.SetData("second", func(v any) { destructed = append(destructed, v.(string)) })
	assert.Equal(t, []string{"first"}, destructed)
	assert.Equal(t, "second", rnfd.GetData())

	require.NoError(t, rnfd.Close())
	assert.Equal(t, []string{"first", "second"}, destructed)
}
