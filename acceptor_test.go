//go:build linux

package wgcore

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startEchoGroup builds a single reactive group with one TCP acceptor that
// echoes every received frame back to the sender, draining the group's
// port on its own goroutine exactly as Worker.run's step A would.
func startEchoGroup(t *testing.T) (g *Group, acc *TCPAcceptor, stop func()) {
	t.Helper()
	g = &Group{Tag: GroupTag{
		ID: 1, Name: "echo", WorkerCount: 1,
		IsActive: false, EnableAsyncIO: true, SupportsTCPAsyncAcceptors: true,
	}}
	g.Port = NewPort()
	require.NoError(t, g.Port.Start(1))
	g.running.Store(true)

	acc = NewTCPAcceptor(AcceptorConfig{
		IP:      0x7f000001, // 127.0.0.1
		Port:    0,
		Backlog: 16,
		ID:      1,
		OnAccept: func(fd int) {
			postEchoReceive(g, fd)
		},
	})
	require.NoError(t, g.AddAcceptor(acc))
	require.NoError(t, acc.StartAcceptingAsync())

	done := make(chan struct{})
	go func() {
		var buf [64]Completion
		for {
			select {
			case <-done:
				return
			default:
			}
			n := g.Port.DequeueMany(buf[:], 50*time.Millisecond)
			for i := 0; i < n; i++ {
				c := buf[i]
				if c.Request == nil || c.Request.completion == nil {
					continue
				}
				c.Request.completion.dispatch(TaskContext{Bytes: c.Bytes, Err: c.Err})
				c.Request.completion.release()
			}
		}
	}()

	return g, acc, func() {
		close(done)
		acc.StopAcceptingAsync()
		g.Port.Stop()
	}
}

// postEchoReceive arms a receive on fd whose completion handler echoes the
// received bytes back and re-arms itself, per the accept+echo scenario.
func postEchoReceive(g *Group, fd int) {
	buf := make([]byte, 256)
	var recvTask *Task
	recvTask = MakeTask(func(ctx TaskContext) {
		if ctx.Err != nil || ctx.Bytes == 0 {
			return
		}
		sendTask := MakeTask(func(ctx TaskContext) {})
		_ = g.Port.BeginSend(&AsyncRequest{fd: fd, buf: buf[:ctx.Bytes], completion: sendTask})
		recvTask.addRef()
		_ = g.Port.BeginReceive(&AsyncRequest{fd: fd, buf: buf, completion: recvTask})
	})
	_ = g.Port.BeginReceive(&AsyncRequest{fd: fd, buf: buf, completion: recvTask})
}

func TestAcceptor_AcceptAndEcho(t *testing.T) {
	g, acc, stop := startEchoGroup(t)
	defer stop()

	addr := net.JoinHostPort("127.0.0.1", itoa(acc.BoundPort()))
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	const frames = 100
	const frameSize = 64
	payload := make([]byte, frameSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	var total atomic.Int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, frameSize)
		for total.Load() < frames*frameSize {
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			total.Add(int64(n))
		}
	}()

	for i := 0; i < frames; i++ {
		_, err := conn.Write(payload)
		require.NoError(t, err)
	}

	wg.Wait()
	require.Equal(t, int64(frames*frameSize), total.Load())
	_ = g
}

func TestAcceptor_StartAcceptingAsyncIsIdempotent(t *testing.T) {
	g, acc, stop := startEchoGroup(t)
	defer stop()
	require.NoError(t, acc.StartAcceptingAsync())
	_ = g
}

func TestAcceptor_UniquenessEnforced(t *testing.T) {
	g := &Group{Tag: GroupTag{ID: 1, Name: "g", WorkerCount: 1, EnableAsyncIO: true, SupportsTCPAsyncAcceptors: true}}
	g.Port = NewPort()

	a1 := NewTCPAcceptor(AcceptorConfig{IP: 1, Port: 100, ID: 1})
	require.NoError(t, g.AddAcceptor(a1))

	a2 := NewTCPAcceptor(AcceptorConfig{IP: 1, Port: 100, ID: 2})
	require.Error(t, g.AddAcceptor(a2))

	a3 := NewTCPAcceptor(AcceptorConfig{IP: 2, Port: 200, ID: 1})
	require.Error(t, g.AddAcceptor(a3))
}

func itoa(p uint16) string {
	if p == 0 {
		return "0"
	}
	digits := [5]byte{}
	i := len(digits)
	for p > 0 {
		i--
		digits[i] = byte('0' + p%10)
		p /= 10
	}
	return string(digits[i:])
}
