package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/MKWorldWide/divinebus/errs"
)

const testMaxSize = 1 << 16

// acceptOne returns a server-side Conn paired with a raw client socket.
func acceptOne(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	var (
		server *Conn
		srvErr error
		wg     sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		server, srvErr = ln.Accept()
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = raw.Close() })

	wg.Wait()
	if srvErr != nil {
		t.Fatal(srvErr)
	}
	t.Cleanup(func() { _ = server.Close() })
	return server, raw
}

func TestConn_WriteReadFrame(t *testing.T) {
	server, raw := acceptOne(t)
	client := newConn(raw)

	if err := client.WriteFrame([]byte("ping"), testMaxSize); err != nil {
		t.Fatal(err)
	}
	got, err := server.ReadFrame(testMaxSize, time.Second, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("ping")) {
		t.Errorf("got %q, want ping", got)
	}

	if err := server.WriteFrame([]byte("pong"), testMaxSize); err != nil {
		t.Fatal(err)
	}
	got, err = client.ReadFrame(testMaxSize, time.Second, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("pong")) {
		t.Errorf("got %q, want pong", got)
	}
}

func TestReadFrame_IdleTimeout(t *testing.T) {
	server, _ := acceptOne(t)
	_, err := server.ReadFrame(testMaxSize, 50*time.Millisecond, time.Second)
	if !errors.Is(err, errs.ErrConnIdle) {
		t.Errorf("got %v, want ErrConnIdle", err)
	}
}

func TestReadFrame_PeerClosed(t *testing.T) {
	server, raw := acceptOne(t)
	_ = raw.Close()
	_, err := server.ReadFrame(testMaxSize, time.Second, time.Second)
	if !errors.Is(err, errs.ErrConnIdle) {
		t.Errorf("got %v, want ErrConnIdle", err)
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	server, raw := acceptOne(t)
	// Claim a 10-byte body but only deliver 3 bytes; the body read must time
	// out and report a truncated frame, never a partial payload.
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 10)
	if _, err := raw.Write(append(header, 'a', 'b', 'c')); err != nil {
		t.Fatal(err)
	}
	_, err := server.ReadFrame(testMaxSize, time.Second, 50*time.Millisecond)
	if !errors.Is(err, errs.ErrTruncatedFrame) {
		t.Errorf("got %v, want ErrTruncatedFrame", err)
	}
}

func TestReadFrame_TooLarge(t *testing.T) {
	server, raw := acceptOne(t)
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, testMaxSize+1)
	if _, err := raw.Write(header); err != nil {
		t.Fatal(err)
	}
	_, err := server.ReadFrame(testMaxSize, time.Second, time.Second)
	if !errors.Is(err, errs.ErrFrameTooLarge) {
		t.Errorf("got %v, want ErrFrameTooLarge", err)
	}
}

func TestConn_Close(t *testing.T) {
	server, raw := acceptOne(t)
	client := newConn(raw)
	if err := client.Close(); err != nil {
		t.Fatal(err)
	}
	if err := client.WriteFrame([]byte("x"), testMaxSize); !errors.Is(err, errs.ErrClosed) {
		t.Errorf("WriteFrame after Close: got %v, want ErrClosed", err)
	}
	if _, err := client.ReadFrame(testMaxSize, time.Second, time.Second); !errors.Is(err, errs.ErrClosed) {
		t.Errorf("ReadFrame after Close: got %v, want ErrClosed", err)
	}
	_ = server.Close()
}

func TestListen_InvalidAddr(t *testing.T) {
	if _, err := Listen("invalid:addr:here"); err == nil {
		t.Fatal("expected error for invalid address")
	}
}
