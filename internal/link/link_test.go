package link

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPipeRoundTrip(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	rec := []byte{1, 2, 3, 4, 5}
	if err := a.WriteRecord(rec); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}

	buf := make([]byte, 64)
	n, err := b.ReadRecord(buf)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if !bytes.Equal(buf[:n], rec) {
		t.Fatalf("got %x, want %x", buf[:n], rec)
	}
}

func TestPipePreservesBoundaries(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	first := bytes.Repeat([]byte{0xAA}, 326)
	second := bytes.Repeat([]byte{0xBB}, 48)
	if err := a.WriteRecord(first); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if err := a.WriteRecord(second); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}

	buf := make([]byte, 1024)
	n, err := b.ReadRecord(buf)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if n != len(first) {
		t.Fatalf("first record length = %d, want %d", n, len(first))
	}
	n, err = b.ReadRecord(buf)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if n != len(second) {
		t.Fatalf("second record length = %d, want %d", n, len(second))
	}
}

func TestPipeCloseUnblocksRead(t *testing.T) {
	a, b := Pipe()

	errc := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, err := b.ReadRecord(buf)
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	a.Close()

	select {
	case err := <-errc:
		if err != ErrClosed {
			t.Fatalf("ReadRecord after close = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ReadRecord did not unblock on close")
	}
}

func TestTCPLinkRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	log := testLogger()
	client, err := DialTCP(ln.Addr().String(), log)
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer client.Close()

	server := NewTCPLink(<-accepted, log)
	defer server.Close()
	server.SetFrameGap(50 * time.Millisecond)

	rec := bytes.Repeat([]byte{0x5A}, 544)
	if err := client.WriteRecord(rec); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}

	buf := make([]byte, 1024)
	n, err := server.ReadRecord(buf)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if !bytes.Equal(buf[:n], rec) {
		t.Fatalf("record corrupted: %d bytes", n)
	}
}
