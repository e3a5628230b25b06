package session

import (
	"testing"
	"time"

	"github.com/embedsec/seclink/internal/protocol"
)

func TestClientRequiresHandshakeOrder(t *testing.T) {
	h := newHarness(t)
	cli := newTestClient(t, h)

	if err := cli.Establish(); err == nil {
		t.Fatal("Establish before Handshake succeeded")
	}
	if _, err := cli.Temperature(); err == nil {
		t.Fatal("command before establishment succeeded")
	}
}

func TestClientWithWrongPSKGetsNoAnswer(t *testing.T) {
	h := newHarness(t)
	_, cliKey := testKeys(t)

	var wrong [protocol.PSKSize]byte
	wrong[0] = 0xA5
	cli, err := NewClient(ClientConfig{
		Link: h.peer,
		PSK:  wrong,
		Key:  cliKey,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- cli.Handshake() }()

	// The record's MAC does not verify; the engine reports an error tag
	// and stays silent, leaving the peer to time out.
	if tag := h.nextTag(t); tag != TagError {
		t.Fatalf("tag = %v, want error", tag)
	}
	select {
	case err := <-errc:
		t.Fatalf("Handshake returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	h.peer.Close()
	if err := <-errc; err == nil {
		t.Fatal("Handshake succeeded over a dead link")
	}
}

func TestClientSessionIDNeverZero(t *testing.T) {
	h := newHarness(t)
	cli := newTestClient(t, h)
	connect(t, h, cli)

	if cli.sid == ([protocol.SessionIDSize]byte{}) {
		t.Fatal("established session has zero id")
	}
	if !cli.Active() {
		t.Fatal("client inactive after establishment")
	}
}

func TestCloseSessionDeactivatesClient(t *testing.T) {
	h := newHarness(t)
	cli := newTestClient(t, h)
	connect(t, h, cli)

	if err := cli.CloseSession(); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	h.nextTag(t)
	if cli.Active() {
		t.Fatal("client still active after close")
	}

	if _, err := cli.Temperature(); err == nil {
		t.Fatal("command after close succeeded")
	}
}

func TestReestablishAfterClose(t *testing.T) {
	h := newHarness(t)
	cli := newTestClient(t, h)
	connect(t, h, cli)

	first := cli.sid
	if err := cli.CloseSession(); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	h.nextTag(t)

	// A fresh establishment over the exchanged keys mints a new identity.
	if err := cli.Establish(); err != nil {
		t.Fatalf("re-Establish: %v", err)
	}
	if tag := h.nextTag(t); tag != TagHandshakePhase2 {
		t.Fatalf("tag = %v, want handshake_phase2", tag)
	}
	if cli.sid == first {
		t.Fatal("re-established session reused the old id")
	}
	if _, err := cli.Temperature(); err != nil {
		t.Fatalf("Temperature on new session: %v", err)
	}
	h.nextTag(t)
}
