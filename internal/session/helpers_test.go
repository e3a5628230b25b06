package session

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/embedsec/seclink/internal/link"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Keypair generation dominates test time; the identities are shared.
var (
	keyOnce   sync.Once
	engineKey *rsa.PrivateKey
	clientKey *rsa.PrivateKey
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		if engineKey, err = GenerateKey(rand.Reader); err != nil {
			panic(err)
		}
		if clientKey, err = GenerateKey(rand.Reader); err != nil {
			panic(err)
		}
	})
	return engineKey, clientKey
}

// seededRand is a deterministic byte stream: SHA-256 over a seed and a
// running counter.
type seededRand struct {
	seed    [8]byte
	counter uint64
	pending []byte
}

func newSeededRand(seed uint64) *seededRand {
	r := &seededRand{}
	binary.LittleEndian.PutUint64(r.seed[:], seed)
	return r
}

func (r *seededRand) Read(p []byte) (int, error) {
	for len(r.pending) < len(p) {
		var block [16]byte
		copy(block[:8], r.seed[:])
		binary.LittleEndian.PutUint64(block[8:], r.counter)
		r.counter++
		sum := sha256.Sum256(block[:])
		r.pending = append(r.pending, sum[:]...)
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// fakeClock is an injectable engine clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness runs an engine over a pipe and plays the outer loop: device
// requests are answered with fixed values.
type harness struct {
	eng   *Engine
	peer  link.Link
	clock *fakeClock
	tags  chan RequestTag
	done  chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	engKey, _ := testKeys(t)

	engSide, peerSide := link.Pipe()
	clock := newFakeClock()
	eng, err := NewEngine(Config{
		Link:   engSide,
		Random: newSeededRand(1),
		Now:    clock.Now,
		Key:    engKey,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	h := &harness{
		eng:   eng,
		peer:  peerSide,
		clock: clock,
		tags:  make(chan RequestTag, 64),
		done:  make(chan struct{}),
	}
	go h.loop()
	t.Cleanup(func() {
		peerSide.Close()
		<-h.done
	})
	return h
}

func (h *harness) loop() {
	defer close(h.done)
	for {
		tag, err := h.eng.Step()
		if err != nil {
			return
		}
		h.tags <- tag
		switch tag {
		case TagToggleLED:
			h.eng.Respond(true, []byte("ON"))
		case TagGetTemperature:
			h.eng.Respond(true, []byte("53.25"))
		}
	}
}

func (h *harness) nextTag(t *testing.T) RequestTag {
	t.Helper()
	select {
	case tag := <-h.tags:
		return tag
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for engine step")
		return TagNone
	}
}

// newTestClient attaches a client to the harness's peer end.
func newTestClient(t *testing.T, h *harness) *Client {
	t.Helper()
	_, cliKey := testKeys(t)
	cli, err := NewClient(ClientConfig{
		Link:   h.peer,
		Random: newSeededRand(2),
		Key:    cliKey,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return cli
}

// connect runs both handshake phases and drains the harness tags.
func connect(t *testing.T, h *harness, cli *Client) {
	t.Helper()
	if err := cli.Handshake(); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if tag := h.nextTag(t); tag != TagHandshakePhase1 {
		t.Fatalf("phase 1 tag = %v", tag)
	}
	if err := cli.Establish(); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if tag := h.nextTag(t); tag != TagHandshakePhase2 {
		t.Fatalf("phase 2 tag = %v", tag)
	}
}
