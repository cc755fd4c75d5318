package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/dnsscience/ripd/internal/config"
	"github.com/dnsscience/ripd/internal/packet"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ACachePath = filepath.Join(dir, "a_records_cache.txt")
	cfg.NSCachePath = filepath.Join(dir, "ns_records_cache.txt")
	cfg.HintsPath = filepath.Join(dir, "root_servers.txt") // intentionally absent
	cfg.MetricsListenAddr = ""
	return cfg
}

func TestNewBindsListener(t *testing.T) {
	srv, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer srv.conn.Close()

	if srv.conn.LocalAddr() == nil {
		t.Fatal("expected a bound local address")
	}
}

// TestHandleQuery_NoQuestionRepliesFormatError exercises the
// malformed-but-parseable path: a header with QDCount 0.
func TestHandleQuery_NoQuestionRepliesFormatError(t *testing.T) {
	srv, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer srv.conn.Close()

	msg := &packet.Message{Header: packet.Header{ID: 0xABCD}}
	wire, err := msg.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes() error: %v", err)
	}

	client, err := net.DialUDP("udp", nil, srv.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP() error: %v", err)
	}
	defer client.Close()

	go srv.loop(context.Background())

	if _, err := client.Write(wire); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 512)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	reply, err := packet.NewParser(buf[:n]).Parse()
	if err != nil {
		t.Fatalf("parsing reply: %v", err)
	}
	if reply.Header.ID != 0xABCD {
		t.Errorf("reply ID = %#x, want 0xABCD", reply.Header.ID)
	}
	if reply.Header.Rcode != packet.RcodeFormatError {
		t.Errorf("reply RCODE = %d, want RcodeFormatError", reply.Header.Rcode)
	}
}

func TestHandleQuery_CacheHitAnswersDirectly(t *testing.T) {
	srv, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer srv.conn.Close()

	srv.cache.InsertA("example.com", "192.0.2.1", time.Now().Unix()+300)

	query := packet.CreateQuery("example.com", packet.TypeA, 0x1111)
	wire, err := query.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes() error: %v", err)
	}

	client, err := net.DialUDP("udp", nil, srv.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP() error: %v", err)
	}
	defer client.Close()

	go srv.loop(context.Background())

	if _, err := client.Write(wire); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 512)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	reply, err := packet.NewParser(buf[:n]).Parse()
	if err != nil {
		t.Fatalf("parsing reply: %v", err)
	}
	if reply.Header.Rcode != packet.RcodeNoError {
		t.Errorf("reply RCODE = %d, want RcodeNoError", reply.Header.Rcode)
	}
	if len(reply.Answer) != 1 || reply.Answer[0].Data != "192.0.2.1" {
		t.Errorf("reply.Answer = %v, want one record for 192.0.2.1", reply.Answer)
	}
}

func TestRcodeLabel(t *testing.T) {
	cases := map[uint8]string{
		packet.RcodeFormatError:    "FORMAT_ERROR",
		packet.RcodeServerFailure:  "SERVER_FAILURE",
		packet.RcodeNameError:      "NAME_ERROR",
		packet.RcodeNotImplemented: "NOT_IMPLEMENTED",
		packet.RcodeRefused:        "REFUSED",
		99:                         "UNKNOWN",
	}
	for rcode, want := range cases {
		if got := rcodeLabel(rcode); got != want {
			t.Errorf("rcodeLabel(%d) = %q, want %q", rcode, got, want)
		}
	}
}
