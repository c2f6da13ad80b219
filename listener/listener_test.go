package listener

import (
	"bufio"
	"net"
	"testing"
	"time"
)

func TestServeDispatchesConnections(t *testing.T) {
	s, err := Listen("127.0.0.1", 0, false)
	if err != nil {
		t.Fatal(err)
	}

	received := make(chan string, 1)
	go s.Serve(func(conn net.Conn) {
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		received <- line
	})
	defer s.Close()

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	conn.Write([]byte("hello\n"))
	conn.Close()

	select {
	case line := <-received:
		if line != "hello\n" {
			t.Fatalf("unexpected line: %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler to run")
	}
}

func TestCloseStopsServe(t *testing.T) {
	s, err := Listen("127.0.0.1", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve(func(net.Conn) {}) }()
	s.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}
