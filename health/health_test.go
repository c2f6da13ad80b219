package health

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/harsh-quidich/camxfer"
	"github.com/harsh-quidich/camxfer/log"
)

func init() {
	log.InitExternal(&stubLogger{})
}

type stubLogger struct{}

func (*stubLogger) Debug(params ...interface{}) {}
func (*stubLogger) Info(params ...interface{})  {}
func (*stubLogger) Error(params ...interface{}) {}

func freePort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestHealthzAndStats(t *testing.T) {
	port := freePort(t)
	stats := &camxfer.Stats{}
	stats.AddSent(1024, time.Second)
	s := New(port, stats)

	stop := make(chan struct{})
	done := make(chan struct{})
	go s.Serve(stop, done)
	defer func() {
		close(stop)
		<-done
	}()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get(fmt.Sprintf("http://localhost:%d/healthz", port))
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	resp, err = http.Get(fmt.Sprintf("http://localhost:%d/stats", port))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got camxfer.Stats
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.FilesSent != 1 || got.Bytes != 1024 {
		t.Fatalf("unexpected stats: %+v", &got)
	}
}
