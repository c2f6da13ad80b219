package log

import (
	"os"
	"testing"
	"time"
)

func TestGeneralLogging(t *testing.T) {
	dir, err := os.MkdirTemp("", "camxfer-log")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	g := NewGeneral(dir, true)
	g.Info("hello", "world")
	g.Error("boom")

	if !g.logger.search("hello", time.Time{}, time.Time{}) {
		t.Fatal("expected to find logged message")
	}
}

func TestTransferRecord(t *testing.T) {
	dir, err := os.MkdirTemp("", "camxfer-log-transfer")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	tr := NewTransfer(dir)
	tr.Record("cam01", "frame_cam01_000000001.jpg", 1024, 12)

	now := time.Now()
	before := now.Add(-time.Minute)
	after := now.Add(time.Minute)
	if !tr.WasRecorded("cam01", "frame_cam01_000000001.jpg", before, after) {
		t.Fatal("expected record to be found")
	}
	if tr.WasRecorded("cam01", "frame_cam01_000000002.jpg", before, after) {
		t.Fatal("did not expect unrelated record to be found")
	}
}
