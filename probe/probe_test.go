package probe

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHasLookahead(t *testing.T) {
	listing := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"}
	if !HasLookahead(listing, "a.jpg", 4) {
		t.Fatal("expected lookahead to hold: 4 names after a.jpg")
	}
	if HasLookahead(listing, "b.jpg", 4) {
		t.Fatal("expected lookahead to fail: only 3 names after b.jpg")
	}
	if HasLookahead(listing, "missing.jpg", 1) {
		t.Fatal("expected false for a name absent from the listing")
	}
}

func TestCheckStableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}
	result, size := Check(path, Options{StableMs: 2 * time.Millisecond})
	if result != Ready {
		t.Fatalf("expected Ready, got %v", result)
	}
	if size != 10 {
		t.Fatalf("expected size 10, got %d", size)
	}
}

func TestCheckMissingFile(t *testing.T) {
	result, _ := Check("/nonexistent/path/frame.jpg", Options{StableMs: time.Millisecond})
	if result != FileMissing {
		t.Fatalf("expected FileMissing, got %v", result)
	}
}

func TestCheckGrowingFileIsNotReady(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			f.WriteString("y")
			f.Close()
		}
		close(done)
	}()
	result, _ := Check(path, Options{StableMs: 20 * time.Millisecond})
	<-done
	if result != NotReady {
		t.Fatalf("expected NotReady for a file that grew mid-probe, got %v", result)
	}
}

func TestWaitForFileEventuallyAppears(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.jpg")
	go func() {
		time.Sleep(3 * time.Millisecond)
		os.WriteFile(path, []byte("data"), 0644)
	}()
	if !WaitForFile(path, 20*time.Millisecond) {
		t.Fatal("expected file to eventually appear")
	}
}

func TestWaitForFileGivesUp(t *testing.T) {
	if WaitForFile("/nonexistent/frame.jpg", 5*time.Millisecond) {
		t.Fatal("expected wait to give up on a file that never appears")
	}
}
