package cache

import (
	"os"
	"testing"
)

func TestJSONRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "camxfer-cache")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	j, err := NewJSON(dir, "/data/camera01")
	if err != nil {
		t.Fatal(err)
	}
	j.Add("frame_camera01_000000001.jpg", 1024)
	if j.IsDone("frame_camera01_000000001.jpg") {
		t.Fatal("should not be done yet")
	}
	j.Done("frame_camera01_000000001.jpg")
	if !j.IsDone("frame_camera01_000000001.jpg") {
		t.Fatal("expected done")
	}
	if err := j.Persist(); err != nil {
		t.Fatal(err)
	}

	j2, err := NewJSON(dir, "/data/camera01")
	if err != nil {
		t.Fatal(err)
	}
	if !j2.IsDone("frame_camera01_000000001.jpg") {
		t.Fatal("expected done to survive reload")
	}
}
