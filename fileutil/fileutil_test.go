package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsSafeRelPath(t *testing.T) {
	cases := []struct {
		name string
		safe bool
	}{
		{"frame_camera01_000000001.jpg", true},
		{"sub/dir/frame.jpg", true},
		{"../../etc/passwd", false},
		{"/etc/passwd", false},
		{"a/../../b", false},
		{"", false},
		{"a\x00b", false},
	}
	for _, c := range cases {
		if got := IsSafeRelPath(c.name); got != c.safe {
			t.Errorf("IsSafeRelPath(%q) = %v, want %v", c.name, got, c.safe)
		}
	}
}

func TestWriteAndLoadJSON(t *testing.T) {
	dir, err := os.MkdirTemp("", "camxfer-fileutil")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "state.json")
	type payload struct {
		Name string `json:"name"`
	}
	in := &payload{Name: "frame_camera01_000000001.jpg"}
	if err := WriteJSON(path, in); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + LockExt); !os.IsNotExist(err) {
		t.Fatal("lock file should have been renamed away")
	}
	out := &payload{}
	if err := LoadJSON(path, out); err != nil {
		t.Fatal(err)
	}
	if out.Name != in.Name {
		t.Fatalf("got %q, want %q", out.Name, in.Name)
	}
}

func TestMoveOverwritesDestination(t *testing.T) {
	dir, err := os.MkdirTemp("", "camxfer-fileutil-move")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "src.part")
	dst := filepath.Join(dir, "dst.jpg")
	if err := os.WriteFile(src, []byte("new"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Move(src, dst); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "new" {
		t.Fatalf("got %q, want %q", string(b), "new")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("source should no longer exist")
	}
}
