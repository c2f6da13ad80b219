package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/harsh-quidich/camxfer/fileutil"
)

// entry is one scanner-tracked candidate: seen, in flight, or completed.
type entry struct {
	Name      string `json:"name"`
	SizeProbe int64  `json:"size_probe"`
	Done      bool   `json:"done"`
}

// JSON is a local, restart-surviving record of which source names the
// Scanner has already dispatched or completed in a "once" run, so a
// restarted sender does not re-send files it already finished (continuous
// mode relies on start_after for that instead).
type JSON struct {
	SrcDir string           `json:"src_dir"`
	Files  map[string]*entry `json:"files"`

	mutex sync.RWMutex
	path  string
	dirty bool
}

// NewJSON initializes or loads the cache for the given source directory.
func NewJSON(cacheDir, srcDir string) (j *JSON, err error) {
	name := fmt.Sprintf("%s.json", fileutil.StringMD5(srcDir))
	j = &JSON{
		SrcDir: srcDir,
		Files:  make(map[string]*entry),
		path:   filepath.Join(cacheDir, name),
	}
	if err = fileutil.LoadJSON(j.path, j); err != nil && !os.IsNotExist(err) {
		err = fmt.Errorf("error loading cache file %s: %s", j.path, err)
		return
	}
	err = nil
	return
}

// IsDone reports whether the named file was already completed in a prior
// run of this cache.
func (j *JSON) IsDone(name string) bool {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	if f, ok := j.Files[name]; ok {
		return f.Done
	}
	return false
}

// Add registers a candidate name the Scanner is now tracking.
func (j *JSON) Add(name string, sizeProbe int64) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.dirty = true
	if f, ok := j.Files[name]; ok {
		f.SizeProbe = sizeProbe
		return
	}
	j.Files[name] = &entry{Name: name, SizeProbe: sizeProbe}
}

// Done marks a name as completed (success or terminal failure both count,
// since either removes it from the candidate set).
func (j *JSON) Done(name string) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	if f, ok := j.Files[name]; ok {
		if f.Done {
			return
		}
		f.Done = true
		j.dirty = true
	}
}

// Remove drops a name from the cache entirely.
func (j *JSON) Remove(name string) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	if _, ok := j.Files[name]; ok {
		delete(j.Files, name)
		j.dirty = true
	}
}

// Persist writes the in-memory cache to disk if it has changed.
func (j *JSON) Persist() (err error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	if !j.dirty {
		return
	}
	if err = fileutil.WriteJSON(j.path, j); err != nil {
		return
	}
	j.dirty = false
	return
}
