package log

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/harsh-quidich/camxfer/fileutil"
)

// Transfer logs one completed send (sender side) or receive (receiver side)
// per source, rolling daily, so an operator can ask "was frame X
// transferred between T1 and T2" without scanning the whole history.
type Transfer struct {
	rootDir string
	lock    sync.Mutex
	loggers map[string]*rollingFile
	locks   map[string]*sync.RWMutex
}

// NewTransfer creates a new per-source rolling transfer log.
func NewTransfer(rootDir string) *Transfer {
	return &Transfer{
		rootDir: rootDir,
		loggers: make(map[string]*rollingFile),
		locks:   make(map[string]*sync.RWMutex),
	}
}

func (t *Transfer) bySource(source string) (logger *rollingFile, lock *sync.RWMutex) {
	t.lock.Lock()
	defer t.lock.Unlock()
	var ok bool
	if logger, ok = t.loggers[source]; !ok {
		logger = newRollingFile(filepath.Join(t.rootDir, source), "", 0)
		t.loggers[source] = logger
	}
	if lock, ok = t.locks[source]; !ok {
		lock = &sync.RWMutex{}
		t.locks[source] = lock
	}
	return
}

// Record logs a finalized transfer for the given source.
func (t *Transfer) Record(source, name string, size int64, elapsedMs int64) {
	logger, lock := t.bySource(source)
	lock.Lock()
	defer lock.Unlock()
	logger.log(fmt.Sprintf("%s:%d:%d:%d", name, size, time.Now().Unix(), elapsedMs))
}

// WasRecorded looks for a prior record of name within the given window.
func (t *Transfer) WasRecorded(source, name string, after, before time.Time) bool {
	logger, lock := t.bySource(source)
	lock.RLock()
	defer lock.RUnlock()
	return logger.search(name+":", after, before)
}

// General is a rolling-file logger implementing camxfer.Logger.
type General struct {
	logger    *rollingFile
	lock      sync.Mutex
	calldepth int
	debug     bool
}

// NewGeneral creates a new General logging instance.
func NewGeneral(rootDir string, debug bool) *General {
	return &General{
		logger:    newRollingFile(rootDir, "", log.Ldate|log.Ltime),
		debug:     debug,
		calldepth: 1,
	}
}

// Debug logs debug messages (if enabled).
func (g *General) Debug(params ...interface{}) {
	if !g.debug {
		return
	}
	_, file, line, ok := runtime.Caller(g.calldepth)
	if !ok {
		file = "???"
		line = 0
	}
	params = append(
		[]interface{}{fmt.Sprintf("DEBUG %s:%d", filepath.Base(file), line)},
		params...)
	g.lock.Lock()
	defer g.lock.Unlock()
	fmt.Println(params...)
	g.logger.log(params...)
}

// Info logs general information.
func (g *General) Info(params ...interface{}) {
	params = append([]interface{}{"INFO"}, params...)
	g.lock.Lock()
	defer g.lock.Unlock()
	fmt.Println(params...)
	g.logger.log(params...)
}

// Error logs errors.
func (g *General) Error(params ...interface{}) {
	_, file, line, ok := runtime.Caller(g.calldepth)
	if !ok {
		file = "???"
		line = 0
	}
	params = append(
		[]interface{}{fmt.Sprintf("ERROR %s:%d", filepath.Base(file), line)},
		params...)
	g.lock.Lock()
	defer g.lock.Unlock()
	fmt.Fprintln(os.Stderr, params...)
	g.logger.log(params...)
}

type rollingFile struct {
	logger *log.Logger
	root   string
	path   string
	fh     *os.File
}

func newRollingFile(root, prefix string, flags int) *rollingFile {
	return &rollingFile{
		logger: log.New(nil, prefix, flags),
		root:   root,
	}
}

func (rf *rollingFile) getPath(t time.Time) string {
	return filepath.Join(
		rf.root,
		fmt.Sprintf("%04d%02d", t.Year(), t.Month()),
		fmt.Sprintf("%02d", t.Day()))
}

func (rf *rollingFile) getCurrPath() string {
	return rf.getPath(time.Now())
}

func (rf *rollingFile) rotate() {
	path := rf.getCurrPath()
	_, err := os.Stat(path)
	if rf.path != path || os.IsNotExist(err) || rf.fh == nil {
		rf.close()
		rf.path = path
		os.MkdirAll(filepath.Dir(path), os.ModePerm)
		rf.fh, err = os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			panic(fmt.Sprintf("failed to open log file: %s", err.Error()))
		}
		rf.logger.SetOutput(rf.fh)
	}
}

func (rf *rollingFile) log(t ...interface{}) {
	rf.rotate()
	rf.logger.Println(t...)
	rf.fh.Sync()
}

func (rf *rollingFile) close() {
	if rf.fh != nil {
		rf.fh.Close()
	}
}

// search looks for a given text pattern in the log history between start
// and stop, walking one day's rolled file at a time.
func (rf *rollingFile) search(text string, start, stop time.Time) bool {
	if start.IsZero() {
		start = time.Now()
	}
	if stop.IsZero() {
		stop = time.Now()
	}
	if start.Equal(stop) {
		return false
	}
	offset := 24 * time.Hour
	if stop.Before(start) {
		offset *= -1
	}
	b := []byte(text)
	for {
		path := rf.getPath(start)
		if fileutil.FindLine(path, b) != "" {
			return true
		}
		if offset > 0 && start.After(stop) {
			break
		}
		if offset < 0 && start.Before(stop) {
			break
		}
		start = start.Add(offset)
	}
	return false
}
