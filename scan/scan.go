// Package scan implements the Scanner: polls a source
// directory, filters by pattern and start_after, and feeds ready files to
// the work queue via the probe package's readiness checks.
package scan

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/harsh-quidich/camxfer"
	"github.com/harsh-quidich/camxfer/cache"
	"github.com/harsh-quidich/camxfer/fileutil"
	"github.com/harsh-quidich/camxfer/log"
	"github.com/harsh-quidich/camxfer/probe"
	"github.com/harsh-quidich/camxfer/queue"
)

// Scanner polls conf.SrcDir, tracks in_flight/completed candidates, and
// pushes ready TransferTasks onto q. Grounded on the original
// cache-backed directory walk, with MinAge-based readiness replaced by
// probe.Check/probe.HasLookahead. The in_flight and completed sets are
// touched only from the Run goroutine; Workers report completion over
// done rather than mutating them directly.
type Scanner struct {
	conf     *camxfer.SendConf
	q        *queue.Queue
	cache    *cache.JSON
	destTmpl *template.Template
	done     <-chan string

	inFlight  map[string]*camxfer.SourceEntry
	completed map[string]bool
	sent      int64

	stop chan struct{}
}

// New creates a Scanner. cch may be nil to disable restart-recovery
// persistence (fine for continuous mode, where start_after is the
// recovery mechanism). done is the Dispatcher's completion channel: each
// Worker reports a name there on success or terminal failure, and the
// Dispatcher closes it once every Worker has exited. If conf.DestTemplate
// is set, it is parsed as a Go template with the date/string helpers from
// fileutil.CreateDateFuncs/CreateStringFuncs, letting a deployment route
// frames into dated destination subdirectories instead of the flat
// prefix+basename default.
func New(conf *camxfer.SendConf, q *queue.Queue, cch *cache.JSON, done <-chan string) (*Scanner, error) {
	s := &Scanner{
		conf:      conf,
		q:         q,
		cache:     cch,
		done:      done,
		inFlight:  make(map[string]*camxfer.SourceEntry),
		completed: make(map[string]bool),
		stop:      make(chan struct{}),
	}
	if conf.DestTemplate != "" {
		funcs := fileutil.CombineFuncs(fileutil.CreateDateFuncs(), fileutil.CreateStringFuncs())
		tmpl, err := template.New("dest").Funcs(funcs).Parse(conf.DestTemplate)
		if err != nil {
			return nil, fmt.Errorf("parsing dest_template: %w", err)
		}
		s.destTmpl = tmpl
	}
	return s, nil
}

// Stop signals the scan loop to exit after its current poll.
func (s *Scanner) Stop() {
	close(s.stop)
}

// markDone removes name from the in-flight set after a Worker reports
// success or terminal failure. Called only from the Run goroutine.
func (s *Scanner) markDone(name string) {
	delete(s.inFlight, name)
	s.completed[name] = true
	if s.cache != nil {
		s.cache.Done(name)
		s.cache.Persist()
	}
}

// Run drives the poll loop until Stop is called, max_files is reached, or
// (in once mode) the backlog drains.
func (s *Scanner) Run() {
	if s.conf.CleanupPartFiles {
		s.cleanupStaleParts()
	}

	lastNewFile := time.Now()
	for {
		select {
		case <-s.stop:
			s.finish()
			return
		case name := <-s.done:
			s.markDone(name)
			continue
		default:
		}

		listing, err := s.listNames()
		if err != nil {
			log.Error("SCAN listing failed:", err.Error())
			s.sleepDraining(s.conf.PollMs.Duration)
			continue
		}

		sawNewFile := s.scanOnce(listing, lastNewFile)
		if sawNewFile {
			lastNewFile = time.Now()
		}

		if s.conf.MaxFiles > 0 && s.sent >= int64(s.conf.MaxFiles) {
			s.finish()
			return
		}
		if s.conf.Once && len(s.inFlight) == 0 && s.backlogExhausted(listing) {
			s.finish()
			return
		}

		s.sleepDraining(s.conf.PollMs.Duration)
	}
}

// finish closes q so idle Workers stop pulling new tasks, then blocks
// draining done until the Dispatcher closes it, the signal that every
// Worker (including ones still finishing an already-popped task) has
// exited. This keeps markDone strictly single-goroutine even during
// shutdown.
func (s *Scanner) finish() {
	s.q.Close()
	for name := range s.done {
		s.markDone(name)
	}
}

// sleepDraining blocks for roughly d, draining completion notifications
// that arrive in the meantime so Workers never block handing one off.
func (s *Scanner) sleepDraining(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-s.stop:
			return
		case name := <-s.done:
			s.markDone(name)
		case <-timer.C:
			return
		}
	}
}

// scanOnce performs one poll: list, filter, probe, dispatch. Returns true
// if any previously-unseen candidate was discovered this cycle.
func (s *Scanner) scanOnce(listing []string, lastNewFile time.Time) (sawNew bool) {
	for _, name := range listing {
		if s.completed[name] {
			continue
		}
		if _, tracked := s.inFlight[name]; !tracked {
			if s.conf.StartAfter != "" && name <= s.conf.StartAfter {
				s.completed[name] = true
				continue
			}
			if s.cache != nil && s.cache.IsDone(name) {
				s.completed[name] = true
				continue
			}
			s.inFlight[name] = &camxfer.SourceEntry{
				Name:         name,
				AbsolutePath: filepath.Join(s.conf.SrcDir, name),
				FirstSeen:    time.Now(),
			}
			if s.cache != nil {
				s.cache.Add(name, 0)
			}
			sawNew = true
			if s.conf.Verbose {
				log.Info("SCAN Found:", name)
			}
		}
		s.probeAndDispatch(name, listing)
	}

	if s.conf.Once && s.drainDue(lastNewFile) {
		s.drainRemaining()
	}
	return
}

func (s *Scanner) probeAndDispatch(name string, listing []string) {
	entry := s.inFlight[name]
	if entry == nil || entry.Ready {
		return
	}
	if !probe.HasLookahead(listing, name, s.conf.Lookahead) {
		return
	}
	if !probe.WaitForFile(entry.AbsolutePath, s.conf.FileWaitMs.Duration) {
		log.Info("SCAN file_missing:", name)
		delete(s.inFlight, name)
		if s.cache != nil {
			s.cache.Remove(name)
		}
		return
	}
	result, size := probe.Check(entry.AbsolutePath, probe.Options{
		StableMs: s.conf.StableMs.Duration,
	})
	switch result {
	case probe.Ready:
		entry.Ready = true
		entry.SizeAtProbe = size
		s.dispatch(*entry)
	case probe.FileMissing:
		log.Info("SCAN file_missing:", name)
		delete(s.inFlight, name)
		if s.cache != nil {
			s.cache.Remove(name)
		}
	case probe.NotReady:
		// Re-probed on the next scan.
	}
}

func (s *Scanner) dispatch(entry camxfer.SourceEntry) {
	dest := s.destinationFor(entry)
	s.q.Push(camxfer.TransferTask{Entry: entry, DestinationPath: dest})
	s.sent++
	if s.conf.Verbose {
		log.Info("SCAN Dispatched:", entry.Name)
	}
}

// destTemplateData is exposed to dest_template as the "." value, giving a
// deployment access to the candidate's name and discovery time alongside
// the carbon-based date/string helpers.
type destTemplateData struct {
	Name      string
	FirstSeen time.Time
}

// destinationFor builds the destination path: relative structure
// preserved under dest_prefix, or flattened to basename, unless
// conf.DestTemplate overrides the whole scheme.
func (s *Scanner) destinationFor(entry camxfer.SourceEntry) string {
	prefix := strings.TrimLeft(strings.TrimRight(s.conf.DestPath, "/"), "/")
	if s.destTmpl != nil {
		var buf bytes.Buffer
		if err := s.destTmpl.Execute(&buf, destTemplateData{Name: entry.Name, FirstSeen: entry.FirstSeen}); err == nil {
			return prefix + "/" + strings.TrimLeft(buf.String(), "/")
		}
		log.Error("SCAN dest_template execution failed, falling back to flat naming for:", entry.Name)
	}
	if s.conf.PreserveStructure {
		rel, err := filepath.Rel(s.conf.SrcDir, filepath.Join(s.conf.SrcDir, entry.Name))
		if err == nil {
			return prefix + "/" + rel
		}
	}
	return prefix + "/" + filepath.Base(entry.Name)
}

// drainDue implements the chosen "lookahead starvation at end-of-stream"
// policy: time-based terminal drain, only in once mode.
func (s *Scanner) drainDue(lastNewFile time.Time) bool {
	return len(s.inFlight) > 0 && time.Since(lastNewFile) >= s.conf.DrainAfterMs.Duration
}

// drainRemaining force-dispatches whatever is left in in_flight once the
// drain window has elapsed, ignoring the lookahead signal but still
// requiring size-stability.
func (s *Scanner) drainRemaining() {
	for name, entry := range s.inFlight {
		if entry.Ready {
			continue
		}
		result, size := probe.Check(entry.AbsolutePath, probe.Options{
			StableMs: s.conf.StableMs.Duration,
		})
		if result == probe.Ready {
			entry.Ready = true
			entry.SizeAtProbe = size
			s.dispatch(*entry)
		} else if result == probe.FileMissing {
			delete(s.inFlight, name)
		}
	}
}

func (s *Scanner) backlogExhausted(listing []string) bool {
	for _, name := range listing {
		if !s.completed[name] {
			return false
		}
	}
	return true
}

func (s *Scanner) listNames() ([]string, error) {
	entries, err := os.ReadDir(s.conf.SrcDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := filepath.Match(s.conf.Pattern, e.Name())
		if err != nil || !ok {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// cleanupStaleParts removes stale, not-in-flight .part files, a
// hygiene operation.
func (s *Scanner) cleanupStaleParts() {
	const staleAfter = 10 * time.Minute
	entries, err := os.ReadDir(s.conf.SrcDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		if _, inFlight := s.inFlight[e.Name()]; inFlight {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > staleAfter {
			path := filepath.Join(s.conf.SrcDir, e.Name())
			if err := os.Remove(path); err == nil {
				log.Info("SCAN removed stale part file:", path)
			}
		}
	}
}
