// Package mock provides small test doubles used across the sender and
// receiver test suites: a stdout/stderr Logger and helpers for generating
// camera-style image names and writing out fixture frame files.
package mock

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// Logger mocks camxfer.Logger by printing to stdout/stderr, grounded on the
// stdout/stderr mock.Logger pattern.
type Logger struct {
	DebugMode bool
}

// Debug logs debug messages, only when DebugMode is set.
func (l *Logger) Debug(params ...interface{}) {
	if l.DebugMode {
		fmt.Fprintln(os.Stdout, params...)
	}
}

// Info logs general information.
func (l *Logger) Info(params ...interface{}) {
	fmt.Fprintln(os.Stdout, params...)
}

// Error logs errors.
func (l *Logger) Error(params ...interface{}) {
	fmt.Fprintln(os.Stderr, params...)
}

// FrameName builds a camera-style image file name, e.g. "cam03-000042.jpg",
// for use as source-directory fixtures in Scanner/Dispatcher tests.
func FrameName(camera string, seq int) string {
	return fmt.Sprintf("%s-%06d.jpg", camera, seq)
}

// WriteFrame writes a size-byte random-content fixture file named name
// under dir, returning its absolute path. Used by the scan and dispatch
// tests to exercise readiness probing and frame sending without a real
// camera feed.
func WriteFrame(dir, name string, size int) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
