package log

import "github.com/harsh-quidich/camxfer"

var std camxfer.Logger

// Init creates a single logger instance for general logging.
func Init(rootDir string, debug bool) {
	if std != nil {
		if g, ok := std.(*General); ok && g.logger.root != rootDir {
			panic("logger already initialized with a different path")
		}
		return
	}
	g := NewGeneral(rootDir, debug)
	g.calldepth = 2
	std = g
}

// InitExternal sets the internal logger to an externally-provided one (used
// by tests to install mock.Logger).
func InitExternal(logger camxfer.Logger) {
	std = logger
}

func check() {
	if std == nil {
		panic("no logger defined")
	}
}

// Debug logs debug messages.
func Debug(params ...interface{}) {
	check()
	std.Debug(params...)
}

// Info logs general information.
func Info(params ...interface{}) {
	check()
	std.Info(params...)
}

// Error logs errors.
func Error(params ...interface{}) {
	check()
	std.Error(params...)
}
