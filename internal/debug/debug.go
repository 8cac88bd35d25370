package debug

import (
	"io"
	"log"
	"os"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (startup, moves started, rejected commands)
	LevelLive    = 2 // Live info (commands received, periodic positions)
	LevelVerbose = 3 // Verbose (solver iterations, per-tick targets)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	level  int
	out    io.Writer = os.Stdout
	logger *log.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (startup, synchronized moves, rejected commands)
// 2 = live info (decoded commands, position log)
// 3 = verbose (duration solver, coordinator targets)
// 4 = trace (GPIO, step pulses)
func Init(debugLevel int) {
	level = debugLevel
	if level > LevelOff {
		logger = log.New(out, "[rigd] ", log.LstdFlags|log.Lmicroseconds)
	} else {
		logger = nil
	}
}

// SetOutput redirects debug output, e.g. to mirror it to web clients.
// Must be called before the control loop starts.
func SetOutput(w io.Writer) {
	out = w
	if logger != nil {
		logger.SetOutput(w)
	}
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] "+format, args...)
	}
}

// Warn prints a level 1 warning. Used for dropped packets and rejected moves.
func Warn(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[WARN] "+format, args...)
	}
}

// Summary prints an important banner (level 1).
func Summary(title string) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("═══════════════════════════════════════")
		logger.Printf("  %s", title)
		logger.Printf("═══════════════════════════════════════")
	}
}

// MoveStarted prints the parameters of a synchronized move (level 1).
func MoveStarted(kind string, goal [4]int64, requestedMs, plannedMs int64) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] Move %s: goal=P%d T%d Z%d S%d requested=%dms planned=%dms",
			kind, goal[0], goal[1], goal[2], goal[3], requestedMs, plannedMs)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] "+format, args...)
	}
}

// Positions prints the rig position line (level 2).
func Positions(jog float64, pos [4]int64) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] jog=%.2f | P:%d T:%d Z:%d S:%d", jog, pos[0], pos[1], pos[2], pos[3])
	}
}

// Command prints a decoded inbound command (level 2).
func Command(from string, v interface{}) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] Command from %s: %T%+v", from, v, v)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] "+format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] %s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Printf("  %s", name)
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered startup step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] Step %d: %s", num, description)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO]   %s = %v", name, value)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[TRACE] "+format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[GPIO] %s pin=%d value=%v", operation, pin, value)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[ERROR] %v", err)
	}
}
