// Package cernanlog provides a simple way of logging with different levels.
// Time/Date are not logged on purpose because systemd adds them for us.
//
// Uses these prefixes: https://www.freedesktop.org/software/systemd/man/sd-daemon.html
package cernanlog

import (
	"fmt"
	"io"
	"os"
)

var (
	TraceWriter io.Writer = os.Stderr
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrorWriter io.Writer = os.Stderr
)

var (
	TracePrefix string = "<7>[TRACE]  "
	DebugPrefix string = "<7>[DEBUG]  "
	InfoPrefix  string = "<6>[INFO]   "
	WarnPrefix  string = "<4>[WARNING]"
	ErrPrefix   string = "<3>[ERROR]  "
	FatalPrefix string = "<3>[FATAL]  "
)

// SetVerbosity configures the active log levels from the CLI's repeated
// `-v` flag: error, +warn, +info, +debug, +trace. count == 0 means only
// error-level output; each additional -v enables the next level.
func SetVerbosity(count int) {
	TraceWriter = io.Discard
	DebugWriter = io.Discard
	InfoWriter = io.Discard
	WarnWriter = io.Discard

	if count >= 1 {
		WarnWriter = os.Stderr
	}
	if count >= 2 {
		InfoWriter = os.Stderr
	}
	if count >= 3 {
		DebugWriter = os.Stderr
	}
	if count >= 4 {
		TraceWriter = os.Stderr
	}
}

func Trace(v ...interface{}) {
	if TraceWriter != io.Discard {
		v = append([]interface{}{TracePrefix}, v...)
		fmt.Fprintln(TraceWriter, v...)
	}
}

func Debug(v ...interface{}) {
	if DebugWriter != io.Discard {
		v = append([]interface{}{DebugPrefix}, v...)
		fmt.Fprintln(DebugWriter, v...)
	}
}

func Info(v ...interface{}) {
	if InfoWriter != io.Discard {
		v = append([]interface{}{InfoPrefix}, v...)
		fmt.Fprintln(InfoWriter, v...)
	}
}

func Print(v ...interface{}) {
	Info(v...)
}

func Warn(v ...interface{}) {
	if WarnWriter != io.Discard {
		v = append([]interface{}{WarnPrefix}, v...)
		fmt.Fprintln(WarnWriter, v...)
	}
}

func Error(v ...interface{}) {
	if ErrorWriter != io.Discard {
		v = append([]interface{}{ErrPrefix}, v...)
		fmt.Fprintln(ErrorWriter, v...)
	}
}

// Fatal logs at error level and terminates the process with exit code 1,
// for runtime failures that end the process outright, such as fatal
// channel loss. Config validation failures go through Abortf instead.
func Fatal(v ...interface{}) {
	if ErrorWriter != io.Discard {
		v = append([]interface{}{FatalPrefix}, v...)
		fmt.Fprintln(ErrorWriter, v...)
	}
	os.Exit(1)
}

func Tracef(format string, v ...interface{}) {
	if TraceWriter != io.Discard {
		fmt.Fprintf(TraceWriter, TracePrefix+" "+format+"\n", v...)
	}
}

func Debugf(format string, v ...interface{}) {
	if DebugWriter != io.Discard {
		fmt.Fprintf(DebugWriter, DebugPrefix+" "+format+"\n", v...)
	}
}

func Infof(format string, v ...interface{}) {
	if InfoWriter != io.Discard {
		fmt.Fprintf(InfoWriter, InfoPrefix+" "+format+"\n", v...)
	}
}

func Printf(format string, v ...interface{}) {
	Infof(format, v...)
}

func Warnf(format string, v ...interface{}) {
	if WarnWriter != io.Discard {
		fmt.Fprintf(WarnWriter, WarnPrefix+" "+format+"\n", v...)
	}
}

func Errorf(format string, v ...interface{}) {
	if ErrorWriter != io.Discard {
		fmt.Fprintf(ErrorWriter, ErrPrefix+" "+format+"\n", v...)
	}
}

// Fatalf logs at fatal level with a format string and terminates the process.
func Fatalf(format string, v ...interface{}) {
	if ErrorWriter != io.Discard {
		fmt.Fprintf(ErrorWriter, FatalPrefix+" "+format+"\n", v...)
	}
	os.Exit(1)
}

// Abortf logs at fatal level with exit code 2, reserved for config
// validation failures (distinguished from Fatalf's exit code 1 so
// supervisors can tell a bad config apart from a runtime crash).
func Abortf(format string, v ...interface{}) {
	if ErrorWriter != io.Discard {
		fmt.Fprintf(ErrorWriter, FatalPrefix+" "+format+"\n", v...)
	}
	os.Exit(2)
}
