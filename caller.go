package condvar

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

const modulePath = "github.com/daichitakahashi/condvar."

// callsite reports the "file.go:line" of the nearest caller outside
// this package, for journal entries. Returns "" if it cannot be
// determined.
func callsite() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if f.Function != "" && !strings.HasPrefix(f.Function, modulePath) {
			return fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
		}
		if !more {
			return ""
		}
	}
}
