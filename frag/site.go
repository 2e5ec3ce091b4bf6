package frag

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// Site is the call-site metadata attached to an operation. It is purely
// diagnostic: it appears in leak reports, assertion failures and
// out-of-memory reports, and never changes what an operation does.
type Site struct {
	File string
	Line int
	Func string
}

// Caller returns the Site of the function skip frames above the caller of
// Caller. Caller(0) describes the function that called Caller.
func Caller(skip int) Site {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Site{}
	}
	s := Site{File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		s.Func = fn.Name()
	}
	return s
}

// IsZero reports whether no call-site information was captured.
func (s Site) IsZero() bool {
	return s.File == "" && s.Line == 0 && s.Func == ""
}

func (s Site) String() string {
	if s.IsZero() {
		return "unknown site"
	}
	if s.Func == "" {
		return fmt.Sprintf("%s:%d", filepath.Base(s.File), s.Line)
	}
	return fmt.Sprintf("%s:%d (%s)", filepath.Base(s.File), s.Line, s.Func)
}
