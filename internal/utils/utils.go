// Copyright (c) 2024 RoseLoverX

package utils

import (
	"bufio"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"
)

// Stack returns the stack of the calling goroutine.
func Stack() string {
	buf := make([]byte, 2048)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

// AskForConfirmation prints question to w and reads a y/n answer from r.
// An empty answer selects def.
func AskForConfirmation(r io.Reader, w io.Writer, question string, def bool) bool {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	fmt.Fprintf(w, "%s %s ", question, hint)

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return def
	case "y", "yes":
		return true
	default:
		return false
	}
}

// MinDuration returns the smaller of a and b.
func MinDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// UnixMilli converts t to milliseconds since epoch.
func UnixMilli(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
