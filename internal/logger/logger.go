// This file is part of mipsmatch.
//
// mipsmatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// mipsmatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with mipsmatch.  If not, see <https://www.gnu.org/licenses/>.

// Package logger is a small, process-global log used to report
// non-fatal diagnostics (skipped segments, failed fingerprint
// verifications) without interrupting a batch run.
//
// Entries are kept in a bounded ring so a long scan cannot grow the log
// without limit. Entries may additionally be echoed to an io.Writer as
// they are logged, which the CLI uses for its -log flag.
package logger

import (
	"fmt"
	"io"
	"sync"
)

const maxEntries = 1000

type entry struct {
	tag     string
	message string
}

func (e entry) String() string {
	return fmt.Sprintf("%s: %s\n", e.tag, e.message)
}

var (
	crit    sync.Mutex
	entries []entry

	echo       io.Writer
	echoActive bool
)

// SetEcho directs subsequent log entries to w as they are recorded, in
// addition to the normal ring buffer. Passing active as false disables
// echoing regardless of w.
func SetEcho(w io.Writer, active bool) {
	crit.Lock()
	defer crit.Unlock()
	echo = w
	echoActive = active
}

// Log records a single log entry under tag.
func Log(tag string, message string) {
	record(tag, message)
}

// Logf records a single log entry under tag, formatting message the way
// fmt.Sprintf does.
func Logf(tag string, format string, args ...interface{}) {
	record(tag, fmt.Sprintf(format, args...))
}

func record(tag string, message string) {
	crit.Lock()
	defer crit.Unlock()

	e := entry{tag: tag, message: message}
	entries = append(entries, e)
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}

	if echoActive && echo != nil {
		io.WriteString(echo, e.String())
	}
}

// Write outputs every log entry recorded so far to w.
func Write(w io.Writer) {
	crit.Lock()
	defer crit.Unlock()

	for _, e := range entries {
		io.WriteString(w, e.String())
	}
}

// Tail outputs the most recent n log entries to w. Asking for more
// entries than have been recorded is not an error; Tail simply outputs
// everything it has.
func Tail(w io.Writer, n int) {
	crit.Lock()
	defer crit.Unlock()

	if n > len(entries) {
		n = len(entries)
	}

	for _, e := range entries[len(entries)-n:] {
		io.WriteString(w, e.String())
	}
}

// Clear empties the log. Intended for use by tests.
func Clear() {
	crit.Lock()
	defer crit.Unlock()
	entries = nil
}
