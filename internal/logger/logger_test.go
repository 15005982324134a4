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

package logger_test

import (
	"bytes"
	"testing"

	"github.com/ttkb-oss/mipsmatch/internal/logger"
)

func TestLogger(t *testing.T) {
	logger.Clear()
	defer logger.Clear()

	var buf bytes.Buffer

	logger.Write(&buf)
	if buf.String() != "" {
		t.Fatalf("expected empty log, got %q", buf.String())
	}

	logger.Log("test", "this is a test")
	buf.Reset()
	logger.Write(&buf)
	if got, want := buf.String(), "test: this is a test\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	logger.Log("test2", "this is another test")
	buf.Reset()
	logger.Write(&buf)
	want := "test: this is a test\ntest2: this is another test\n"
	if got := buf.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	buf.Reset()
	logger.Tail(&buf, 100)
	if got := buf.String(); got != want {
		t.Fatalf("tail with excess count: got %q, want %q", got, want)
	}

	buf.Reset()
	logger.Tail(&buf, 1)
	if got, want := buf.String(), "test2: this is another test\n"; got != want {
		t.Fatalf("tail(1): got %q, want %q", got, want)
	}

	buf.Reset()
	logger.Tail(&buf, 0)
	if got := buf.String(); got != "" {
		t.Fatalf("tail(0): got %q, want empty", got)
	}
}

func TestLoggerEcho(t *testing.T) {
	logger.Clear()
	defer logger.Clear()
	defer logger.SetEcho(nil, false)

	var echoed bytes.Buffer
	logger.SetEcho(&echoed, true)

	logger.Logf("scan", "skipping segment %s: %d < %d", "foo", 4, 16)

	if got, want := echoed.String(), "scan: skipping segment foo: 4 < 16\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
