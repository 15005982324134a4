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

package elfsym_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ttkb-oss/mipsmatch/internal/elfsym"
	"github.com/ttkb-oss/mipsmatch/internal/mipserr"
)

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-an-elf.bin")
	if err := os.WriteFile(path, []byte("this is not an ELF file"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := elfsym.Load(path)
	if err == nil {
		t.Fatalf("expected an error for a malformed ELF")
	}
	if !mipserr.IsAny(err) {
		t.Fatalf("expected a curated mipsmatch error, got %v", err)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := elfsym.Load(filepath.Join(t.TempDir(), "does-not-exist.elf"))
	if err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
