/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestSetLevel(t *testing.T) {
	defer Init(os.Stderr, "info")

	for name, want := range levelMapping {
		if err := SetLevel(name); err != nil {
			t.Fatalf("SetLevel(%q) error = %v", name, err)
		}
		if got := Level(); got != want {
			t.Fatalf("Level() = %v, want %v", got, want)
		}
	}
	if err := SetLevel("verbose"); err == nil {
		t.Fatalf("SetLevel(verbose) error = nil, want error")
	}
}

func TestLevelFiltering(t *testing.T) {
	defer Init(os.Stderr, "info")

	buf := &bytes.Buffer{}
	Init(buf, "warning")
	Info("hidden %d", 1)
	Warning("shown %d", 2)
	Error("shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message written at warning level: %q", out)
	}
	if !strings.Contains(out, WarningPrefix+"shown 2") || !strings.Contains(out, ErrorPrefix+"shown 3") {
		t.Fatalf("missing messages: %q", out)
	}
	if !strings.HasPrefix(out, LogPrefix) {
		t.Fatalf("output %q does not start with %q", out, LogPrefix)
	}
}
