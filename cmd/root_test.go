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

package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	root := NewRootCommand(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCompletion(t *testing.T) {
	out, err := run(t, "completion", "zsh")
	if err != nil {
		t.Fatalf("completion zsh error = %v", err)
	}
	if !strings.Contains(out, "go-oscbridge") {
		t.Fatalf("completion output does not name the tool")
	}
	if _, err := run(t, "completion", "tcsh"); err == nil {
		t.Fatalf("completion tcsh succeeded")
	}
}

func TestCommandTree(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})
	for _, path := range [][]string{
		{"control", "start"},
		{"control", "window"},
		{"control", "reg", "write"},
		{"control", "record"},
		{"discover", "scan"},
		{"config", "show"},
	} {
		c, _, err := root.Find(path)
		if err != nil || c.Name() != path[len(path)-1] {
			t.Fatalf("command %v not found: %v", path, err)
		}
	}
}

func TestConfigShow(t *testing.T) {
	if _, err := run(t, "--log-level", "debug", "config", "show"); err != nil {
		t.Fatalf("config show error = %v", err)
	}
}
