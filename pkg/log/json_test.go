// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestUnmarshalLevel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{`0`, Warning},
		{`1`, Info},
		{`2`, Debug},
		{`"warning"`, Warning},
		{`"Info"`, Info},
		{`"WARN"`, Warning},
		{`"DEBUG"`, Debug},
	} {
		var lv Level
		if err := json.Unmarshal([]byte(tc.in), &lv); err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", tc.in, err)
			continue
		}
		if lv != tc.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tc.in, lv, tc.want)
		}
	}
}

func TestUnmarshalLevelRejects(t *testing.T) {
	for _, in := range []string{`3`, `"trace"`, `{}`} {
		var lv Level
		if err := json.Unmarshal([]byte(in), &lv); err == nil {
			t.Errorf("Unmarshal(%s) = %v, want error", in, lv)
		}
	}
	if _, err := json.Marshal(Level(7)); err == nil {
		t.Errorf("Marshal(Level(7)) succeeded, want error")
	}
}

func TestJSONEmitter(t *testing.T) {
	var buf bytes.Buffer
	l := &BasicLogger{Level: Debug, Emitter: JSONEmitter{&Writer{Next: &buf}}}
	l.Warningf("reclaimed %d tables", 2)

	var rec jsonRecord
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output %q is not json: %v", buf.String(), err)
	}
	if rec.Level != Warning {
		t.Errorf("level = %v, want %v", rec.Level, Warning)
	}
	if want := "rvkernel.dev/rvkernel/pkg/log"; rec.Target != want {
		t.Errorf("target = %q, want %q", rec.Target, want)
	}
	if !strings.HasPrefix(rec.Caller, "json_test.go:") {
		t.Errorf("caller = %q, want json_test.go:<line>", rec.Caller)
	}
	if want := "reclaimed 2 tables"; rec.Msg != want {
		t.Errorf("msg = %q, want %q", rec.Msg, want)
	}
	if time.Since(rec.Time) > time.Hour {
		t.Errorf("time = %v, want about now", rec.Time)
	}
	if !strings.Contains(buf.String(), `"level":"warning"`) {
		t.Errorf("output %q does not name the level", buf.String())
	}
}
