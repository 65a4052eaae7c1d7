package summary

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/weiihann/sirun/metric"
)

func lookup(t *testing.T, m *metric.Map, path ...string) metric.Value {
	t.Helper()

	var v metric.Value
	cur := m

	for i, key := range path {
		var ok bool

		v, ok = cur.Get(key)
		if !ok {
			t.Fatalf("key %q missing at %v (have %v)", key, path[:i], cur.Keys())
		}

		if i < len(path)-1 {
			cur, ok = v.AsMap()
			if !ok {
				t.Fatalf("%v is %s, want map", path[:i+1], v.Kind())
			}
		}
	}

	return v
}

func lookupNumber(t *testing.T, m *metric.Map, path ...string) float64 {
	t.Helper()

	n, ok := lookup(t, m, path...).AsNumber()
	if !ok {
		t.Fatalf("%v is not a number", path)
	}

	return n
}

func TestCompute(t *testing.T) {
	s := Compute([]float64{1, 3})

	want := Stats{Mean: 2, StdDev: 1, StdDevPct: 50, Min: 1, Max: 3}
	if s != want {
		t.Errorf("Compute = %+v, want %+v", s, want)
	}
}

func TestComputeZeroMean(t *testing.T) {
	s := Compute([]float64{-1, 1})

	if s.StdDevPct != 0 || math.IsNaN(s.StdDevPct) {
		t.Errorf("StdDevPct = %v, want 0", s.StdDevPct)
	}
	if s.Max != 1 || s.Min != -1 {
		t.Errorf("bounds = [%v, %v], want [-1, 1]", s.Min, s.Max)
	}
}

func TestSummarizePoolsRecords(t *testing.T) {
	input := `{"name":"a","variant":"v","iterations":[{"x":1}]}
{"name":"a","variant":"v","iterations":[{"x":3}]}
`

	doc, err := Summarize(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	tests := map[string]float64{
		"mean": 2, "stddev": 1, "stddev_pct": 50, "min": 1, "max": 3,
	}
	for stat, want := range tests {
		if got := lookupNumber(t, doc, "a", "v", KeySummary, "x", stat); got != want {
			t.Errorf("%s = %v, want %v", stat, got, want)
		}
	}
}

func TestSummarizeSkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		`not json`,
		`{"variant":"v","iterations":[{"x":1}]}`,
		`{"name":"a","iterations":[{"x":1}]}`,
		`{"name":"a","variant":"v"}`,
		`{"name":1,"variant":"v","iterations":[]}`,
		`{"name":"a","variant":"v","iterations":[{"x":5,"label":"str"}]}`,
		``,
	}, "\n")

	doc, err := Summarize(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if got := strings.Join(doc.Keys(), ","); got != "a" {
		t.Fatalf("names = %q, want a", got)
	}

	stats, _ := lookup(t, doc, "a", "v", KeySummary).AsMap()
	if got := strings.Join(stats.Keys(), ","); got != "x" {
		t.Errorf("summarized keys = %q, want only numeric x", got)
	}
	if got := lookupNumber(t, doc, "a", "v", KeySummary, "x", "mean"); got != 5 {
		t.Errorf("mean = %v, want 5", got)
	}
}

func TestSummarizePassthrough(t *testing.T) {
	input := `{"version":"abc","name":"a","variant":"v","iterations":[{"wall.time":10}]}` + "\n" +
		`{"name":"a","variant":"w","iterations":[{"wall.time":20}]}`

	doc, err := Summarize(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	entry, _ := lookup(t, doc, "a", "v").AsMap()
	if got := strings.Join(entry.Keys(), ","); got != "version,summary" {
		t.Errorf("entry keys = %q, want version,summary", got)
	}
	if s, _ := lookup(t, doc, "a", "v", "version").AsString(); s != "abc" {
		t.Errorf("version = %q, want abc", s)
	}

	byVariant, _ := lookup(t, doc, "a").AsMap()
	if got := strings.Join(byVariant.Keys(), ","); got != "v,w" {
		t.Errorf("variants = %q, want v,w", got)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	input := `{"name":"a","variant":"v","iterations":[{"x":1},{"x":3}]}`

	doc, err := Summarize(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, doc); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if !strings.Contains(buf.String(), "\n  \"a\": {") {
		t.Errorf("output is not indented:\n%s", buf.String())
	}

	var back metric.Map
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if _, err := json.Marshal(&back); err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if got := lookupNumber(t, &back, "a", "v", KeySummary, "x", "max"); got != 3 {
		t.Errorf("max = %v, want 3", got)
	}
}

func TestWriteTable(t *testing.T) {
	input := `{"name":"bench","variant":"fast","iterations":[{"wall.time":100},{"wall.time":300}]}`

	doc, err := Summarize(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteTable(&buf, doc); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "### bench") {
		t.Error("expected benchmark heading")
	}
	if !strings.Contains(output, "| fast | wall.time | 200.00 | ±50.0% | 100.00 | 300.00 |") {
		t.Errorf("missing metric row:\n%s", output)
	}
}

func TestWriteTableEmpty(t *testing.T) {
	var buf bytes.Buffer

	if err := WriteTable(&buf, metric.NewMap()); err == nil {
		t.Error("expected error for empty summary")
	}
}

func TestSummarizeKeepsRecordsWithBooleans(t *testing.T) {
	input := `{"name":"a","variant":"v","ci":true,"note":null,"iterations":[{"x":4,"ok":false}]}`

	doc, err := Summarize(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if s, _ := lookup(t, doc, "a", "v", "ci").AsString(); s != "true" {
		t.Errorf("ci = %q, want true", s)
	}
	if got := lookupNumber(t, doc, "a", "v", KeySummary, "x", "mean"); got != 4 {
		t.Errorf("mean = %v, want 4", got)
	}

	stats, _ := lookup(t, doc, "a", "v", KeySummary).AsMap()
	if stats.Has("ok") {
		t.Error("boolean iteration value was summarized")
	}
}
