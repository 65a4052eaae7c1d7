// Package summary reduces a stream of run results to per-metric statistics
// for each benchmark and variant.
package summary

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/weiihann/sirun/metric"
)

// Keys read from each run result and written to the summary.
const (
	KeyName       = "name"
	KeyVariant    = "variant"
	KeyIterations = "iterations"
	KeySummary    = "summary"
)

type group struct {
	// extra holds the pass-through keys of the latest record.
	extra *metric.Map

	keys []string
	obs  map[string][]float64
}

// Summarizer accumulates run results. Results sharing a name and variant
// are pooled into one set of observations per metric.
type Summarizer struct {
	names    []string
	variants map[string][]string
	groups   map[string]*group
}

// New creates an empty Summarizer.
func New() *Summarizer {
	return &Summarizer{
		variants: make(map[string][]string),
		groups:   make(map[string]*group),
	}
}

// Add folds one JSON-encoded run result into s. It reports false and leaves
// s unchanged when the line is not a run result with a string name, a
// string variant and a sequence of iterations.
func (s *Summarizer) Add(line []byte) bool {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false
	}

	rec, err := metric.DecodeRecord(line)
	if err != nil {
		return false
	}

	name, ok := stringField(rec, KeyName)
	if !ok {
		return false
	}

	variant, ok := stringField(rec, KeyVariant)
	if !ok {
		return false
	}

	v, _ := rec.Get(KeyIterations)
	iterations, ok := v.AsSequence()
	if !ok {
		return false
	}

	rec.Delete(KeyName)
	rec.Delete(KeyVariant)
	rec.Delete(KeyIterations)

	g := s.group(name, variant)
	g.extra = rec

	for _, it := range iterations {
		m, ok := it.AsMap()
		if !ok {
			continue
		}

		m.Range(func(k string, v metric.Value) bool {
			n, ok := v.AsNumber()
			if !ok {
				return true
			}

			if _, seen := g.obs[k]; !seen {
				g.keys = append(g.keys, k)
			}
			g.obs[k] = append(g.obs[k], n)

			return true
		})
	}

	return true
}

func (s *Summarizer) group(name, variant string) *group {
	id := name + "\x00" + variant

	if g, ok := s.groups[id]; ok {
		return g
	}

	if _, ok := s.variants[name]; !ok {
		s.names = append(s.names, name)
	}
	s.variants[name] = append(s.variants[name], variant)

	g := &group{obs: make(map[string][]float64)}
	s.groups[id] = g

	return g
}

// Result returns the summary document: name, then variant, then the
// pass-through keys plus the summary of every numeric metric.
func (s *Summarizer) Result() *metric.Map {
	out := metric.NewMap()

	for _, name := range s.names {
		byVariant := metric.NewMap()

		for _, variant := range s.variants[name] {
			g := s.groups[name+"\x00"+variant]

			stats := metric.NewMap()
			for _, k := range g.keys {
				stats.Set(k, metric.FromMap(Compute(g.obs[k]).Map()))
			}

			entry := g.extra.Clone()
			entry.Set(KeySummary, metric.FromMap(stats))

			byVariant.Set(variant, metric.FromMap(entry))
		}

		out.Set(name, metric.FromMap(byVariant))
	}

	return out
}

// Summarize reads newline-delimited run results from r until EOF. Lines that
// are not run results are skipped.
func Summarize(r io.Reader) (*metric.Map, error) {
	s := New()
	br := bufio.NewReader(r)

	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			s.Add(line)
		}

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read results: %w", err)
		}
	}

	return s.Result(), nil
}

// Write writes m to w as indented JSON.
func Write(w io.Writer, m *metric.Map) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(m)
}

func stringField(m *metric.Map, key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}

	return v.AsString()
}
