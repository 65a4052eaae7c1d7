package summary

import (
	"fmt"
	"io"
	"strconv"

	"github.com/weiihann/sirun/metric"
)

// WriteTable writes a summary document produced by Result as one markdown
// table per benchmark.
func WriteTable(w io.Writer, doc *metric.Map) error {
	if doc.Len() == 0 {
		return fmt.Errorf("no results to report")
	}

	fmt.Fprintln(w, "## Benchmark Results")

	var err error

	doc.Range(func(name string, v metric.Value) bool {
		byVariant, ok := v.AsMap()
		if !ok {
			err = fmt.Errorf("benchmark %q is not a map", name)
			return false
		}

		fmt.Fprintln(w)
		fmt.Fprintf(w, "### %s\n\n", name)
		fmt.Fprintln(w, "| Variant | Metric | Mean | Stddev | Min | Max |")
		fmt.Fprintln(w, "|---------|--------|------|--------|-----|-----|")

		byVariant.Range(func(variant string, v metric.Value) bool {
			entry, _ := v.AsMap()
			sv, _ := entry.Get(KeySummary)
			stats, _ := sv.AsMap()

			stats.Range(func(key string, v metric.Value) bool {
				s, _ := v.AsMap()

				fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s |\n",
					variant,
					key,
					formatNumber(s, "mean"),
					formatPct(s),
					formatNumber(s, "min"),
					formatNumber(s, "max"),
				)

				return true
			})

			return true
		})

		return true
	})

	return err
}

func formatNumber(s *metric.Map, key string) string {
	v, _ := s.Get(key)

	n, ok := v.AsNumber()
	if !ok {
		return "-"
	}

	return strconv.FormatFloat(n, 'f', 2, 64)
}

func formatPct(s *metric.Map) string {
	v, _ := s.Get("stddev_pct")

	n, ok := v.AsNumber()
	if !ok {
		return "-"
	}

	return "±" + strconv.FormatFloat(n, 'f', 1, 64) + "%"
}
