package logger

import (
	"sort"
	"sync"
	"sync/atomic"
)

type componentStat struct {
	warns  int64
	errors int64
}

// ComponentCounts is the number of warnings and errors one component logged.
type ComponentCounts struct {
	Warns  int64 `json:"warns"`
	Errors int64 `json:"errors"`
}

var components sync.Map // map[string]*componentStat

func statFor(component string) *componentStat {
	v, _ := components.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&statFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&statFor(component).errors, 1)
}

// Report returns the warn/error counters per component since the last reset.
func Report() map[string]ComponentCounts {
	out := make(map[string]ComponentCounts)
	components.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		out[k.(string)] = ComponentCounts{
			Warns:  atomic.LoadInt64(&cs.warns),
			Errors: atomic.LoadInt64(&cs.errors),
		}
		return true
	})
	return out
}

// ResetReport clears all counters. The job calls it at the start of every run.
func ResetReport() {
	components.Range(func(k, _ any) bool {
		components.Delete(k)
		return true
	})
}

// LogReport writes the counters as a single "run report" line and returns the
// total number of warnings and errors.
func LogReport(entry *Entry) (warns, errs int64) {
	counts := Report()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	perComponent := make(map[string]ComponentCounts, len(counts))
	for _, name := range names {
		c := counts[name]
		warns += c.Warns
		errs += c.Errors
		perComponent[name] = c
	}

	entry.WithFields(Fields{
		"warns":      warns,
		"errors":     errs,
		"components": perComponent,
	}).Info("run report")
	return warns, errs
}
