package logger

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

var wrapperPackages = []string{
	"github.com/sirupsen/logrus",
	reflect.TypeOf(callerHook{}).PkgPath(),
}

// callerHook reports the first frame outside logrus and this package, so the
// caller field names the component that logged rather than the Entry wrapper.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isWrapperFrame(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func isWrapperFrame(fn string) bool {
	for _, pkg := range wrapperPackages {
		if strings.HasPrefix(fn, pkg+".") || strings.HasPrefix(fn, pkg+"/") {
			return true
		}
	}
	return false
}
