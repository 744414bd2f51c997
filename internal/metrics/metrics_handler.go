package metrics

import (
	"sync"
	"time"

	"activeoi/logger"
)

// Metric is one measurement emitted by a component.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     interface{}
	Type      string
	Fields    logger.Fields
}

// MetricHandler consumes every emitted metric.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registered handler; zero is never issued.
type MetricHandlerID uint64

type handlerRegistry struct {
	mu       sync.RWMutex
	next     MetricHandlerID
	handlers map[MetricHandlerID]MetricHandler
}

var (
	timeNow  = time.Now
	handlers = &handlerRegistry{handlers: make(map[MetricHandlerID]MetricHandler)}
)

func (r *handlerRegistry) add(h MetricHandler) MetricHandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.handlers[r.next] = h
	return r.next
}

func (r *handlerRegistry) remove(id MetricHandlerID) {
	r.mu.Lock()
	delete(r.handlers, id)
	r.mu.Unlock()
}

func (r *handlerRegistry) reset() {
	r.mu.Lock()
	r.handlers = make(map[MetricHandlerID]MetricHandler)
	r.next = 0
	r.mu.Unlock()
}

func (r *handlerRegistry) dispatch(m Metric) {
	r.mu.RLock()
	snapshot := make([]MetricHandler, 0, len(r.handlers))
	for _, h := range r.handlers {
		snapshot = append(snapshot, h)
	}
	r.mu.RUnlock()

	for _, h := range snapshot {
		h(m)
	}
}

// RegisterMetricHandler registers a handler that receives every emitted metric.
// A nil handler is ignored and yields zero.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}
	return handlers.add(handler)
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}
	handlers.remove(id)
}

// recordMetric logs the metric at debug level on log (or the global logger)
// and hands it to the registered handlers. Metrics without a name are dropped.
func recordMetric(log *logger.Entry, component, name string, value interface{}, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" {
		return Metric{}, false
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger().WithComponent(component)
	} else {
		log = log.WithComponent(component)
	}

	userFields := make(logger.Fields, len(fields))
	for k, v := range fields {
		userFields[k] = v
	}

	log.WithFields(userFields).WithFields(logger.Fields{
		"metric":      name,
		"metric_type": metricType,
		"value":       value,
	}).Debug("metric")

	m := Metric{
		Timestamp: timeNow(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    userFields,
	}
	handlers.dispatch(m)
	return m, true
}
