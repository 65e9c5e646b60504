package prom

import (
	"fmt"
	"sync"

	xhttp "github.com/nimasrn/sms-credits/pkg/http"
	"github.com/nimasrn/sms-credits/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemPayments = "payments"
	SystemDispatch = "dispatch"
	SystemGateway  = "gateway"
	SystemInbox    = "inbox"
)

const (
	MetricPaymentsInitiated   = "initiated_total"
	MetricCallbacks           = "callbacks_total"
	MetricCreditsGranted      = "credits_granted_total"
	MetricSweeperTransitions  = "sweeper_transitions_total"
	MetricDispatchRecipients  = "recipients_total"
	MetricCreditsSpent        = "credits_spent_total"
	MetricDispatchUnbilled    = "unbilled_total"
	MetricGatewayCallDuration = "call_duration_seconds"
	MetricInboxReplayDuration = "replay_duration_seconds"
)

const (
	TypeCounter      = "counter"
	TypeCounterVec   = "counterVec"
	TypeHistogram    = "histogram"
	TypeHistogramVec = "histogramVec"
	TypeGaugeVec     = "gaugeVec"
)

var (
	mu        sync.RWMutex
	namespace = "none"
	enabled   bool
	registry  prometheus.Registerer = prometheus.DefaultRegisterer

	counters      = make(map[string]prometheus.Counter)
	counterVecs   = make(map[string]*prometheus.CounterVec)
	gaugeVecs     = make(map[string]*prometheus.GaugeVec)
	histograms    = make(map[string]prometheus.Histogram)
	histogramVecs = make(map[string]*prometheus.HistogramVec)

	defaultLabels prometheus.Labels
)

// Create registers the service metrics. Until it is called every helper
// below is a no-op.
func Create(host string, env string, nameSpace string) error {
	return CreateWithRegistry(prometheus.DefaultRegisterer, host, env, nameSpace)
}

func CreateWithRegistry(reg prometheus.Registerer, host, env, nameSpace string) error {
	mu.Lock()
	registry = reg
	defaultLabels = prometheus.Labels{"env": env, "instance": host}
	namespace = nameSpace
	mu.Unlock()

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(CreateMetric(TypeCounterVec, SystemPayments, MetricPaymentsInitiated, "kind", "result"))
	hasError(CreateMetric(TypeCounterVec, SystemPayments, MetricCallbacks, "outcome"))
	hasError(CreateMetric(TypeCounter, SystemPayments, MetricCreditsGranted))
	hasError(CreateMetric(TypeCounterVec, SystemPayments, MetricSweeperTransitions, "status"))

	hasError(CreateMetric(TypeCounterVec, SystemDispatch, MetricDispatchRecipients, "status"))
	hasError(CreateMetric(TypeCounter, SystemDispatch, MetricCreditsSpent))
	hasError(CreateMetric(TypeCounter, SystemDispatch, MetricDispatchUnbilled))

	hasError(CreateMetric(TypeHistogramVec, SystemGateway, MetricGatewayCallDuration, "gateway", "result"))
	hasError(CreateMetric(TypeHistogramVec, SystemInbox, MetricInboxReplayDuration, "result"))

	mu.Lock()
	enabled = err == nil
	mu.Unlock()
	return err
}

func CreateMetric(metricType, subsystem, name string, labels ...string) error {
	mu.Lock()
	defer mu.Unlock()

	ns, sub, n, cl := namespace, subsystem, name, defaultLabels
	key := subsystem + name

	var c prometheus.Collector
	switch metricType {
	case TypeCounter:
		m := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: n, ConstLabels: cl})
		counters[key], c = m, m
	case TypeCounterVec:
		m := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: n, ConstLabels: cl}, labels)
		counterVecs[key], c = m, m
	case TypeHistogram:
		m := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: ns, Subsystem: sub, Name: n, ConstLabels: cl, Buckets: prometheus.DefBuckets})
		histograms[key], c = m, m
	case TypeHistogramVec:
		m := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Subsystem: sub, Name: n, ConstLabels: cl, Buckets: prometheus.DefBuckets}, labels)
		histogramVecs[key], c = m, m
	case TypeGaugeVec:
		m := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Subsystem: sub, Name: n, ConstLabels: cl}, labels)
		gaugeVecs[key], c = m, m
	default:
		return fmt.Errorf("metric type %s is not defined", metricType)
	}
	return registry.Register(c)
}

func ListenAndServer(port string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "url", url)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func IncCounter(subsystem, name string) {
	AddCounter(subsystem, name, 1)
}

func AddCounter(subsystem, name string, number float64) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := counters[subsystem+name]; ok {
		v.Add(number)
		return
	}
	logger.Warn("[metrics-server] counter not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := counterVecs[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func AddGaugeVec(subsystem, name string, num float64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := gaugeVecs[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] gauge not found", "subsystem", subsystem, "name", name)
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := histogramVecs[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}

func PaymentInitiated(kind, result string) {
	IncCounterVec(SystemPayments, MetricPaymentsInitiated, kind, result)
}

func CallbackReconciled(outcome string) {
	IncCounterVec(SystemPayments, MetricCallbacks, outcome)
}

func CreditsGranted(n uint) {
	AddCounter(SystemPayments, MetricCreditsGranted, float64(n))
}

func SweeperTransition(status string) {
	IncCounterVec(SystemPayments, MetricSweeperTransitions, status)
}

func DispatchRecipient(status string, n int) {
	AddCounterVec(SystemDispatch, MetricDispatchRecipients, float64(n), status)
}

func CreditsSpent(n uint) {
	AddCounter(SystemDispatch, MetricCreditsSpent, float64(n))
}

func DispatchUnbilled() {
	IncCounter(SystemDispatch, MetricDispatchUnbilled)
}

func GatewayCall(gateway, result string, seconds float64) {
	AddHistogramVec(SystemGateway, MetricGatewayCallDuration, seconds, gateway, result)
}

func InboxEntry(result string, seconds float64) {
	AddHistogramVec(SystemInbox, MetricInboxReplayDuration, seconds, result)
}
