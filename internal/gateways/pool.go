package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimasrn/sms-credits/pkg/logger"
	"github.com/nimasrn/sms-credits/pkg/prom"
	"github.com/valyala/fasthttp"
)

var (
	// ErrUpstream wraps every failure talking to a payment or messaging
	// provider. Callers surface it unchanged and never retry it themselves.
	ErrUpstream             = errors.New("upstream gateway error")
	ErrNoAvailableProviders = fmt.Errorf("%w: no available providers", ErrUpstream)
)

// UpstreamError carries what the provider answered, for logging.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("upstream %s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstream, e.Err}
	}
	return []error{ErrUpstream}
}

type ProviderMetrics struct {
	TotalRequests    atomic.Int64
	SuccessfulReqs   atomic.Int64
	FailedReqs       atomic.Int64
	TotalLatencyMs   atomic.Int64
	LastLatencyMs    atomic.Int64
	ConsecutiveFails atomic.Int32
	LastErrorTime    atomic.Int64
	LastSuccessTime  atomic.Int64

	mu             sync.RWMutex
	latencyHistory []int64 // last N latencies for percentile calculation
	maxHistorySize int
}

func NewProviderMetrics() *ProviderMetrics {
	return &ProviderMetrics{
		latencyHistory: make([]int64, 0, 100),
		maxHistorySize: 100,
	}
}

func (m *ProviderMetrics) RecordSuccess(latencyMs int64) {
	m.TotalRequests.Add(1)
	m.SuccessfulReqs.Add(1)
	m.TotalLatencyMs.Add(latencyMs)
	m.LastLatencyMs.Store(latencyMs)
	m.ConsecutiveFails.Store(0)
	m.LastSuccessTime.Store(time.Now().Unix())

	m.mu.Lock()
	if len(m.latencyHistory) >= m.maxHistorySize {
		m.latencyHistory = m.latencyHistory[1:]
	}
	m.latencyHistory = append(m.latencyHistory, latencyMs)
	m.mu.Unlock()
}

func (m *ProviderMetrics) RecordFailure() {
	m.TotalRequests.Add(1)
	m.FailedReqs.Add(1)
	m.ConsecutiveFails.Add(1)
	m.LastErrorTime.Store(time.Now().Unix())
}

func (m *ProviderMetrics) AvgLatencyMs() int64 {
	ok := m.SuccessfulReqs.Load()
	if ok == 0 {
		return 0
	}
	return m.TotalLatencyMs.Load() / ok
}

func (m *ProviderMetrics) SuccessRate() float64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 1.0
	}
	return float64(m.SuccessfulReqs.Load()) / float64(total)
}

func (m *ProviderMetrics) P95LatencyMs() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencyHistory) == 0 {
		return 0
	}

	sorted := make([]int64, len(m.latencyHistory))
	copy(sorted, m.latencyHistory)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type ProviderState int

const (
	StateHealthy ProviderState = iota
	StateDegraded
	StateCircuitOpen
)

func (s ProviderState) String() string {
	switch s {
	case StateHealthy:
		return "HEALTHY"
	case StateDegraded:
		return "DEGRADED"
	case StateCircuitOpen:
		return "CIRCUIT_OPEN"
	default:
		return "UNKNOWN"
	}
}

type Provider struct {
	name             string
	url              string
	client           *fasthttp.Client
	metrics          *ProviderMetrics
	state            atomic.Int32
	weight           atomic.Int32
	circuitOpenUntil atomic.Int64
}

func NewProvider(name, url string, weight int, client *fasthttp.Client) *Provider {
	p := &Provider{
		name:    name,
		url:     url,
		client:  client,
		metrics: NewProviderMetrics(),
	}
	p.state.Store(int32(StateHealthy))
	p.weight.Store(int32(weight))
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) GetState() ProviderState {
	return ProviderState(p.state.Load())
}

func (p *Provider) SetState(state ProviderState) {
	p.state.Store(int32(state))
}

// IsAvailable reports false only while the circuit is open. Once the open
// window passes the provider is let through again as degraded.
func (p *Provider) IsAvailable() bool {
	if p.GetState() != StateCircuitOpen {
		return true
	}
	if time.Now().UnixNano() > p.circuitOpenUntil.Load() {
		p.SetState(StateDegraded)
		return true
	}
	return false
}

// CalculateScore ranks providers; higher is better.
func (p *Provider) CalculateScore() float64 {
	if !p.IsAvailable() {
		return 0.0
	}

	successScore := p.metrics.SuccessRate() * 100

	// 0ms = 100 points, 5000ms+ = 0 points
	latencyScore := 100.0
	if avg := p.metrics.AvgLatencyMs(); avg > 0 {
		latencyScore = 100.0 * (1.0 - float64(avg)/5000.0)
		if latencyScore < 0 {
			latencyScore = 0
		}
	}

	recentPenalty := 1.0 - float64(p.metrics.ConsecutiveFails.Load())*0.1
	if recentPenalty < 0.1 {
		recentPenalty = 0.1
	}

	statePenalty := 1.0
	if p.GetState() == StateDegraded {
		statePenalty = 0.5
	}

	return (successScore*0.4 + latencyScore*0.4 + float64(p.weight.Load())*0.2) * recentPenalty * statePenalty
}

type PoolConfig struct {
	// Name labels metrics and logs, e.g. "mpesa" or "sms".
	Name                    string
	Providers               []ProviderConfig
	Timeout                 time.Duration
	MaxConns                int
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
	EvaluateInterval        time.Duration
	// Dial overrides the network dialer; tests use in-memory listeners.
	Dial fasthttp.DialFunc
}

type ProviderConfig struct {
	Name   string
	URL    string
	Weight int // base priority weight (1-100)
}

// Request is one provider call. Path is appended to the provider base URL.
type Request struct {
	Method      string
	Path        string
	ContentType string
	Headers     map[string]string
	Body        []byte
}

// Pool sends each request to the best scoring provider. It makes exactly one
// attempt: payment initiation must never be sent twice behind the caller's
// back.
type Pool struct {
	config    PoolConfig
	providers []*Provider
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewPool(config PoolConfig) (*Pool, error) {
	if len(config.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = 5
	}
	if config.CircuitBreakerTimeout <= 0 {
		config.CircuitBreakerTimeout = 30 * time.Second
	}
	if config.EvaluateInterval <= 0 {
		config.EvaluateInterval = 30 * time.Second
	}

	pool := &Pool{
		config: config,
		stopCh: make(chan struct{}),
	}

	for _, pc := range config.Providers {
		if pc.URL == "" {
			continue
		}
		httpClient := &fasthttp.Client{
			Name:                config.Name,
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			Dial:                config.Dial,
		}
		pool.providers = append(pool.providers, NewProvider(pc.Name, pc.URL, pc.Weight, httpClient))
		logger.Info("provider initialized", "pool", config.Name, "name", pc.Name, "url", pc.URL, "weight", pc.Weight)
	}
	if len(pool.providers) == 0 {
		return nil, errors.New("at least one provider url is required")
	}

	pool.wg.Add(1)
	go pool.evaluator()

	return pool, nil
}

// SelectBestProvider returns the available provider with the highest score.
func (p *Pool) SelectBestProvider() (*Provider, error) {
	var best *Provider
	bestScore := -1.0

	for _, provider := range p.providers {
		if !provider.IsAvailable() {
			continue
		}
		if score := provider.CalculateScore(); score > bestScore {
			bestScore = score
			best = provider
		}
	}

	if best == nil {
		return nil, ErrNoAvailableProviders
	}
	return best, nil
}

// Do performs req against the best provider and returns the response body of
// a 2xx answer. Anything else is an *UpstreamError.
func (p *Pool) Do(ctx context.Context, req *Request) ([]byte, error) {
	provider, err := p.SelectBestProvider()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	body, status, err := p.do(ctx, provider, req)
	elapsed := time.Since(start)

	result := "ok"
	switch {
	case err != nil || status >= 500:
		provider.metrics.RecordFailure()
		p.checkCircuitBreaker(provider)
		result = "error"
	default:
		provider.metrics.RecordSuccess(elapsed.Milliseconds())
	}
	prom.GatewayCall(p.config.Name, result, elapsed.Seconds())

	if err != nil {
		return nil, &UpstreamError{Provider: provider.name, Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &UpstreamError{Provider: provider.name, StatusCode: status, Body: string(body)}
	}
	return body, nil
}

func (p *Pool) do(ctx context.Context, provider *Provider, r *Request) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(provider.url + r.Path)
	req.Header.SetMethod(r.Method)
	if r.ContentType != "" {
		req.Header.SetContentType(r.ContentType)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.Body != nil {
		req.SetBody(r.Body)
	}

	deadline := time.Now().Add(p.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := provider.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, 0, err
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, resp.StatusCode(), nil
}

func (p *Pool) checkCircuitBreaker(provider *Provider) {
	fails := provider.metrics.ConsecutiveFails.Load()
	if fails < int32(p.config.CircuitBreakerThreshold) {
		return
	}
	provider.SetState(StateCircuitOpen)
	provider.circuitOpenUntil.Store(time.Now().Add(p.config.CircuitBreakerTimeout).UnixNano())
	logger.Warn("circuit breaker opened", "pool", p.config.Name, "provider", provider.name, "consecutive_fails", fails)
}

func (p *Pool) evaluator() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.EvaluateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evaluateProviders()
		case <-p.stopCh:
			return
		}
	}
}

// evaluateProviders demotes slow or failing providers and promotes recovered
// ones.
func (p *Pool) evaluateProviders() {
	for _, provider := range p.providers {
		if provider.GetState() == StateCircuitOpen {
			continue
		}

		successRate := provider.metrics.SuccessRate()
		avgLatency := provider.metrics.AvgLatencyMs()

		if successRate < 0.8 || avgLatency > 5000 {
			if provider.GetState() != StateDegraded {
				provider.SetState(StateDegraded)
				logger.Warn("provider degraded", "pool", p.config.Name, "provider", provider.name, "success_rate", successRate, "avg_latency_ms", avgLatency)
			}
		} else if successRate > 0.95 && avgLatency < 2000 && provider.GetState() != StateHealthy {
			provider.SetState(StateHealthy)
			logger.Info("provider recovered", "pool", p.config.Name, "provider", provider.name)
		}
	}
}

type ProviderStats struct {
	Name             string  `json:"name"`
	State            string  `json:"state"`
	Score            float64 `json:"score"`
	TotalRequests    int64   `json:"total_requests"`
	FailedReqs       int64   `json:"failed_requests"`
	SuccessRate      float64 `json:"success_rate"`
	AvgLatencyMs     int64   `json:"avg_latency_ms"`
	P95LatencyMs     int64   `json:"p95_latency_ms"`
	ConsecutiveFails int32   `json:"consecutive_fails"`
}

// Stats returns per-provider statistics, best score first.
func (p *Pool) Stats() []ProviderStats {
	stats := make([]ProviderStats, 0, len(p.providers))
	for _, provider := range p.providers {
		stats = append(stats, ProviderStats{
			Name:             provider.name,
			State:            provider.GetState().String(),
			Score:            provider.CalculateScore(),
			TotalRequests:    provider.metrics.TotalRequests.Load(),
			FailedReqs:       provider.metrics.FailedReqs.Load(),
			SuccessRate:      provider.metrics.SuccessRate(),
			AvgLatencyMs:     provider.metrics.AvgLatencyMs(),
			P95LatencyMs:     provider.metrics.P95LatencyMs(),
			ConsecutiveFails: provider.metrics.ConsecutiveFails.Load(),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Score > stats[j].Score })
	return stats
}

func (p *Pool) Close() error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	return nil
}

// InmemoryDialer adapts a listener's Dial method to fasthttp.DialFunc.
func InmemoryDialer(dial func() (net.Conn, error)) fasthttp.DialFunc {
	return func(string) (net.Conn, error) { return dial() }
}
