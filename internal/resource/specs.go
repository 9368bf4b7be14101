package resource

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// hostSpec is satisfied only on the node whose name equals Host.
type hostSpec struct {
	Host string
	self string
}

func newHostSpec(conf interface{}) (Spec, error) {
	host, ok := conf.(string)
	if !ok {
		return nil, fmt.Errorf("%w: host requires a string node name", errConfigMalformed)
	}
	return &hostSpec{Host: host}, nil
}

// BindSelf tells a hostSpec which node it is evaluating on. The
// evaluator calls this before probing, since Describe() must stay pure
// and stable while Probe() needs to know the local node name.
func (h *hostSpec) BindSelf(self string) { h.self = self }

func (h *hostSpec) Describe() string { return "host:" + h.Host }

func (h *hostSpec) Probe(ctx context.Context) (Fitness, error) {
	if h.self == h.Host {
		return Fitness{Value: 1, Available: true}, nil
	}
	return False, nil
}

// urlSpec probes HTTP reachability. Fitness on success is negative
// latency (less negative is faster, and therefore larger); failure is
// the false sentinel. Grounded on the teacher's HTTPChecker.
type urlSpec struct {
	URL     string
	Method  string
	client  *http.Client
}

func newURLSpec(conf interface{}) (Spec, error) {
	switch v := conf.(type) {
	case string:
		return &urlSpec{URL: v, Method: http.MethodGet, client: &http.Client{Timeout: 5 * time.Second}}, nil
	case map[string]interface{}:
		url, _ := v["get"].(string)
		if url == "" {
			url, _ = v["url"].(string)
		}
		if url == "" {
			return nil, fmt.Errorf("%w: url resource requires a 'get' or 'url' field", errConfigMalformed)
		}
		method := http.MethodGet
		if m, ok := v["method"].(string); ok && m != "" {
			method = m
		}
		return &urlSpec{URL: url, Method: method, client: &http.Client{Timeout: 5 * time.Second}}, nil
	default:
		return nil, fmt.Errorf("%w: url resource requires a string or mapping", errConfigMalformed)
	}
}

func (u *urlSpec) Describe() string { return "url:" + u.Method + ":" + u.URL }

func (u *urlSpec) Probe(ctx context.Context) (Fitness, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, u.Method, u.URL, nil)
	if err != nil {
		return False, err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return False, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return False, nil
	}
	latency := time.Since(start).Seconds()
	return Fitness{Value: -latency, Available: true}, nil
}

// constSpec always returns a fixed fitness; used for blocks with no real
// precondition and for tests.
type constSpec struct {
	key   string
	value float64
	avail bool
}

func newConstSpec(conf interface{}) (Spec, error) {
	switch v := conf.(type) {
	case bool:
		return &constSpec{key: fmt.Sprintf("%v", v), value: 1, avail: v}, nil
	case float64:
		return &constSpec{key: fmt.Sprintf("%v", v), value: v, avail: v != 0}, nil
	case int:
		return &constSpec{key: fmt.Sprintf("%v", v), value: float64(v), avail: v != 0}, nil
	case string:
		return &constSpec{key: v, value: 1, avail: true}, nil
	default:
		return nil, fmt.Errorf("%w: const resource requires a scalar", errConfigMalformed)
	}
}

func (c *constSpec) Describe() string { return "const:" + c.key }

func (c *constSpec) Probe(ctx context.Context) (Fitness, error) {
	if !c.avail {
		return False, nil
	}
	return Fitness{Value: c.value, Available: true}, nil
}
