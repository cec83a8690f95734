package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends the current metric values to a Prometheus Pushgateway under the
// given job name. Batch commands call it once before exiting; an empty url is
// a no-op.
func (m *Metrics) Push(url, job string) error {
	if url == "" {
		return nil
	}
	p := push.New(url, job)
	for _, c := range m.Collectors() {
		p = p.Collector(c)
	}
	if err := p.Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
