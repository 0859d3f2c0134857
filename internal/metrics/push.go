// Package metrics pushes the metrics of a run to a prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const JobName = "syncbranches"

// Pusher pushes all metrics of a gatherer to a Pushgateway.
type Pusher struct {
	url      string
	gatherer prometheus.Gatherer
	grouping map[string]string
}

func NewPusher(url string, gatherer prometheus.Gatherer) *Pusher {
	return &Pusher{
		url:      url,
		gatherer: gatherer,
		grouping: map[string]string{},
	}
}

// Grouping adds a grouping label.
// Pushes with different grouping labels do not overwrite each other.
func (p *Pusher) Grouping(name, value string) *Pusher {
	p.grouping[name] = value
	return p
}

// Push replaces all metrics of the job and grouping at the Pushgateway.
func (p *Pusher) Push(ctx context.Context) error {
	pusher := push.New(p.url, JobName).Gatherer(p.gatherer)

	for k, v := range p.grouping {
		pusher = pusher.Grouping(k, v)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s failed: %w", p.url, err)
	}

	return nil
}
