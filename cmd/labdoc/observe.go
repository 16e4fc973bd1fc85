package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/scott-cotton/cli"

	"labdoc/internal/core"
)

// observers holds the service options selected by -metrics and -trace and
// the functions that flush them when the command ends.
type observers struct {
	opts  []core.Option
	flush []func() error
}

// metricsKind is -metrics, falling back to LABDOC_METRICS.
func (cfg *MainConfig) metricsKind() string {
	if cfg.Metrics != "" {
		return cfg.Metrics
	}
	return os.Getenv("LABDOC_METRICS")
}

func (cfg *MainConfig) observers() (*observers, error) {
	o := &observers{}
	switch kind := cfg.metricsKind(); kind {
	case "", "none":
		if cfg.MetricsOut != "" {
			return nil, fmt.Errorf("%w: -metrics-out needs -metrics expvar or prometheus", cli.ErrUsage)
		}
	case "expvar":
		rec := core.NewExpvarMetricsRecorder("")
		o.opts = append(o.opts, core.WithMetricsRecorder(rec))
		if out := cfg.MetricsOut; out != "" {
			o.flush = append(o.flush, func() error {
				b, err := json.MarshalIndent(rec.Snapshot(), "", "  ")
				if err != nil {
					return err
				}
				return os.WriteFile(out, append(b, '\n'), 0o644)
			})
		}
	case "prometheus":
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, err
		}
		o.opts = append(o.opts, core.WithMetricsRecorder(rec))
		if out := cfg.MetricsOut; out != "" {
			o.flush = append(o.flush, func() error { return prometheus.WriteToTextfile(out, reg) })
		}
	default:
		return nil, fmt.Errorf("%w: unknown metrics exporter %q, want expvar or prometheus", cli.ErrUsage, kind)
	}
	if cfg.Trace != "" {
		f, err := os.Create(cfg.Trace)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		o.opts = append(o.opts, core.WithTracer(core.NewJSONTracer(f)))
		o.flush = append(o.flush, f.Close)
	}
	return o, nil
}

// close runs every flush function and reports the first failures on stderr.
func (o *observers) close() error {
	var errs []error
	for _, fn := range o.flush {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		glog.Errorf("flush metrics and traces: %v", err)
	}
	return err
}
