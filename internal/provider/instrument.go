package provider

import (
	"context"
	"time"

	"github.com/specialistvlad/esxigrid/internal/ctxlog"
	"github.com/specialistvlad/esxigrid/internal/metrics"
	"github.com/specialistvlad/esxigrid/internal/property"
)

// Instrument wraps p so every call is logged and recorded in m. A nil m
// disables metrics.
func Instrument(p Provider, m *metrics.Metrics) Provider {
	return &instrumented{next: p, metrics: m}
}

type instrumented struct {
	next    Provider
	metrics *metrics.Metrics
}

func (i *instrumented) observe(ctx context.Context, kind string, op Operation, subject string, start time.Time, err error) {
	elapsed := time.Since(start)
	i.metrics.ObserveProviderCall(kind, string(op), err, elapsed)

	logger := ctxlog.FromContext(ctx)
	if err != nil {
		logger.Debug("Provider call failed.", "kind", kind, "operation", op, "subject", subject, "duration", elapsed, "error", err)
		return
	}
	logger.Debug("Provider call succeeded.", "kind", kind, "operation", op, "subject", subject, "duration", elapsed)
}

func (i *instrumented) Create(ctx context.Context, kind, name string, inputs property.Bag) (string, property.Bag, error) {
	start := time.Now()
	id, outputs, err := i.next.Create(ctx, kind, name, inputs)
	i.observe(ctx, kind, OpCreate, name, start, err)
	return id, outputs, err
}

func (i *instrumented) Read(ctx context.Context, kind, id string) (property.Bag, error) {
	start := time.Now()
	outputs, err := i.next.Read(ctx, kind, id)
	i.observe(ctx, kind, OpRead, id, start, err)
	return outputs, err
}

func (i *instrumented) Update(ctx context.Context, kind, id string, inputs property.Bag) (property.Bag, error) {
	start := time.Now()
	outputs, err := i.next.Update(ctx, kind, id, inputs)
	i.observe(ctx, kind, OpUpdate, id, start, err)
	return outputs, err
}

func (i *instrumented) Delete(ctx context.Context, kind, id string) error {
	start := time.Now()
	err := i.next.Delete(ctx, kind, id)
	i.observe(ctx, kind, OpDelete, id, start, err)
	return err
}

func (i *instrumented) Diff(ctx context.Context, kind, id string, olds, news property.Bag) (Diff, error) {
	start := time.Now()
	d, err := i.next.Diff(ctx, kind, id, olds, news)
	i.observe(ctx, kind, OpDiff, id, start, err)
	return d, err
}

func (i *instrumented) Invoke(ctx context.Context, kind string, args property.Bag) (property.Bag, error) {
	start := time.Now()
	outputs, err := i.next.Invoke(ctx, kind, args)
	i.observe(ctx, kind, OpInvoke, kind, start, err)
	return outputs, err
}
