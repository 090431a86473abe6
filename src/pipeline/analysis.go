package pipeline

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"ci-tracker/src/broker"
	"ci-tracker/src/contracts"
	"ci-tracker/src/ranking"
	"ci-tracker/src/report"
	"ci-tracker/src/store"
)

// Analyze scores the ledger read from src.
func (p *Pipeline) Analyze(ctx context.Context, src ranking.Source, weekly []contracts.WeeklyGreenMetric) (*contracts.Snapshot, error) {
	l, err := ranking.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	snap := ranking.BuildSnapshot(l, weekly)
	p.log.Info("[Pipeline] ranked %d tests over %d commits", len(snap.FailedTests), len(l.Commits))
	return snap, nil
}

// WeeklyGreen fetches the weekly green series, or returns nil when no
// source is configured. A failure is logged and yields nil.
func (p *Pipeline) WeeklyGreen(ctx context.Context) []contracts.WeeklyGreenMetric {
	if p.opts.WeeklyGreen == nil {
		return nil
	}
	weekly, err := p.opts.WeeklyGreen(ctx)
	if err != nil {
		p.log.Warn("[Pipeline] weekly green metric unavailable: %v", err)
		return nil
	}
	return weekly
}

// Outputs are the destinations of a snapshot. Empty fields are skipped.
type Outputs struct {
	JSONPath    string
	MetricsPath string
	Broker      broker.Broker
}

// Emit writes snap to every configured output. All outputs are attempted
// and their failures returned together.
func (o Outputs) Emit(ctx context.Context, snap *contracts.Snapshot) error {
	var result *multierror.Error
	if o.JSONPath != "" {
		result = multierror.Append(result, report.WriteJSON(o.JSONPath, snap))
	}
	if o.MetricsPath != "" {
		result = multierror.Append(result, report.WriteMetrics(o.MetricsPath, snap))
	}
	if o.Broker != nil {
		result = multierror.Append(result, broker.PublishSnapshot(ctx, o.Broker, snap))
	}
	return result.ErrorOrNil()
}

// Load downloads the window and loads it into a staged ledger at dsn, which
// is published on success and discarded otherwise.
func (p *Pipeline) Load(ctx context.Context, dsn string) error {
	d, err := p.Download(ctx)
	if err != nil {
		return err
	}
	w, err := store.OpenWriter(ctx, dsn, p.log)
	if err != nil {
		return err
	}
	defer w.Discard(ctx)

	if err := p.ETL(ctx, w, d); err != nil {
		return err
	}
	return w.Publish(ctx)
}

// AnalyzePublished scores the published ledger at dsn and emits the snapshot.
func (p *Pipeline) AnalyzePublished(ctx context.Context, dsn string, out Outputs) (*contracts.Snapshot, error) {
	r, err := store.OpenReader(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	snap, err := p.Analyze(ctx, r, p.WeeklyGreen(ctx))
	if err != nil {
		return nil, err
	}
	if err := out.Emit(ctx, snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// Run is a complete tracker run. The staged ledger is scored before it is
// published, so a run that fails anywhere leaves both the published ledger
// and the previous snapshot in place.
func (p *Pipeline) Run(ctx context.Context, dsn string, out Outputs) (*contracts.Snapshot, error) {
	d, err := p.Download(ctx)
	if err != nil {
		return nil, err
	}

	w, err := store.OpenWriter(ctx, dsn, p.log)
	if err != nil {
		return nil, err
	}
	defer w.Discard(ctx)

	if err := p.ETL(ctx, w, d); err != nil {
		return nil, err
	}
	snap, err := p.Analyze(ctx, w.Reader(), d.WeeklyGreen)
	if err != nil {
		return nil, err
	}
	if err := w.Publish(ctx); err != nil {
		return nil, err
	}
	if err := out.Emit(ctx, snap); err != nil {
		return snap, err
	}
	return snap, nil
}
