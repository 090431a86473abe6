package report

import (
	"bytes"
	"fmt"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"ci-tracker/src/contracts"
	"ci-tracker/src/fetchcache"
)

// Metric names of the textfile.
const (
	MetricStatValue        = "ci_tracker_stat_value"
	MetricStatDesiredValue = "ci_tracker_stat_desired_value"
	MetricRankedTests      = "ci_tracker_ranked_tests"
	MetricTestWeight       = "ci_tracker_test_weight"
	MetricOwnerRankedTests = "ci_tracker_owner_ranked_tests"
	MetricWeeklyBlockers   = "ci_tracker_weekly_green_blockers"
	MetricGeneratedAt      = "ci_tracker_snapshot_generated_timestamp_seconds"
)

// MetricsTopTests bounds the per-test weight series.
const MetricsTopTests = 25

type labels map[string]string

func gauge(value float64, l labels) *dto.Metric {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)

	m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(value)}}
	for _, name := range names {
		m.Label = append(m.Label, &dto.LabelPair{Name: proto.String(name), Value: proto.String(l[name])})
	}
	return m
}

func family(name, help string, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: metrics,
	}
}

// MetricFamilies converts a snapshot to gauges. Families without samples are
// left out.
func MetricFamilies(snap *contracts.Snapshot) []*dto.MetricFamily {
	var values, desired []*dto.Metric
	for _, s := range snap.Stats {
		l := labels{"stat": s.Key, "unit": s.Unit}
		values = append(values, gauge(s.Value, l))
		desired = append(desired, gauge(s.DesiredValue, l))
	}

	var weights []*dto.Metric
	perOwner := map[string]int{}
	for i, t := range snap.FailedTests {
		perOwner[t.Owner]++
		if i < MetricsTopTests {
			weights = append(weights, gauge(t.Weight, labels{"test": t.Name, "owner": t.Owner}))
		}
	}
	owners := make([]string, 0, len(perOwner))
	for o := range perOwner {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	var byOwner []*dto.Metric
	for _, o := range owners {
		byOwner = append(byOwner, gauge(float64(perOwner[o]), labels{"owner": o}))
	}

	families := []*dto.MetricFamily{
		family(MetricGeneratedAt, "Commit time of the newest commit in the snapshot window.",
			gauge(float64(snap.GeneratedAt.Unix()), nil)),
		family(MetricRankedTests, "Number of tests with a positive weight.",
			gauge(float64(len(snap.FailedTests)), nil)),
		family(MetricStatValue, "Fleet health stat.", values...),
		family(MetricStatDesiredValue, "Target value of a fleet health stat.", desired...),
		family(MetricTestWeight, "Weight of the heaviest ranked tests.", weights...),
		family(MetricOwnerRankedTests, "Ranked tests per owner.", byOwner...),
	}
	if len(snap.WeeklyGreenMetric) > 0 {
		latest := snap.WeeklyGreenMetric[0]
		families = append(families, family(MetricWeeklyBlockers, "Release blockers in the latest weekly green report.",
			gauge(float64(latest.NumOfBlockers), labels{"date": latest.Date})))
	}

	out := families[:0]
	for _, f := range families {
		if len(f.Metric) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// EncodeMetrics renders the snapshot gauges in the text exposition format.
func EncodeMetrics(snap *contracts.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	for _, f := range MetricFamilies(snap) {
		if _, err := expfmt.MetricFamilyToText(&buf, f); err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// WriteMetrics replaces path with the snapshot gauges.
func WriteMetrics(path string, snap *contracts.Snapshot) error {
	data, err := EncodeMetrics(snap)
	if err != nil {
		return err
	}
	if err := fetchcache.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
