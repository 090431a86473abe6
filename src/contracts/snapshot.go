package contracts

import "time"

// TopicSnapshots carries every published Snapshot.
// Key: snapshot ID
const TopicSnapshots = "ci_tracker.snapshots"

// Snapshot is the output document of one analysis run. Renderers, the MCP
// server and the terminal viewer all read it.
type Snapshot struct {
	ID                string              `json:"id"`
	GeneratedAt       time.Time           `json:"generated_at"`
	FailedTests       []FailedTest        `json:"failed_tests"`
	Stats             []StatItem          `json:"stats"`
	WeeklyGreenMetric []WeeklyGreenMetric `json:"weekly_green_metric"`
	TestOwners        []string            `json:"test_owners"`
	TableStat         TableStat           `json:"table_stat"`
}

// FailedTest is one entry of the ranked list.
type FailedTest struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	// StatusSegmentBar has one tooltip per commit in the window, newest first.
	StatusSegmentBar []CommitTooltip `json:"status_segment_bar"`
	CILinks          []CILink        `json:"travis_links"`
	// BuildTimeStats holds the 0th, 50th and 90th duration percentiles in seconds.
	BuildTimeStats []float64 `json:"build_time_stats"`
	IsLabeledFlaky bool      `json:"is_labeled_flaky"`
	Owner          string    `json:"owner"`
}

// CILink points at one failing or flaky job of a test.
type CILink struct {
	SHAShort      string `json:"sha_short"`
	SHA           string `json:"sha"`
	CommitTime    int64  `json:"commit_time"`
	CommitMessage string `json:"commit_message"`
	BuildEnv      string `json:"build_env"`
	JobURL        string `json:"job_url"`
	OS            string `json:"os"`
	Status        Status `json:"status"`
}

// CommitTooltip summarizes one test at one commit. The counts are nil when the
// test has no rows at that commit.
type CommitTooltip struct {
	SHA          string `json:"sha"`
	NumFailed    *int   `json:"num_failed"`
	NumFlaky     *int   `json:"num_flaky"`
	Message      string `json:"message"`
	AuthorAvatar string `json:"author_avatar"`
	CommitURL    string `json:"commit_url"`
}

// StatItem is one fleet-wide health number.
type StatItem struct {
	Key          string  `json:"key"`
	Unit         string  `json:"unit"`
	Value        float64 `json:"value"`
	DesiredValue float64 `json:"desired_value"`
}

// WeeklyGreenMetric counts release blockers reported on one day.
type WeeklyGreenMetric struct {
	Date          string `json:"date"`
	NumOfBlockers int    `json:"num_of_blockers"`
}

// TableStat is the per-owner pass rate table, laid out for a data grid.
type TableStat struct {
	DataSource []map[string]string `json:"dataSource"`
	Columns    []TableColumn       `json:"columns"`
}

// TableColumn describes one column of TableStat.
type TableColumn struct {
	Title     string `json:"title"`
	DataIndex string `json:"dataIndex"`
	Key       string `json:"key"`
}

// FindTest returns the ranked entry for name.
func (s *Snapshot) FindTest(name string) (FailedTest, bool) {
	for _, t := range s.FailedTests {
		if t.Name == name {
			return t, true
		}
	}
	return FailedTest{}, false
}

// History characters, one per commit.
const (
	HistoryFailed = 'F'
	HistoryFlaky  = 'f'
	HistoryPassed = '.'
	HistoryNoRun  = '_'
)

// History renders the status segment bar as one character per commit,
// newest first: F failed, f flaky, . ran without failing, _ did not run.
func (t FailedTest) History() string {
	b := make([]byte, 0, len(t.StatusSegmentBar))
	for _, tip := range t.StatusSegmentBar {
		switch {
		case tip.NumFailed == nil:
			b = append(b, HistoryNoRun)
		case *tip.NumFailed > 0:
			b = append(b, HistoryFailed)
		case tip.NumFlaky != nil && *tip.NumFlaky > 0:
			b = append(b, HistoryFlaky)
		default:
			b = append(b, HistoryPassed)
		}
	}
	return string(b)
}
