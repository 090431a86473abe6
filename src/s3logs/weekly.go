package s3logs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"ci-tracker/src/contracts"
)

// WeeklyGreenPrefix is where the release tooling drops one blocker report per run.
const WeeklyGreenPrefix = "ray_weekly_green_metric/blocker_"

// WeeklyGreenLimit is the number of most recent reports returned.
const WeeklyGreenLimit = 200

// WeeklyGreen returns the release blocker counts of the newest reports in
// bucket, newest first. Each report is a JSON object of counts that are summed.
func WeeklyGreen(ctx context.Context, api API, bucket string) ([]contracts.WeeklyGreenMetric, error) {
	var objects []types.Object
	paginator := s3.NewListObjectsV2Paginator(api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(WeeklyGreenPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", bucket, WeeklyGreenPrefix, err)
		}
		objects = append(objects, page.Contents...)
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return aws.ToTime(objects[i].LastModified).After(aws.ToTime(objects[j].LastModified))
	})
	if len(objects) > WeeklyGreenLimit {
		objects = objects[:WeeklyGreenLimit]
	}

	metrics := make([]contracts.WeeklyGreenMetric, 0, len(objects))
	for _, obj := range objects {
		n, err := countBlockers(ctx, api, bucket, aws.ToString(obj.Key))
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, contracts.WeeklyGreenMetric{
			Date:          aws.ToTime(obj.LastModified).UTC().Format(time.DateOnly),
			NumOfBlockers: n,
		})
	}
	return metrics, nil
}

func countBlockers(ctx context.Context, api API, bucket, key string) (int, error) {
	out, err := api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}

	var blockers map[string]int
	if err := json.Unmarshal(data, &blockers); err != nil {
		return 0, fmt.Errorf("malformed blocker report %s: %w", key, err)
	}
	total := 0
	for _, n := range blockers {
		total += n
	}
	return total, nil
}
