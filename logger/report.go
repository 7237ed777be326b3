package logger

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type flowStat struct {
	count int64
	bytes int64
}

var (
	errorsLive     int64
	errorsBacktest int64
	warnsLive      int64
	warnsBacktest  int64
	snapshotsRead  int64
	archiveReads   int64
	featureWrites  int64
	flows          sync.Map // map[string]*flowStat
)

func recordWarn(component string) {
	if strings.Contains(component, "live") || strings.Contains(component, "connector") {
		atomic.AddInt64(&warnsLive, 1)
	} else if strings.Contains(component, "backtest") {
		atomic.AddInt64(&warnsBacktest, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "live") || strings.Contains(component, "connector") {
		atomic.AddInt64(&errorsLive, 1)
	} else if strings.Contains(component, "backtest") {
		atomic.AddInt64(&errorsBacktest, 1)
	}
}

// IncrementSnapshotRead counts one live snapshot received from a feed.
func IncrementSnapshotRead(size int) {
	atomic.AddInt64(&snapshotsRead, 1)
	recordFlow("live_snapshots", size)
}

// IncrementArchiveRead counts one raw archive object downloaded.
func IncrementArchiveRead(size int) {
	atomic.AddInt64(&archiveReads, 1)
	recordFlow("archive_download", size)
}

// IncrementFeatureWrite counts one feature file written.
func IncrementFeatureWrite(size int64) {
	atomic.AddInt64(&featureWrites, 1)
	recordFlow("feature_write", int(size))
}

// RecordFlowMessage counts one message on a named data flow.
func RecordFlowMessage(name string, size int) {
	recordFlow(name, size)
}

func recordFlow(name string, size int) {
	v, _ := flows.LoadOrStore(name, &flowStat{})
	fs := v.(*flowStat)
	atomic.AddInt64(&fs.count, 1)
	atomic.AddInt64(&fs.bytes, int64(size))
}

// StartReport begins periodic logging of counter statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	flowData := map[string]map[string]int64{}
	var metricData []cwtypes.MetricDatum

	flows.Range(func(k, v any) bool {
		name := k.(string)
		fs := v.(*flowStat)
		count := atomic.SwapInt64(&fs.count, 0)
		bytes := atomic.SwapInt64(&fs.bytes, 0)
		flowData[name] = map[string]int64{"count": count, "bytes": bytes}

		metricData = append(metricData, cwtypes.MetricDatum{
			MetricName: aws.String("FlowMessages"),
			Dimensions: []cwtypes.Dimension{{Name: aws.String("flow"), Value: aws.String(name)}},
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(count)),
		})
		return true
	})

	log.WithComponent("report").WithFields(Fields{
		"live_snapshots":  atomic.LoadInt64(&snapshotsRead),
		"archive_reads":   atomic.LoadInt64(&archiveReads),
		"feature_writes":  atomic.LoadInt64(&featureWrites),
		"errors_live":     atomic.LoadInt64(&errorsLive),
		"errors_backtest": atomic.LoadInt64(&errorsBacktest),
		"warns_live":      atomic.LoadInt64(&warnsLive),
		"warns_backtest":  atomic.LoadInt64(&warnsBacktest),
		"flows":           flowData,
	}).Info("periodic report")

	publishMetrics(ctx, metricData)
}
