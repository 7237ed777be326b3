package hyperliquid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/time/rate"

	appconfig "quantflow/config"
	"quantflow/logger"
)

// ArchiveDownloader pulls historical l2Book hours from the public archive
// bucket and stores the decompressed JSON under the raw data directory in
// the layout the processor reads: raw_dir/l2Book/<yyyymmdd>/<hh>/<coin>.json.
type ArchiveDownloader struct {
	bucket   string
	rawDir   string
	s3Client *s3.Client
	limiter  *rate.Limiter
	log      *logger.Log
}

func NewArchiveDownloader(cfg *appconfig.Config) (*ArchiveDownloader, error) {
	log := logger.GetLogger()

	// The archive bucket is public; requests go out unsigned.
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Archive.Region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	rps := cfg.Archive.RateLimit.RequestsPerSecond
	if rps < 1 {
		rps = 1
	}
	burst := cfg.Archive.RateLimit.BurstSize
	if burst < 1 {
		burst = 1
	}

	dl := &ArchiveDownloader{
		bucket:   cfg.Archive.Bucket,
		rawDir:   cfg.Data.RawDir,
		s3Client: s3.NewFromConfig(awsCfg),
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		log:      log,
	}

	log.WithComponent("archive_downloader").WithFields(logger.Fields{
		"bucket":              dl.bucket,
		"region":              cfg.Archive.Region,
		"requests_per_second": rps,
	}).Info("archive downloader initialized")

	return dl, nil
}

// DownloadRange fetches every hour of every day in [start, end] for one coin.
// Hours already present on disk are skipped, so a restarted download resumes
// where it stopped.
func (dl *ArchiveDownloader) DownloadRange(ctx context.Context, coin string, start, end time.Time) error {
	log := dl.log.WithComponent("archive_downloader").WithFields(logger.Fields{
		"coin":  coin,
		"start": start.Format("2006-01-02"),
		"end":   end.Format("2006-01-02"),
	})
	log.Info("starting archive download")

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := dl.DownloadDay(ctx, coin, day); err != nil {
			return err
		}
	}

	log.Info("archive download complete")
	return nil
}

// DownloadDay fetches the 24 hourly objects for (coin, day). Missing hours
// are logged and skipped; the archive has gaps and a partial day is still
// usable downstream.
func (dl *ArchiveDownloader) DownloadDay(ctx context.Context, coin string, day time.Time) error {
	dateStr := day.Format("2006-01-02")
	dateCompact := day.Format("20060102")

	for hour := 0; hour < 24; hour++ {
		hourStr := fmt.Sprintf("%02d", hour)
		key := fmt.Sprintf("market_data/%s/%s/l2/%s.lz4", dateStr, hourStr, coin)
		outPath := filepath.Join(dl.rawDir, "l2Book", dateCompact, hourStr, coin+".json")

		log := dl.log.WithComponent("archive_downloader").WithFields(logger.Fields{
			"coin": coin,
			"key":  key,
		})

		if _, err := os.Stat(outPath); err == nil {
			log.Debug("hour already downloaded, skipping")
			continue
		}

		if err := dl.limiter.Wait(ctx); err != nil {
			return err
		}

		data, err := dl.fetchHour(ctx, key)
		if err != nil {
			var noKey *types.NoSuchKey
			if errors.As(err, &noKey) {
				log.Warn("archive hour not found")
				continue
			}
			log.WithError(err).Error("failed to fetch archive hour")
			continue
		}

		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return fmt.Errorf("failed to create raw directory: %w", err)
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write raw file: %w", err)
		}

		logger.IncrementArchiveRead(len(data))
		log.WithFields(logger.Fields{"bytes": len(data)}).Info("archive hour downloaded")
	}

	return nil
}

func (dl *ArchiveDownloader) fetchHour(ctx context.Context, key string) ([]byte, error) {
	out, err := dl.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(dl.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	compressed, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	decompressed, err := io.ReadAll(lz4.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", key, err)
	}
	return decompressed, nil
}
