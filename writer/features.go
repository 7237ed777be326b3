package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "quantflow/config"
	"quantflow/logger"
	"quantflow/models"
)

// memoryFileWriter implements ParquetFile for in-memory writing so a file can
// be assembled once and then both persisted locally and uploaded.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)  { return mfw, nil }

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// FeatureWriter persists derived feature rows as one parquet file per
// (coin, date) under the features directory, optionally mirroring each file
// to S3.
type FeatureWriter struct {
	featuresDir string
	s3Client    *s3.Client
	s3Bucket    string
	s3Prefix    string
	version     string
	log         *logger.Log
}

func NewFeatureWriter(cfg *appconfig.Config) (*FeatureWriter, error) {
	log := logger.GetLogger()

	fw := &FeatureWriter{
		featuresDir: cfg.Data.FeaturesDir,
		version:     cfg.Quantflow.Version,
		log:         log,
	}

	if cfg.Storage.S3.Enabled {
		ctx := context.Background()
		loadOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Storage.S3.Region),
		}
		if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					cfg.Storage.S3.AccessKeyID,
					cfg.Storage.S3.SecretAccessKey,
					"",
				),
			))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		creds, err := awsCfg.Credentials.Retrieve(ctx)
		if err != nil || !creds.HasKeys() {
			return nil, fmt.Errorf("aws credentials not found")
		}

		fw.s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Storage.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
			}
			o.UsePathStyle = cfg.Storage.S3.PathStyle
		})
		fw.s3Bucket = cfg.Storage.S3.Bucket
		fw.s3Prefix = cfg.Storage.S3.Prefix

		log.WithComponent("feature_writer").WithFields(logger.Fields{
			"bucket": fw.s3Bucket,
			"region": cfg.Storage.S3.Region,
		}).Info("s3 mirroring enabled")
	}

	return fw, nil
}

// FeaturePath resolves the canonical on-disk location for one (coin, date)
// feature file. dateStr uses yyyymmdd.
func FeaturePath(featuresDir, coin, dateStr string) string {
	return filepath.Join(featuresDir, dateStr, fmt.Sprintf("%s_features.parquet", coin))
}

// WriteFeatures serializes rows to parquet and persists them for the given
// (coin, date). Rows are written in timestamp order regardless of input order.
func (fw *FeatureWriter) WriteFeatures(ctx context.Context, coin, dateStr string, rows []models.FeatureRow) (string, error) {
	log := fw.log.WithComponent("feature_writer").WithFields(logger.Fields{
		"coin":      coin,
		"date":      dateStr,
		"row_count": len(rows),
		"batch_id":  uuid.New().String(),
	})

	sorted := make([]models.FeatureRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	data, err := fw.createParquetFile(sorted)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return "", err
	}

	path := FeaturePath(fw.featuresDir, coin, dateStr)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create features directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write feature file: %w", err)
	}

	log.WithFields(logger.Fields{
		"path":      path,
		"file_size": len(data),
	}).Info("feature file written")
	logger.IncrementFeatureWrite(int64(len(data)))

	if fw.s3Client != nil {
		key := filepath.ToSlash(filepath.Join(fw.s3Prefix, "features", dateStr, filepath.Base(path)))
		if err := fw.uploadToS3(ctx, key, data); err != nil {
			log.WithError(err).WithFields(logger.Fields{"s3_key": key}).Warn("failed to mirror feature file to S3")
		}
	}

	return path, nil
}

func (fw *FeatureWriter) createParquetFile(rows []models.FeatureRow) ([]byte, error) {
	mf := newMemoryFileWriter()

	pw, err := pqwriter.NewParquetWriter(mf, new(models.FeatureParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row.ToParquet()); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return mf.Bytes(), nil
}

func (fw *FeatureWriter) uploadToS3(ctx context.Context, key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(fw.s3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":      "parquet",
			"quantflow-version": fw.version,
		},
	}
	_, err := fw.s3Client.PutObject(context.WithoutCancel(ctx), input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", fw.s3Bucket, err)
	}
	return nil
}

// ReadFeatures loads a feature parquet file back into rows, in file order.
// A missing file is a fatal precondition for the callers, so the error is
// returned as-is rather than being swallowed.
func ReadFeatures(path string) ([]models.FeatureRow, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature file %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(models.FeatureParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet reader: %w", err)
	}
	defer pr.ReadStop()

	num := int(pr.GetNumRows())
	rows := make([]models.FeatureRow, 0, num)
	for num > 0 {
		batch := num
		if batch > 4096 {
			batch = 4096
		}
		recs := make([]models.FeatureParquetRecord, batch)
		if err := pr.Read(&recs); err != nil {
			return nil, fmt.Errorf("failed to read parquet records: %w", err)
		}
		for _, rec := range recs {
			rows = append(rows, models.FromParquet(rec))
		}
		num -= batch
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
	return rows, nil
}
