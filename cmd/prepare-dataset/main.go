// Command prepare-dataset converts a raw Kepler KOI or TESS TOI catalog export
// into the labelled table consumed by the training engine.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"transit-classifier-service/internal/adapters/secondary/objectstore"
	"transit-classifier-service/internal/config"
	"transit-classifier-service/internal/core/domain"
	"transit-classifier-service/internal/core/services"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

type options struct {
	source    string
	in        string
	out       string
	aliasFile string
}

func main() {
	var opts options
	flag.StringVarP(&opts.source, "source", "s", "", "catalog the export comes from: kepler or tess")
	flag.StringVarP(&opts.in, "in", "i", "-", "raw catalog export, - for stdin")
	flag.StringVarP(&opts.out, "out", "o", "-", "output table, - for stdout, s3://bucket/key to upload")
	flag.StringVar(&opts.aliasFile, "aliases", os.Getenv("FEATURE_ALIAS_FILE"), "YAML file with extra column aliases")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)

	if err := run(context.Background(), opts); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, opts options) error {
	source, err := services.ParseTrainingSource(opts.source)
	if err != nil {
		return err
	}

	aliases, err := domain.LoadFeatureAliases(opts.aliasFile)
	if err != nil {
		return err
	}

	in, err := openInput(opts.in)
	if err != nil {
		return err
	}
	defer in.Close()

	started := time.Now()
	set, err := services.NewTrainingSetBuilder(services.NewIngestionService(aliases)).Build(source, in)
	if err != nil {
		return fmt.Errorf("build training set: %w", err)
	}

	var buf bytes.Buffer
	if err := set.WriteCSV(&buf); err != nil {
		return fmt.Errorf("write training set: %w", err)
	}

	if err := writeOutput(ctx, opts.out, &buf); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"source":    source,
		"rows":      len(set.Records),
		"positives": set.Positives(),
		"out":       opts.out,
		"took":      time.Since(started).Round(time.Millisecond),
	}).Info("training set written")
	return nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" || path == "" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func writeOutput(ctx context.Context, dst string, buf *bytes.Buffer) error {
	switch {
	case dst == "-" || dst == "":
		_, err := buf.WriteTo(os.Stdout)
		return err

	case objectstore.IsURI(dst):
		bucket, key, err := objectstore.ParseURI(dst)
		if err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client, err := objectstore.New(objectstore.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Region:    cfg.MinIO.Region,
		})
		if err != nil {
			return err
		}
		return client.PutObject(ctx, bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "text/csv")

	default:
		return os.WriteFile(dst, buf.Bytes(), 0o644)
	}
}
