// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package snapshot

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nishisan-dev/flo/internal/config"
)

// Uploader envia snapshots finalizados para um bucket S3. As credenciais vêm
// da cadeia default do SDK (env, arquivo compartilhado, IMDS).
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewUploader cria o uploader a partir da configuração de S3.
func NewUploader(ctx context.Context, cfg config.S3Config) (*Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return &Uploader{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Upload envia o snapshot para s3://{bucket}/{prefix}/{namespace}/{file}.
func (u *Uploader) Upload(ctx context.Context, snapshotPath, namespace string) error {
	f, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("opening snapshot for upload: %w", err)
	}
	defer f.Close()

	key := path.Join(u.prefix, namespace, filepath.Base(snapshotPath))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("uploading snapshot to s3://%s/%s: %w", u.bucket, key, err)
	}
	return nil
}
