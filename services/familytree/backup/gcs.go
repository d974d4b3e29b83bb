// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package backup copies a user's tree to Google Cloud Storage.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/familytree/services/familytree/codec"
	"github.com/AleutianAI/familytree/services/familytree/tree"
)

// ErrNoBucket is returned when no bucket is configured.
var ErrNoBucket = errors.New("backup bucket is not configured")

// GCS uploads tree exports to a bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	now    func() time.Time
}

// NewGCS creates a client for bucket. credentialsFile is a service account
// key; empty uses application default credentials.
func NewGCS(ctx context.Context, bucket, prefix, credentialsFile string) (*GCS, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix, now: time.Now}, nil
}

// ObjectName returns the object a backup taken at t is stored under.
func ObjectName(prefix, userID string, t time.Time) string {
	return path.Join(prefix, userID, t.UTC().Format("20060102T150405Z")+"-"+codec.ExportFileName)
}

// Upload writes the export of nodes and returns the gs:// URL.
func (g *GCS) Upload(ctx context.Context, userID string, nodes []*tree.Node) (string, error) {
	name := ObjectName(g.prefix, userID, g.now())
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = codec.ExportMIMEType
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if err := codec.Export(w, nodes); err != nil {
		w.CloseWithError(err)
		return "", fmt.Errorf("failed to write backup %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, name), nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}
