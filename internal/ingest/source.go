package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ObjectOpener streams a named object from remote storage.
// *r2client.Client satisfies it.
type ObjectOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// OpenSource opens the course table at source: an object key when remote
// is non-nil, else a local path. Names ending in .zst are decompressed.
func OpenSource(ctx context.Context, source string, remote ObjectOpener) (io.ReadCloser, error) {
	var (
		body io.ReadCloser
		err  error
	)
	if remote != nil {
		body, err = remote.Open(ctx, source)
	} else {
		body, err = os.Open(source)
	}
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", source, err)
	}

	if !strings.HasSuffix(source, ".zst") {
		return body, nil
	}

	dec, err := zstd.NewReader(body)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("open source %s: zstd: %w", source, err)
	}
	return &zstdSource{dec: dec, body: body}, nil
}

type zstdSource struct {
	dec  *zstd.Decoder
	body io.ReadCloser
}

func (z *zstdSource) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdSource) Close() error {
	z.dec.Close()
	return z.body.Close()
}
