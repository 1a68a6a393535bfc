package ingest

import (
	"context"
	"io"
	"os"
)

// LogSource opens the byte stream behind a ref: the primary process log or
// the output location of an async sub-agent.
type LogSource interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// FileSource resolves refs as local file paths; "-" means stdin.
type FileSource struct{}

// Open implements LogSource.
func (FileSource) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	if ref == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(ref)
}
