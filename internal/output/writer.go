// Package output renders and exports scan results
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// Writer is the interface that all export writers must implement
type Writer interface {
	WriteResult(result *types.ScanResult) error
	Close() error
}

// Export formats
const (
	FormatJSON   = "json"
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// NewWriter opens a writer for format at path. An empty path writes JSON and CSV to stdout.
func NewWriter(format, path string, compress bool) (Writer, error) {
	if compress && format != FormatJSON {
		return nil, fmt.Errorf("compression is only supported for json")
	}

	switch format {
	case FormatSQLite:
		if path == "" {
			return nil, fmt.Errorf("sqlite export needs an output path")
		}
		return NewSQLiteWriter(path)
	case FormatJSON, FormatCSV:
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}

	var dst io.WriteCloser = nopCloser{os.Stdout}
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		dst = f
	}

	if format == FormatCSV {
		return NewCSVWriter(dst), nil
	}
	return NewJSONWriter(dst, compress)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
