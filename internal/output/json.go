package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// JSONWriter writes the full result as one indented JSON document, optionally zstd-compressed
type JSONWriter struct {
	dst io.WriteCloser
	zw  *zstd.Encoder
	w   io.Writer
}

// compile-time interface check
var _ Writer = (*JSONWriter)(nil)

// NewJSONWriter wraps dst. The writer owns dst and closes it.
func NewJSONWriter(dst io.WriteCloser, compress bool) (*JSONWriter, error) {
	jw := &JSONWriter{dst: dst, w: dst}
	if compress {
		zw, err := zstd.NewWriter(dst)
		if err != nil {
			dst.Close()
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		jw.zw = zw
		jw.w = zw
	}
	return jw, nil
}

// WriteResult implements Writer
func (jw *JSONWriter) WriteResult(result *types.ScanResult) error {
	enc := json.NewEncoder(jw.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// Close flushes the compressor and closes the destination
func (jw *JSONWriter) Close() error {
	if jw.zw != nil {
		if err := jw.zw.Close(); err != nil {
			jw.dst.Close()
			return err
		}
	}
	return jw.dst.Close()
}
