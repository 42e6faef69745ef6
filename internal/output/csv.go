package output

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// CSVWriter writes one row per execution record
type CSVWriter struct {
	dst    io.WriteCloser
	writer *csv.Writer
}

// compile-time interface check
var _ Writer = (*CSVWriter)(nil)

var csvHeader = []string{
	"execution_time", "path", "raw_path", "user", "sid", "trust", "signer",
	"in_current_session", "pattern_matches", "replace_findings",
}

// NewCSVWriter wraps dst. The writer owns dst and closes it.
func NewCSVWriter(dst io.WriteCloser) *CSVWriter {
	return &CSVWriter{dst: dst, writer: csv.NewWriter(dst)}
}

// WriteResult implements Writer
func (cw *CSVWriter) WriteResult(result *types.ScanResult) error {
	if err := cw.writer.Write(csvHeader); err != nil {
		return err
	}
	for i := range result.Records {
		if err := cw.writer.Write(csvRow(&result.Records[i])); err != nil {
			return err
		}
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

func csvRow(rec *types.ExecutionRecord) []string {
	findings := make([]string, len(rec.AuxiliaryFindings))
	for i, f := range rec.AuxiliaryFindings {
		findings[i] = f.FindingType + ": " + strings.ReplaceAll(f.Details, "\n", " | ")
	}
	return []string{
		rec.ExecutionTime,
		rec.Path,
		rec.RawPath,
		rec.User,
		rec.SID,
		string(rec.Trust),
		rec.Signer,
		strconv.FormatBool(rec.InCurrentSession),
		strings.Join(rec.PatternMatches, ";"),
		strings.Join(findings, ";"),
	}
}

// Close closes the destination
func (cw *CSVWriter) Close() error {
	return cw.dst.Close()
}
