package replace

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// Log line prefixes written by the replace scanner, one per finding type
var findingPrefixes = []struct {
	prefix      string
	findingType string
}{
	{"Explorer replacement found in file: ", types.FindingExplorer},
	{"Copy replacement found in file: ", types.FindingCopy},
	{"Type pattern found in file: ", types.FindingType},
	{"Delete pattern found in file: ", types.FindingDelete},
}

const maxLogLine = 4 * 1024 * 1024

// Index maps a lower-cased file name to its findings
type Index map[string][]types.AuxiliaryFinding

// pendingFinding is a header whose details block has not been closed yet
type pendingFinding struct {
	finding types.AuxiliaryFinding
	details []string
	open    bool
}

func (p *pendingFinding) add(line string) {
	if line = strings.TrimSpace(line); line != "" {
		p.details = append(p.details, line)
	}
}

// Parse reads a replace scanner log. Each finding is a prefixed header line naming a file,
// followed by a { ... } block of details that may start on the header's next line or later.
// Unknown lines outside a block are ignored. A block left open at end of input keeps the
// details collected so far.
func Parse(r io.Reader) (Index, error) {
	index := make(Index)
	var cur *pendingFinding

	flush := func() {
		if cur == nil {
			return
		}
		cur.finding.Details = strings.Join(cur.details, "\n")
		key := Key(cur.finding.FileName)
		index[key] = append(index[key], cur.finding)
		cur = nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLogLine)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")

		if cur != nil && cur.open {
			if end := strings.IndexByte(line, '}'); end >= 0 {
				cur.add(line[:end])
				flush()
				continue
			}
			cur.add(line)
			continue
		}

		if findingType, name, ok := parseHeader(line); ok {
			// A header before the previous block opened ends that finding with no details
			flush()
			cur = &pendingFinding{finding: types.AuxiliaryFinding{FileName: name, FindingType: findingType}}
			continue
		}

		if cur == nil {
			continue
		}
		start := strings.IndexByte(line, '{')
		if start < 0 {
			continue
		}
		cur.open = true
		rest := line[start+1:]
		if end := strings.IndexByte(rest, '}'); end >= 0 {
			cur.add(rest[:end])
			flush()
			continue
		}
		cur.add(rest)
	}
	flush()

	if err := sc.Err(); err != nil {
		return index, fmt.Errorf("read replace log: %w", err)
	}
	return index, nil
}

func parseHeader(line string) (findingType, name string, ok bool) {
	for _, p := range findingPrefixes {
		if strings.HasPrefix(line, p.prefix) {
			name = strings.TrimSpace(line[len(p.prefix):])
			if name == "" {
				return "", "", false
			}
			return p.findingType, name, true
		}
	}
	return "", "", false
}

// Key is the lookup key of a file name or path: its lower-cased base name
func Key(nameOrPath string) string {
	if i := strings.LastIndexAny(nameOrPath, `\/`); i >= 0 {
		nameOrPath = nameOrPath[i+1:]
	}
	return strings.ToLower(nameOrPath)
}
