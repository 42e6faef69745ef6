package collector

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// WMI logon session query
const (
	wmiNamespace     = `root\cimv2`
	wmiSessionsQuery = "SELECT LogonId, LogonType, StartTime FROM Win32_LogonSession"
)

var wmiSessionFields = []string{"LogonId", "LogonType", "StartTime"}

// parseCIMDateTime parses a CIM DATETIME such as "20240105093012.123456+060" (offset in minutes)
func parseCIMDateTime(s string) (time.Time, error) {
	if len(s) < 25 {
		return time.Time{}, fmt.Errorf("cim datetime %q: too short", s)
	}
	base, err := time.Parse("20060102150405.000000", s[:21])
	if err != nil {
		return time.Time{}, fmt.Errorf("cim datetime %q: %w", s, err)
	}
	sign := s[21]
	if sign != '+' && sign != '-' {
		return time.Time{}, fmt.Errorf("cim datetime %q: bad offset sign", s)
	}
	minutes, err := strconv.Atoi(s[22:25])
	if err != nil {
		return time.Time{}, fmt.Errorf("cim datetime %q: %w", s, err)
	}
	offset := time.Duration(minutes) * time.Minute
	if sign == '-' {
		offset = -offset
	}
	// base was parsed as UTC wall clock; shift back by the zone offset
	return base.Add(-offset).UTC(), nil
}

// sessionFromWMIRow converts one Win32_LogonSession row
func sessionFromWMIRow(row map[string]string) (types.LogonSession, bool) {
	logonType, err := strconv.ParseUint(strings.TrimSpace(row["LogonType"]), 10, 32)
	if err != nil {
		return types.LogonSession{}, false
	}
	start, err := parseCIMDateTime(row["StartTime"])
	if err != nil {
		return types.LogonSession{}, false
	}
	id, _ := strconv.ParseUint(strings.TrimSpace(row["LogonId"]), 10, 64)

	return types.LogonSession{
		LogonID:     id,
		LogonType:   uint32(logonType),
		StartTime:   start,
		Interactive: types.IsInteractiveLogonType(uint32(logonType)),
	}, true
}

// sessionsFromWMIRows converts rows, skipping incomplete ones
func sessionsFromWMIRows(rows []map[string]string) []types.LogonSession {
	sessions := make([]types.LogonSession, 0, len(rows))
	for _, row := range rows {
		if s, ok := sessionFromWMIRow(row); ok {
			sessions = append(sessions, s)
		}
	}
	return sessions
}
