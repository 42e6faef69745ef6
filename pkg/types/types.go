// Package types defines the core data structures for ferret-bam
package types

import (
	"strings"
	"time"
)

// ExecutionTimeLayout is the canonical display form of an execution timestamp (19 characters)
const ExecutionTimeLayout = "2006-01-02 15:04:05"

// TrustStatus is the signing verdict for an executed binary
type TrustStatus string

// Trust status constants
const (
	TrustSigned         TrustStatus = "Signed"
	TrustNotSigned      TrustStatus = "Not signed"
	TrustCheatSignature TrustStatus = "Cheat signature"
	TrustFakeSignature  TrustStatus = "Fake signature"
	TrustDeleted        TrustStatus = "Deleted"
)

// AllTrustStatuses lists every verdict in display order
var AllTrustStatuses = []TrustStatus{
	TrustSigned,
	TrustNotSigned,
	TrustCheatSignature,
	TrustFakeSignature,
	TrustDeleted,
}

// SuppressesScanning reports whether pattern and auxiliary scans are skipped for this status.
// Signed files are trusted and deleted files cannot be read.
func (s TrustStatus) SuppressesScanning() bool {
	return s == TrustSigned || s == TrustDeleted
}

// IsSuspicious reports whether the verdict should draw an analyst's attention
func (s TrustStatus) IsSuspicious() bool {
	switch s {
	case TrustNotSigned, TrustCheatSignature, TrustFakeSignature:
		return true
	}
	return false
}

// Finding type constants reported by the replace scanner
const (
	FindingExplorer = "Explorer"
	FindingCopy     = "Copy"
	FindingType     = "Type"
	FindingDelete   = "Delete"
)

// AuxiliaryFinding is one replace-scanner hit for a file name
type AuxiliaryFinding struct {
	FileName    string `json:"file_name"`
	FindingType string `json:"finding_type"`
	Details     string `json:"details"`
}

// RawEntry is one undecoded BAM value as read from the registry
type RawEntry struct {
	SID       string `json:"sid"`
	ValueName string `json:"value_name"`
	Data      []byte `json:"-"`
}

// ExecutionRecord is one reconstructed execution event
type ExecutionRecord struct {
	Path              string             `json:"path"`
	RawPath           string             `json:"raw_path,omitempty"`
	ExecutionTime     string             `json:"execution_time"`
	ExecutedAt        time.Time          `json:"executed_at"`
	SID               string             `json:"sid"`
	User              string             `json:"user,omitempty"`
	Trust             TrustStatus        `json:"trust"`
	Signer            string             `json:"signer,omitempty"`
	InCurrentSession  bool               `json:"in_current_session"`
	PatternMatches    []string           `json:"pattern_matches"`
	AuxiliaryFindings []AuxiliaryFinding `json:"auxiliary_findings"`
}

// IsFlagged reports whether the record carries any pattern match or replace finding
func (r *ExecutionRecord) IsFlagged() bool {
	return len(r.PatternMatches) > 0 || len(r.AuxiliaryFindings) > 0
}

// FileName returns the base name of the record path
func (r *ExecutionRecord) FileName() string {
	if i := strings.LastIndexAny(r.Path, `\/`); i >= 0 {
		return r.Path[i+1:]
	}
	return r.Path
}

// LogonSession is a single logon session as reported by the host
type LogonSession struct {
	LogonID     uint64    `json:"logon_id"`
	UserName    string    `json:"user_name,omitempty"`
	Domain      string    `json:"domain,omitempty"`
	LogonType   uint32    `json:"logon_type"`
	StartTime   time.Time `json:"start_time"`
	Interactive bool      `json:"interactive"`
}

// Logon types that count as interactive use of the machine
const (
	LogonTypeInteractive       uint32 = 2
	LogonTypeRemoteInteractive uint32 = 10
)

// IsInteractiveLogonType reports whether a logon type is interactive or remote-interactive
func IsInteractiveLogonType(logonType uint32) bool {
	return logonType == LogonTypeInteractive || logonType == LogonTypeRemoteInteractive
}

// HostInfo contains host system information
type HostInfo struct {
	Hostname string `json:"hostname"`
	OS       string `json:"os"`
	Arch     string `json:"arch"`
}

// ScanSummary represents the summary of a pass
type ScanSummary struct {
	TotalEntries   int                 `json:"total_entries"`
	SkippedEntries int                 `json:"skipped_entries"`
	ByTrust        map[TrustStatus]int `json:"by_trust"`
	Flagged        int                 `json:"flagged"`
	CurrentSession int                 `json:"current_session"`
}

// ScanResult represents the complete result of one analysis pass
type ScanResult struct {
	Version            string            `json:"version"`
	ScanID             string            `json:"scan_id"`
	ScanTime           time.Time         `json:"scan_time"`
	ScanDurationMs     int64             `json:"scan_duration_ms"`
	Host               HostInfo          `json:"host"`
	RulesVersion       string            `json:"rules_version,omitempty"`
	AuxiliaryAvailable bool              `json:"auxiliary_available"`
	Summary            ScanSummary       `json:"summary"`
	Records            []ExecutionRecord `json:"records"`
}

// Summarize recomputes the summary counters from the records
func (r *ScanResult) Summarize(skipped int) {
	s := ScanSummary{
		TotalEntries:   len(r.Records),
		SkippedEntries: skipped,
		ByTrust:        make(map[TrustStatus]int, len(AllTrustStatuses)),
	}
	for i := range r.Records {
		rec := &r.Records[i]
		s.ByTrust[rec.Trust]++
		if rec.IsFlagged() {
			s.Flagged++
		}
		if rec.InCurrentSession {
			s.CurrentSession++
		}
	}
	r.Summary = s
}
