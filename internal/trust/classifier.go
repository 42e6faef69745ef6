// Package trust assigns a signing verdict to an executed binary: embedded Authenticode, signer
// deny-list, certificate store presence and catalog signing, in that order.
package trust

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// ErrUnsupported is returned by verifiers on platforms without WinVerifyTrust
var ErrUnsupported = errors.New("signature verification not supported on this platform")

// ErrNotSigned is returned when a file carries no valid signature of the requested kind
var ErrNotSigned = errors.New("no valid signature")

// Source names which check produced a verdict
type Source string

// Verdict sources
const (
	SourceNone     Source = ""
	SourceFile     Source = "file"
	SourceEmbedded Source = "embedded"
	SourceDenyList Source = "deny-list"
	SourceStore    Source = "store"
	SourceCatalog  Source = "catalog"
)

// Signature describes the leaf signer of an embedded signature
type Signature struct {
	// Subject is the X.500 subject string of the signing certificate
	Subject string
	// Thumbprint is the uppercase hex SHA-1 of the encoded certificate
	Thumbprint string
}

// FileSystem answers existence checks
type FileSystem interface {
	Exists(path string) bool
}

// Verifier runs the platform signature checks
type Verifier interface {
	VerifyEmbedded(path string) (Signature, error)
	VerifyCatalog(path string) error
}

// StoreSearcher looks a certificate thumbprint up in the local certificate stores
type StoreSearcher interface {
	Contains(thumbprint string) (bool, error)
}

// Result is the verdict for one path
type Result struct {
	Status     types.TrustStatus
	Signer     string
	Thumbprint string
	Source     Source
}

// Default signer identities known to sign cheat tooling
var DefaultDenyList = []string{
	"manthe industries, llc",
	"slinkware",
}

// DefaultStores are the system store names searched in both the CurrentUser and LocalMachine locations
var DefaultStores = []string{
	"MY",
	"Root",
	"Trust",
	"CA",
	"Disallowed",
	"TrustedPublisher",
	"TrustedPeople",
	"AuthRoot",
	"TrustedDevices",
}

// DenyList matches signer subjects case-insensitively by substring
type DenyList struct {
	identities []string
}

// NewDenyList normalizes identities, dropping blanks and duplicates
func NewDenyList(identities ...string) *DenyList {
	d := &DenyList{}
	seen := make(map[string]bool, len(identities))
	for _, id := range identities {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		d.identities = append(d.identities, id)
	}
	return d
}

// Match returns the identity contained in subject, if any
func (d *DenyList) Match(subject string) (string, bool) {
	if d == nil {
		return "", false
	}
	lower := strings.ToLower(subject)
	for _, id := range d.identities {
		if strings.Contains(lower, id) {
			return id, true
		}
	}
	return "", false
}

// Identities returns the normalized identities
func (d *DenyList) Identities() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.identities...)
}

// OSFileSystem checks existence with os.Stat
type OSFileSystem struct{}

// Exists implements FileSystem
func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Classifier runs the ordered verdict checks for a path
type Classifier struct {
	fs       FileSystem
	verifier Verifier
	stores   StoreSearcher
	deny     *DenyList
}

// NewClassifier creates a classifier. A nil deny list means DefaultDenyList.
func NewClassifier(fs FileSystem, verifier Verifier, stores StoreSearcher, deny *DenyList) *Classifier {
	if fs == nil {
		fs = OSFileSystem{}
	}
	if deny == nil {
		deny = NewDenyList(DefaultDenyList...)
	}
	return &Classifier{
		fs:       fs,
		verifier: verifier,
		stores:   stores,
		deny:     deny,
	}
}

// Classify returns the verdict for path. Every failure of the underlying APIs degrades to
// NotSigned; Classify itself never fails.
func (c *Classifier) Classify(path string) Result {
	start := time.Now()
	res := c.classify(path)
	logger.TrustInfo(path, string(res.Status), res.Signer, res.Thumbprint)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		logger.Warn("Trust: slow verification of %s (%v)", path, elapsed)
	}
	return res
}

func (c *Classifier) classify(path string) Result {
	if !c.fs.Exists(path) {
		return Result{Status: types.TrustDeleted, Source: SourceFile}
	}
	if c.verifier == nil {
		return Result{Status: types.TrustNotSigned}
	}

	sig, err := c.verifier.VerifyEmbedded(path)
	if err == nil {
		return c.classifyEmbedded(sig)
	}
	if !errors.Is(err, ErrNotSigned) {
		logger.Debug("Trust: embedded verification of %s failed: %v", path, err)
	}

	if err := c.verifier.VerifyCatalog(path); err == nil {
		return Result{Status: types.TrustSigned, Source: SourceCatalog}
	} else if !errors.Is(err, ErrNotSigned) {
		logger.Debug("Trust: catalog verification of %s failed: %v", path, err)
	}

	return Result{Status: types.TrustNotSigned}
}

func (c *Classifier) classifyEmbedded(sig Signature) Result {
	res := Result{Signer: sig.Subject, Thumbprint: sig.Thumbprint, Source: SourceEmbedded}

	if id, ok := c.deny.Match(sig.Subject); ok {
		logger.Info("Trust: signer %q matches deny-listed identity %q", sig.Subject, id)
		res.Status = types.TrustCheatSignature
		res.Source = SourceDenyList
		return res
	}

	if sig.Thumbprint == "" {
		res.Status = types.TrustNotSigned
		return res
	}
	if c.stores == nil {
		res.Status = types.TrustSigned
		return res
	}

	found, err := c.stores.Contains(sig.Thumbprint)
	if err != nil {
		logger.Debug("Trust: store lookup for %s failed: %v", sig.Thumbprint, err)
		res.Status = types.TrustNotSigned
		return res
	}

	res.Source = SourceStore
	if !found {
		res.Status = types.TrustFakeSignature
		return res
	}
	res.Status = types.TrustSigned
	return res
}
