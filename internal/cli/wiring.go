package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/digggggmori-pixel/ferret-bam/internal/collector"
	"github.com/digggggmori-pixel/ferret-bam/internal/config"
	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
	"github.com/digggggmori-pixel/ferret-bam/internal/patterns"
	"github.com/digggggmori-pixel/ferret-bam/internal/replace"
	"github.com/digggggmori-pixel/ferret-bam/internal/rulestore"
	"github.com/digggggmori-pixel/ferret-bam/internal/scan"
	"github.com/digggggmori-pixel/ferret-bam/internal/trust"
)

// loadRules opens the rule store. An explicit path overrides rules.path from the config.
func loadRules(cfg *config.Config, path string) (*rulestore.RuleStore, error) {
	if path == "" {
		path = cfg.Rules.Path
	}
	rs := rulestore.NewRuleStore(path, patterns.Options{
		MaxFileSize: cfg.Rules.MaxFileSize,
		CacheSize:   cfg.Rules.CacheSize,
	})
	if err := rs.Load(); err != nil {
		return rs, fmt.Errorf("load rules: %w", err)
	}
	return rs, nil
}

// denyList merges configured signer identities with the bundle's
func denyList(cfg *config.Config, rs *rulestore.RuleStore) *trust.DenyList {
	ids := append([]string{}, trust.DefaultDenyList...)
	ids = append(ids, cfg.Trust.DenyList...)
	if rs != nil {
		if b := rs.GetBundle(); b != nil {
			ids = append(ids, b.DenyList...)
		}
	}
	return trust.NewDenyList(ids...)
}

func newClassifier(cfg *config.Config, rs *rulestore.RuleStore) *trust.Classifier {
	stores := cfg.Trust.Stores
	if len(stores) == 0 {
		stores = trust.DefaultStores
	}
	return trust.NewClassifier(nil, trust.NewSystemVerifier(), trust.NewSystemStoreSearcher(stores), denyList(cfg, rs))
}

func newVolumeResolver() *collector.VolumeResolver {
	mapper := collector.NewSystemDriveMapper()
	collector.LogDrives(mapper)
	return collector.NewVolumeResolver(mapper)
}

func artifactPaths(cfg *config.Config) []string {
	paths := cfg.Artifact.Paths
	if len(paths) == 0 {
		paths = collector.DefaultBAMPaths
	}
	if cfg.Artifact.IncludeLegacy {
		paths = append(append([]string{}, paths...), collector.LegacyBAMPaths...)
	}
	return paths
}

// newReplaceCache builds the replace scanner cache. A missing payload is logged and left to
// surface as a payload-stage Init failure.
// auxiliary.payload may name the image itself or a directory holding it.
func newReplaceCache(cfg *config.Config) *replace.Cache {
	var payload replace.Payload
	if p := cfg.Auxiliary.Payload; p != "" {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			payload = replace.FilePayload{Path: p}
		}
	}
	if payload == nil {
		found, err := replace.DiscoverPayload(cfg.Auxiliary.Payload, execDir())
		if err != nil {
			logger.Warn("Replace scanner payload: %v", err)
		} else {
			payload = found
		}
	}
	return replace.NewCache(replace.Config{
		Payload: payload,
		Timeout: cfg.Auxiliary.Timeout,
	})
}

// buildDeps assembles the collaborators of a pass
func buildDeps(cfg *config.Config, rs *rulestore.RuleStore, auxiliary bool) scan.Deps {
	deps := scan.Deps{
		Artifacts: collector.NewRegistryArtifactSource(artifactPaths(cfg)),
		Volumes:   newVolumeResolver(),
		Sessions:  collector.NewSessionCorrelator(collector.DefaultSessionSource(), time.Local),
		Trust:     newClassifier(cfg, rs),
		Users:     collector.NewProfileUserResolver(),
	}
	if rs != nil {
		deps.Patterns = rs
	}
	if auxiliary {
		deps.Auxiliary = newReplaceCache(cfg)
	}
	return deps
}

func (a *app) scanConfig(auxiliary bool) scan.Config {
	cfg := scan.DefaultConfig()
	cfg.Version = a.version
	cfg.Auxiliary = auxiliary
	return cfg
}
