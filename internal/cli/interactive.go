package cli

import (
	"context"
	"os"
	"runtime"

	"github.com/digggggmori-pixel/ferret-bam/internal/collector"
	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
	"github.com/digggggmori-pixel/ferret-bam/internal/scan"
	"github.com/digggggmori-pixel/ferret-bam/internal/tui"
)

// runTUI starts the interactive front end. A rules load failure is shown on the home screen
// and the pass runs without content rules.
func (a *app) runTUI(ctx context.Context) error {
	var startupErr string
	rs, err := loadRules(a.cfg, "")
	if err != nil {
		logger.Error("%v", err)
		startupErr = err.Error()
	}

	hostname, _ := os.Hostname()
	info := tui.HostSummary{
		Hostname:  hostname,
		OS:        runtime.GOOS + "/" + runtime.GOARCH,
		IsAdmin:   collector.IsRunningAsAdmin(),
		Auxiliary: a.cfg.AuxiliaryEnabled(),
	}
	if b := rs.GetBundle(); b != nil {
		info.RulesVersion = b.Version
		info.RuleCount = b.Engine.TotalRules()
	}

	auxiliary := a.cfg.AuxiliaryEnabled()
	return tui.Run(ctx, tui.Options{
		Host:         info,
		StartupError: startupErr,
		NewService: func(ch chan scan.Progress) *scan.Service {
			return scan.NewServiceWithChannel(buildDeps(a.cfg, rs, auxiliary), a.scanConfig(auxiliary), ch)
		},
	})
}
