package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digggggmori-pixel/ferret-bam/internal/collector"
	"github.com/digggggmori-pixel/ferret-bam/internal/output"
	"github.com/digggggmori-pixel/ferret-bam/internal/trust"
)

func (a *app) newClassifyCommand() *cobra.Command {
	var rulesPath string
	cmd := &cobra.Command{
		Use:   "classify <path>",
		Short: "Classify the signature of one executable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := loadRules(a.cfg, rulesPath)
			if err != nil {
				return err
			}
			res := newClassifier(a.cfg, rs).Classify(args[0])
			printClassification(cmd.OutOrStdout(), args[0], res)
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "", "Rule bundle supplying extra deny-list signers")
	return cmd
}

func printClassification(out io.Writer, path string, res trust.Result) {
	fmt.Fprintf(out, "%s\n", path)
	fmt.Fprintf(out, "  status:     %s\n", output.TrustStyle(res.Status).Render(string(res.Status)))
	if res.Signer != "" {
		fmt.Fprintf(out, "  signer:     %s\n", res.Signer)
	}
	if res.Thumbprint != "" {
		fmt.Fprintf(out, "  thumbprint: %s\n", res.Thumbprint)
	}
	if res.Source != trust.SourceNone {
		fmt.Fprintf(out, "  decided by: %s\n", res.Source)
	}
}

func (a *app) newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <device-path>",
		Short: `Rewrite a \Device\HarddiskVolumeN path to a drive-letter path`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved := newVolumeResolver().Resolve(args[0])
			fmt.Fprintln(cmd.OutOrStdout(), resolved)
			if !collector.IsDevicePath(args[0]) {
				fmt.Fprintln(cmd.ErrOrStderr(), "not a device path, left unchanged")
			}
			return nil
		},
	}
}

func (a *app) newRulesCommand() *cobra.Command {
	var rulesPath string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Show the loaded rule bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := loadRules(a.cfg, rulesPath)
			if err != nil {
				return err
			}
			b := rs.GetBundle()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rules %s from %s (%d loaded, %d skipped)\n",
				b.Version, b.Source, b.Engine.TotalRules(), b.Engine.Skipped())
			for _, r := range b.Engine.Rules() {
				fmt.Fprintf(out, "  %-24s %-8s %s\n", r.ID, r.Severity, r.Title)
			}
			if len(b.DenyList) > 0 {
				fmt.Fprintf(out, "Deny-listed signers: %s\n", strings.Join(b.DenyList, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "", "Rule bundle (default rules.json next to the executable)")
	return cmd
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ferret-bam %s\n", version)
			fmt.Fprintf(out, "Go version: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
