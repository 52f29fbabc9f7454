package enginecmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/MakeNowJust/heredoc"

	"go.lipi.dev/providerd/engine"
	"go.lipi.dev/providerd/registry"
	"go.lipi.dev/providerd/selector"
)

type ScanCmd struct {
	EngineFlags `embed:""`

	JSON bool `name:"json" help:"print the result as JSON"`

	out io.Writer `kong:"-"`
}

type scanReport struct {
	Selection selector.Selection `json:"selection"`
	Providers []engine.Provider  `json:"providers"`
}

// Run performs one full pass. Finding no provider is reported, not
// returned as an error.
func (cmd *ScanCmd) Run(ctx context.Context) error {
	cfg, reg, err := cmd.load(ctx)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg, registry.NewStore(reg), newProber(cfg))
	if err != nil {
		return err
	}

	sel, err := eng.Reselect(ctx, engine.TriggerManual)
	if err != nil {
		return err
	}

	out := cmd.out
	if out == nil {
		out = os.Stdout
	}

	report := scanReport{Selection: sel, Providers: eng.Providers()}
	if cmd.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return writeTable(out, report)
}

func writeTable(out io.Writer, report scanReport) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tKIND\tPRIORITY\tOUTCOME\tLATENCY\tSCORE")
	for _, p := range report.Providers {
		mark := ""
		if p.Active {
			mark = "*"
		}
		outcome, latency, score := "-", "-", "-"
		if p.Result != nil {
			outcome = string(p.Result.Outcome)
			latency = p.Result.Latency.Round(time.Millisecond).String()
		}
		if p.Score != nil {
			score = formatScore(p.Score.Value, p.Score.Eligible)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			mark, p.Descriptor.ID, p.Descriptor.Kind, p.Descriptor.Priority,
			outcome, latency, score)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	sel := report.Selection
	if !sel.Active() {
		_, err := fmt.Fprint(out, heredoc.Doc(`

			No provider available. Check that the endpoints are running
			and reachable, or relax the --filter capability.
		`))
		return err
	}

	_, err := fmt.Fprint(out, heredoc.Docf(`

		Selected %s (%s), score %.1f, generation %d.
	`, sel.Descriptor.DisplayName(), sel.DescriptorID, sel.Score.Value, sel.Generation))
	return err
}
