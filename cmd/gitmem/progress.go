package main

import (
	"fmt"

	"github.com/jmcdonald-ut/gitmem/internal/enrich"
	"github.com/pterm/pterm"
)

// enrichProgressPrinter renders an enrich.Progress stream as a pterm
// progress bar, one bar per phase transition. The teacher's commands print
// bare emoji lines instead; gitmem uses pterm here since enrichment and
// judge runs are long enough to want a live bar rather than a log spray.
type enrichProgressPrinter struct {
	bar   *pterm.ProgressbarPrinter
	phase string
}

func newEnrichProgressPrinter() *enrichProgressPrinter {
	return &enrichProgressPrinter{}
}

func (p *enrichProgressPrinter) onProgress(progress enrich.Progress) {
	if progress.Phase != p.phase {
		if p.bar != nil {
			p.bar.Stop()
		}
		p.phase = progress.Phase
		bar, _ := pterm.DefaultProgressbar.
			WithTotal(max(progress.Total, 1)).
			WithTitle(phaseTitle(progress.Phase)).
			Start()
		p.bar = bar
	}
	if p.bar == nil {
		return
	}
	if progress.Current > p.bar.Current {
		p.bar.Add(progress.Current - p.bar.Current)
	}
	if progress.BatchID != "" {
		p.bar.UpdateTitle(fmt.Sprintf("%s (batch %s: %s)", phaseTitle(progress.Phase), progress.BatchID, progress.BatchStatus))
	}
}

func (p *enrichProgressPrinter) stop() {
	if p.bar != nil {
		p.bar.Stop()
	}
}

func phaseTitle(phase string) string {
	switch phase {
	case enrich.PhaseDiscovering:
		return "Discovering commits"
	case enrich.PhaseMeasuring:
		return "Measuring complexity"
	case enrich.PhaseEnriching:
		return "Classifying commits"
	case enrich.PhaseSubmitting:
		return "Submitting batch"
	case enrich.PhasePolling:
		return "Polling batch status"
	case enrich.PhaseFinalizing:
		return "Rebuilding aggregates and search index"
	default:
		return phase
	}
}
