// Package statistic implements the "statistic" subcommand (spec
// section 6, supplemented per SPEC_FULL.md section 4.8): reports
// catalog-wide counts, totals, per-backend byte usage, and average
// resource fill ratio.
package statistic

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/imgstash/imgstash/cmd/internal/cli"
	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/compound"
	"github.com/imgstash/imgstash/pkg/sizeutil"
)

// Process implements "imgstash statistic [OPTIONS]".
func Process(ctx context.Context, args []string) {
	var common cli.Common
	var targetResourceSizeFlag string

	flagSet := flag.NewFlagSet("statistic", flag.ExitOnError)
	flagSet.Usage = func() {
		fmt.Fprintf(flagSet.Output(), "Reports catalog-wide counters.\n\n")
		fmt.Fprintf(flagSet.Output(), "Usage: imgstash statistic [OPTIONS]\n")
		flagSet.PrintDefaults()
	}
	common.Register(flagSet)
	flagSet.StringVar(&targetResourceSizeFlag, "rs", "64MB", "Target resource size used to compute the average fill ratio.")

	if err := flagSet.Parse(args); err != nil {
		os.Exit(apierr.ExitCode(apierr.ErrUsage))
	}

	targetResourceSize, err := sizeutil.Parse(targetResourceSizeFlag)
	if err != nil {
		fail(err)
	}

	cat, err := common.OpenCatalog()
	if err != nil {
		fail(err)
	}
	defer cat.Close()

	svc, err := common.OpenBackend(ctx)
	if err != nil {
		fail(err)
	}

	mgr := compound.New(cat, svc, nil)
	stat, err := mgr.Statistic(ctx, targetResourceSize)
	if err != nil {
		fail(err)
	}

	fmt.Printf("compounds:            %d\n", stat.CompoundCount)
	fmt.Printf("live fragments:       %d\n", stat.LiveFragmentCount)
	fmt.Printf("resources:            %d\n", stat.ResourceCount)
	fmt.Printf("total stored bytes:   %s\n", sizeutil.Format(stat.TotalStoredBytes))
	fmt.Printf("dedup ratio:          %.2f\n", stat.DedupRatio)
	fmt.Printf("average fill ratio:   %.2f\n", stat.AverageFillRatio)
	for kind, bytes := range stat.PerBackendBytes {
		fmt.Printf("  %-10s %s\n", kind, sizeutil.Format(bytes))
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "imgstash statistic: %v\n", err)
	os.Exit(apierr.ExitCode(err))
}
