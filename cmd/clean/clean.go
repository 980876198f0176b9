// Package clean implements the "clean" subcommand (spec section 6):
// garbage-collects resources with zero live fragments, optionally
// defragmenting compounds whose fragments are scattered across too many
// resources.
package clean

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/imgstash/imgstash/cmd/internal/cli"
	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/compound"
)

// Process implements "imgstash clean [OPTIONS]".
func Process(ctx context.Context, args []string) {
	var common cli.Common
	var defragment bool
	var maxFanout int

	flagSet := flag.NewFlagSet("clean", flag.ExitOnError)
	flagSet.Usage = func() {
		fmt.Fprintf(flagSet.Output(), "Reclaims resources no longer referenced by any compound.\n\n")
		fmt.Fprintf(flagSet.Output(), "Usage: imgstash clean [OPTIONS]\n")
		flagSet.PrintDefaults()
	}
	common.Register(flagSet)
	flagSet.BoolVar(&defragment, "df", false, "Also repack compounds whose fragments span too many resources.")
	flagSet.IntVar(&maxFanout, "max-resource-fanout", 8, "Resource-span threshold that triggers defragmenting a compound (with -df).")

	if err := flagSet.Parse(args); err != nil {
		os.Exit(apierr.ExitCode(apierr.ErrUsage))
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
	removed, err := mgr.Clean(ctx, defragment, maxFanout)
	if err != nil {
		fail(err)
	}
	fmt.Printf("reclaimed %d resources\n", removed)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "imgstash clean: %v\n", err)
	os.Exit(apierr.ExitCode(err))
}
