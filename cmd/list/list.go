// Package list implements the "list" subcommand (spec section 6):
// prints a summary of every compound in the catalog.
package list

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

// Process implements "imgstash list [--details]".
func Process(ctx context.Context, args []string) {
	var common cli.Common
	var detailsFlag bool

	flagSet := flag.NewFlagSet("list", flag.ExitOnError)
	flagSet.Usage = func() {
		fmt.Fprintf(flagSet.Output(), "Lists every compound in the catalog.\n\n")
		fmt.Fprintf(flagSet.Output(), "Usage: imgstash list [OPTIONS]\n")
		flagSet.PrintDefaults()
	}
	common.Register(flagSet)
	flagSet.BoolVar(&detailsFlag, "details", false, "Also print fragment count and encapsulation per compound.")

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
	entries, err := mgr.List(ctx)
	if err != nil {
		fail(err)
	}

	for _, e := range entries {
		if detailsFlag {
			fmt.Printf("%-40s %12s %8d fragments  %s\n", e.Name, sizeutil.Format(e.TotalSize), e.FragmentCount, e.Encaps)
		} else {
			fmt.Printf("%-40s %12s\n", e.Name, sizeutil.Format(e.TotalSize))
		}
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "imgstash list: %v\n", err)
	os.Exit(apierr.ExitCode(err))
}
