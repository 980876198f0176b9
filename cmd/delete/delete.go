// Package delete implements the "delete" subcommand (spec section 6):
// removes a named compound, decrementing its fragments' refcounts.
// Orphaned resources are reclaimed by "clean", not here.
package delete

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/imgstash/imgstash/cmd/internal/cli"
	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/compound"
)

// Process implements "imgstash delete -n <name>".
func Process(ctx context.Context, args []string) {
	var common cli.Common
	var nameFlag string

	flagSet := flag.NewFlagSet("delete", flag.ExitOnError)
	flagSet.Usage = func() {
		fmt.Fprintf(flagSet.Output(), "Deletes a named compound. Idempotent: deleting an absent name succeeds.\n\n")
		fmt.Fprintf(flagSet.Output(), "Usage: imgstash delete -n <name>\n")
		flagSet.PrintDefaults()
	}
	common.Register(flagSet)
	flagSet.StringVar(&nameFlag, "n", "", "Name of the compound to delete.")

	if err := flagSet.Parse(args); err != nil {
		os.Exit(apierr.ExitCode(apierr.ErrUsage))
	}
	if flagSet.NArg() != 0 {
		flagSet.Usage()
		os.Exit(apierr.ExitCode(apierr.ErrUsage))
	}
	if nameFlag == "" {
		fmt.Fprintln(os.Stderr, "imgstash delete: -n is required")
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
	if err := mgr.Delete(ctx, nameFlag); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "imgstash delete: %v\n", err)
	os.Exit(apierr.ExitCode(err))
}
