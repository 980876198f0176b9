// Package wipe implements the "wipe" subcommand (spec section 6):
// empties the catalog's compound/fragment/resource bookkeeping. It
// never touches the backend unless -c is given, since an operator may
// want to keep the bytes around (e.g. for a separate GC pass) while
// still resetting the catalog.
package wipe

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/imgstash/imgstash/cmd/internal/cli"
	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/catalog"
)

// Process implements "imgstash wipe [-c]".
func Process(ctx context.Context, args []string) {
	var common cli.Common
	var cleanBackendFlag bool

	flagSet := flag.NewFlagSet("wipe", flag.ExitOnError)
	flagSet.Usage = func() {
		fmt.Fprintf(flagSet.Output(), "Empties the catalog.\n\n")
		fmt.Fprintf(flagSet.Output(), "Usage: imgstash wipe [OPTIONS]\n")
		flagSet.PrintDefaults()
	}
	common.Register(flagSet)
	flagSet.BoolVar(&cleanBackendFlag, "c", false, "Also delete every resource's backend-stored bytes before wiping the catalog.")

	if err := flagSet.Parse(args); err != nil {
		os.Exit(apierr.ExitCode(apierr.ErrUsage))
	}

	cat, err := common.OpenCatalog()
	if err != nil {
		fail(err)
	}
	defer cat.Close()

	if cleanBackendFlag {
		svc, err := common.OpenBackend(ctx)
		if err != nil {
			fail(err)
		}

		var resources []catalog.Resource
		if err := cat.View(func(tx *catalog.Tx) error {
			return tx.ListResources(func(r catalog.Resource) bool {
				resources = append(resources, r)
				return true
			})
		}); err != nil {
			fail(err)
		}

		for _, r := range resources {
			if err := svc.Delete(ctx, r.BackendKey); err != nil {
				fail(fmt.Errorf("%w: deleting resource %s: %v", apierr.ErrBackendUnavailable, r.ID, err))
			}
		}
	}

	if err := cat.Wipe(); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "imgstash wipe: %v\n", err)
	os.Exit(apierr.ExitCode(err))
}
