// Package download implements the "download" subcommand (spec section
// 6): reassembles a named compound's original byte stream to a file or
// stdout, verifying total_hash.
package download

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/imgstash/imgstash/cmd/internal/cli"
	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/catalog"
	"github.com/imgstash/imgstash/pkg/compound"
	"github.com/imgstash/imgstash/pkg/progressio"
	"github.com/imgstash/imgstash/pkg/rescache"
)

// Process implements "imgstash download -n <name> [-o <path>]"; with -o
// omitted or "-", the stream is written to stdout.
func Process(ctx context.Context, args []string) {
	var common cli.Common
	var nameFlag string
	var outputFlag string

	flagSet := flag.NewFlagSet("download", flag.ExitOnError)
	flagSet.Usage = func() {
		fmt.Fprintf(flagSet.Output(), "Reassembles a named compound's original byte stream.\n\n")
		fmt.Fprintf(flagSet.Output(), "Usage: imgstash download -n <name> [OPTIONS]\n")
		flagSet.PrintDefaults()
	}
	common.Register(flagSet)
	flagSet.StringVar(&nameFlag, "n", "", "Name of the compound to retrieve.")
	flagSet.StringVar(&outputFlag, "o", "-", `Destination: a file path, or "-" for stdout.`)

	if err := flagSet.Parse(args); err != nil {
		os.Exit(apierr.ExitCode(apierr.ErrUsage))
	}
	if flagSet.NArg() != 0 {
		flagSet.Usage()
		os.Exit(apierr.ExitCode(apierr.ErrUsage))
	}
	if nameFlag == "" {
		fmt.Fprintln(os.Stderr, "imgstash download: -n is required")
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

	mgr := compound.New(cat, svc, rescache.New(256<<20))

	out := os.Stdout
	if outputFlag != "-" {
		f, err := os.Create(outputFlag)
		if err != nil {
			fail(fmt.Errorf("opening output file: %w", err))
		}
		defer f.Close()
		out = f
	}

	var totalSize int64
	_ = cat.View(func(tx *catalog.Tx) error {
		c, err := tx.GetCompound(nameFlag)
		if err == nil && c != nil {
			totalSize = c.TotalSize
		}
		return nil
	})

	tracker := progressio.Start(nameFlag, totalSize)
	err = mgr.Download(ctx, nameFlag, tracker.CountingWriter(out))
	tracker.Stop(err)
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "imgstash download: %v\n", err)
	os.Exit(apierr.ExitCode(err))
}
