// Package upload implements the "upload" subcommand (spec section 6):
// reads a file (or stdin) and stores it as a named compound.
package upload

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/imgstash/imgstash/cmd/internal/cli"
	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/compound"
	"github.com/imgstash/imgstash/pkg/progressio"
	"github.com/imgstash/imgstash/pkg/rescache"
	"github.com/imgstash/imgstash/pkg/sizeutil"
)

// Process implements "imgstash upload -i <path|-> [OPTIONS]", matching
// the teacher's own <Verb>Process(ctx, args) entry-point shape
// (img_tool/cmd/layer.LayerProcess and friends).
func Process(ctx context.Context, args []string) {
	var common cli.Common
	var inputFlag string
	var nameFlag string
	var overwriteFlag bool
	var updateFlag bool
	var fragmentSizeFlag string
	var resourceSizeFlag string
	var maxFragmentsPerResource int
	var compressorFlag string
	var wrapperFlag string
	var resourceCompressorFlag string
	var resourceWrapperFlag string
	var compressorJobs int

	flagSet := flag.NewFlagSet("upload", flag.ExitOnError)
	flagSet.Usage = func() {
		fmt.Fprintf(flagSet.Output(), "Stores a file (or stdin) as a named compound, deduplicating its fragments.\n\n")
		fmt.Fprintf(flagSet.Output(), "Usage: imgstash upload -i <path|-> [OPTIONS]\n")
		flagSet.PrintDefaults()
	}
	common.Register(flagSet)
	flagSet.StringVar(&inputFlag, "i", "", `Source to ingest: a file path, or "-" for stdin.`)
	flagSet.StringVar(&nameFlag, "n", "", "Compound name. Defaults to the input file's base name; required when reading from stdin.")
	flagSet.BoolVar(&overwriteFlag, "ow", false, "Allow replacing an existing compound of the same name.")
	flagSet.BoolVar(&updateFlag, "u", false, "With -ow, skip the replace entirely if the source is byte-identical to the stored compound.")
	flagSet.StringVar(&fragmentSizeFlag, "fs", "4MB", "Fragment size, e.g. \"0.5MB\" (decimal SI suffixes).")
	flagSet.StringVar(&resourceSizeFlag, "rs", "64MB", "Target resource size before sealing, e.g. \"64MB\".")
	flagSet.IntVar(&maxFragmentsPerResource, "max-fragments-per-resource", 256, "Maximum fragments packed into one resource.")
	flagSet.StringVar(&compressorFlag, "compressor", "zstd", `First-layer (per-fragment) compressor: "none", "gzip", or "zstd".`)
	flagSet.StringVar(&wrapperFlag, "wrapper", "identity", `First-layer (per-fragment) wrapper: "identity", "png", or "svg".`)
	flagSet.StringVar(&resourceCompressorFlag, "resource-compressor", "none", `Second-layer (per-resource) compressor.`)
	flagSet.StringVar(&resourceWrapperFlag, "resource-wrapper", "identity", `Second-layer (per-resource) wrapper.`)
	flagSet.IntVar(&compressorJobs, "compressor-jobs", 1, "Parallel gzip workers; > 1 selects pgzip over the stdlib gzip codec.")

	if err := flagSet.Parse(args); err != nil {
		os.Exit(apierr.ExitCode(apierr.ErrUsage))
	}
	if flagSet.NArg() != 0 {
		flagSet.Usage()
		os.Exit(apierr.ExitCode(apierr.ErrUsage))
	}
	if inputFlag == "" {
		usageFail("-i is required")
	}

	stdin := inputFlag == "-"
	name := nameFlag
	if name == "" {
		if stdin {
			usageFail("-n is required when reading from stdin")
		}
		name = filepath.Base(inputFlag)
	}
	if stdin && updateFlag {
		usageFail("-u cannot be combined with -i -: stdin cannot be read twice for the update comparison")
	}

	fragmentSize, err := sizeutil.Parse(fragmentSizeFlag)
	if err != nil {
		fail(err)
	}
	resourceSize, err := sizeutil.Parse(resourceSizeFlag)
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

	mgr := compound.New(cat, svc, rescache.New(256<<20))

	opts := compound.UploadOptions{
		FragmentSize:            fragmentSize,
		FirstLayer:              api.EncapsulationSpec{Compressor: api.CompressorKind(compressorFlag), Wrapper: api.WrapperKind(wrapperFlag)},
		SecondLayer:             api.EncapsulationSpec{Compressor: api.CompressorKind(resourceCompressorFlag), Wrapper: api.WrapperKind(resourceWrapperFlag)},
		MaxFragmentsPerResource: maxFragmentsPerResource,
		TargetResourceSize:      resourceSize,
		Update:                  updateFlag,
		Overwrite:               overwriteFlag,
		CompressorJobs:          compressorJobs,
	}

	var tracker *progressio.Tracker
	open := func() (io.ReadCloser, error) {
		if stdin {
			if tracker == nil {
				tracker = progressio.Start(name, 0)
			}
			return io.NopCloser(tracker.CountingReader(os.Stdin)), nil
		}

		f, err := os.Open(inputFlag)
		if err != nil {
			return nil, err
		}
		size := int64(0)
		if info, statErr := f.Stat(); statErr == nil {
			size = info.Size()
		}
		if tracker == nil {
			tracker = progressio.Start(name, size)
		} else {
			tracker.SetTotal(size)
		}
		return readCloser{Reader: tracker.CountingReader(f), Closer: f}, nil
	}

	err = mgr.Upload(ctx, name, open, opts)
	if tracker != nil {
		tracker.Stop(err)
	}
	if err != nil {
		fail(err)
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}

func usageFail(msg string) {
	fmt.Fprintf(os.Stderr, "imgstash upload: %s\n", msg)
	os.Exit(apierr.ExitCode(apierr.ErrUsage))
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "imgstash upload: %v\n", err)
	os.Exit(apierr.ExitCode(err))
}
