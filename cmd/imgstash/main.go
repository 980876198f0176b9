package main

import (
	"context"
	"fmt"
	"os"

	"github.com/imgstash/imgstash/cmd/clean"
	"github.com/imgstash/imgstash/cmd/delete"
	"github.com/imgstash/imgstash/cmd/download"
	"github.com/imgstash/imgstash/cmd/list"
	"github.com/imgstash/imgstash/cmd/statistic"
	"github.com/imgstash/imgstash/cmd/upload"
	"github.com/imgstash/imgstash/cmd/wipe"
)

const usage = `Usage: imgstash [COMMAND] [ARGS...]

Commands:
  upload      stores a file as a named compound
  download    reassembles a named compound to a file or stdout
  list        lists every compound in the catalog
  delete      deletes a named compound
  clean       reclaims resources no longer referenced by any compound
  statistic   reports catalog-wide counters
  wipe        empties the catalog`

func Run(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	command := args[1]
	switch command {
	case "upload":
		upload.Process(ctx, args[2:])
	case "download":
		download.Process(ctx, args[2:])
	case "list":
		list.Process(ctx, args[2:])
	case "delete":
		delete.Process(ctx, args[2:])
	case "clean":
		clean.Process(ctx, args[2:])
	case "statistic":
		statistic.Process(ctx, args[2:])
	case "wipe":
		wipe.Process(ctx, args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
}

func main() {
	ctx := context.Background()
	Run(ctx, os.Args)
}
