package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	zarr "github.com/qri-io/zarr-transfer"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	dryrun        = flag.Bool("dryrun", false, "")
	resume        = flag.Bool("resume", false, "")
	verify        = flag.Bool("verify", false, "")
	verifyContent = flag.Bool("verify-content", false, "")
	checkSource   = flag.Bool("check-source", false, "")

	configFile = flag.String("config", "", "")
	order      = flag.String("order", "", "")
	timeout    = flag.Duration("timeout", 0, "")
	srcPath    = flag.String("path", "", "")
)

const helpMessage = `
zarr-fetch mirrors a zarr array, or a multiscale image group with all of its
resolution levels, from one store to another. Chunks are copied still
compressed, one at a time, stopping at the first failure.

Usage: zarr-fetch [options] <source> <dest>

  where source, dest = store locators:
          http(s)://host/image/123/   read-only image server
          badger://<dir>              badger key/value store
          file://<dir>, mem://, gs://<bucket>
          <dir>                       local directory

	-path           =string   Node within the source to fetch (default: root).
	-order          =string   Dimensions from outermost to innermost, e.g. "1,0,2,3,4".
	-timeout        =duration Limit on each chunk fetch or store, e.g. "30s".
	-config         =string   TOML configuration file; flags override it.

	-resume         (flag)    Skip chunks already at the destination.
	-verify         (flag)    Only check that every chunk is at the destination.
	-check-source   (flag)    With -verify, also check the source has every chunk.
	-verify-content (flag)    With -verify, compare chunk contents too.
	-dryrun         (flag)    Log what would be copied without copying.
	-verbose        (flag)    Run in verbose mode.
	-h, -help       (flag)    Show help message

Exits 2 when the source holds no array or group, or lacks one of its chunks.
Exits 1 on any other failure.
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() {
		fmt.Print(helpMessage)
	}
	flag.Parse()

	if *showHelp || flag.NArg() != 2 {
		flag.Usage()
		os.Exit(0)
	}

	cfg, err := zarr.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.Logging.Verbose = cfg.Logging.Verbose || *runVerbose
	cfg.Logging.SetLogger()

	tc := cfg.Transfer
	switch {
	case *verify:
		tc.Mode = zarr.ModeVerify
	case *resume:
		tc.Mode = zarr.ModeResume
	}
	tc.DryRun = tc.DryRun || *dryrun
	tc.VerifyContent = tc.VerifyContent || *verifyContent
	if *checkSource {
		tc.CheckSource, tc.CheckDestination = true, true
	}
	if *timeout > 0 {
		tc.Timeout = zarr.Duration(*timeout)
	}
	if *order != "" {
		if tc.Order, err = zarr.ParseIntList(*order); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := fetch(ctx, flag.Arg(0), flag.Arg(1), tc)
	stop()
	zarr.Shutdown()
	os.Exit(code)
}

func fetch(ctx context.Context, source, dest string, tc zarr.TransferConfig) int {
	start := time.Now()
	src, err := zarr.OpenStore(ctx, source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening source: %v\n", err)
		return 1
	}
	defer zarr.CloseStore(src)
	dst, err := zarr.OpenStore(ctx, dest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening destination: %v\n", err)
		return 1
	}
	defer zarr.CloseStore(dst)

	stats, err := zarr.NewMirror(src, dst, tc).Run(ctx, *srcPath, *srcPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch failed after %s: %v\n", stats, err)
		code := exitCode(err)
		if code == 2 {
			fmt.Fprintf(os.Stderr, "missing from %s\n", source)
		}
		return code
	}
	zarr.Infof("Fetched %s in %s", stats, time.Since(start))
	return 0
}

// exitCode is 2 when the source lacks the node or one of its chunks and 1
// for every other failure, including chunks a verify run finds missing.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if !errors.Is(err, zarr.ErrNotFound) {
		return 1
	}
	var ce *zarr.ChunkError
	if errors.As(err, &ce) && ce.Op != "fetch" {
		return 1
	}
	return 2
}
