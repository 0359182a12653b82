package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	zarr "github.com/qri-io/zarr-transfer"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	dimensions = flag.Int("dimensions", 5, "")
	configFile = flag.String("config", "", "")
	timeout    = flag.Duration("timeout", 0, "")
)

const helpMessage = `
zarr-rechunk rewrites a zarr array with a new chunk shape.

Usage: zarr-rechunk [options] <source> <target> <chunks>

  where source = store locator holding the array
        target = store locator for the rewritten array
        chunks = comma separated chunk sizes, e.g. "1,1,1,512,512"

	-dimensions     =number   Number of chunk sizes expected (default 5).
	-timeout        =duration Limit on each chunk store, e.g. "30s".
	-config         =string   TOML configuration file; flags override it.
	-verbose        (flag)    Run in verbose mode.
	-h, -help       (flag)    Show help message
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() {
		fmt.Print(helpMessage)
	}
	flag.Parse()

	if *showHelp || flag.NArg() != 3 {
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

	chunks, err := zarr.ParseIntList(flag.Arg(2))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(chunks) != *dimensions {
		fmt.Fprintf(os.Stderr, "got %d chunk sizes, expected %d dimensions\n", len(chunks), *dimensions)
		os.Exit(1)
	}
	tc := cfg.Transfer
	if *timeout > 0 {
		tc.Timeout = zarr.Duration(*timeout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := rechunk(ctx, flag.Arg(0), flag.Arg(1), chunks, tc)
	stop()
	zarr.Shutdown()
	os.Exit(code)
}

func rechunk(ctx context.Context, source, target string, chunks []int, tc zarr.TransferConfig) int {
	src, err := zarr.OpenStore(ctx, source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening source: %v\n", err)
		return 1
	}
	defer zarr.CloseStore(src)
	dst, err := zarr.OpenStore(ctx, target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening target: %v\n", err)
		return 1
	}
	defer zarr.CloseStore(dst)

	stats, err := zarr.Rechunk(ctx, src, "", dst, "", chunks, tc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rechunk failed: %v\n", err)
		return 1
	}
	fmt.Printf("rechunked %s to %v: %s\n", source, chunks, stats)
	return 0
}
