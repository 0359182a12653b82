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

	resume     = flag.Bool("resume", false, "")
	verify     = flag.Bool("verify", false, "")
	axes       = flag.String("axes", "", "")
	compressor = flag.String("compressor", "", "")
	configFile = flag.String("config", "", "")
	timeout    = flag.Duration("timeout", 0, "")
)

const helpMessage = `
zarr-import builds a 5-D zarr array from a directory of image planes saved
one per file as "ZZZ-CCC-TTT.npy". Each plane becomes one chunk.

Usage: zarr-import [options] <plane-dir> <target>

  where plane-dir = directory of .npy plane files
        target    = store locator for the new array

	-axes           =string   Order of the Z, C and T dimensions (default "CZT").
	-compressor     =string   zstd (default), gzip, zlib, lz4 or "none".
	-timeout        =duration Limit on each plane read or chunk store.
	-config         =string   TOML configuration file; flags override it.

	-resume         (flag)    Skip planes already stored in the target.
	-verify         (flag)    Only check that every plane is stored.
	-verbose        (flag)    Run in verbose mode.
	-h, -help       (flag)    Show help message
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

	ic := cfg.Import
	switch {
	case *verify:
		ic.Mode = zarr.ModeVerify
	case *resume:
		ic.Mode = zarr.ModeResume
	}
	if *axes != "" {
		ic.Axes = *axes
	}
	switch *compressor {
	case "":
	case "none":
		ic.Compressor = ""
	default:
		ic.Compressor = *compressor
	}
	if *timeout > 0 {
		ic.Timeout = zarr.Duration(*timeout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := importPlanes(ctx, flag.Arg(0), flag.Arg(1), ic)
	stop()
	zarr.Shutdown()
	os.Exit(code)
}

func importPlanes(ctx context.Context, dir, target string, ic zarr.ImportConfig) int {
	planes, err := zarr.OpenNPYDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading planes: %v\n", err)
		return 1
	}
	dst, err := zarr.OpenStore(ctx, target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening target: %v\n", err)
		return 1
	}
	defer zarr.CloseStore(dst)

	stats, err := zarr.ImportPlanes(ctx, planes, dst, "", ic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed after %s: %v\n", stats, err)
		return 1
	}
	fmt.Printf("imported %s into %s: %s\n", dir, target, stats)
	return 0
}
