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

	configFile = flag.String("config", "", "")
	method     = flag.String("method", "", "")
	downscale  = flag.Int("downscale", 0, "")
	maxLayer   = flag.Int("max-layer", -1, "")
	inputPath  = flag.String("input-path", "", "")
	outputPath = flag.String("output-path", "", "")

	labeled      = flag.Bool("labeled", false, "")
	copyMetadata = flag.Bool("copy-metadata", false, "")
	inPlace      = flag.Bool("in-place", false, "")
	consolidate  = flag.Bool("consolidate", false, "")
)

const helpMessage = `
zarr-scale builds a multiresolution pyramid from a zarr array. The base is
stored at "<output>/base" and each reduced level at "<output>/1", "<output>/2"...
with a "multiscales" attribute listing them on the output group.

Usage: zarr-scale [options] <input> <output>

  where input  = store locator holding the base array
        output = store locator for the pyramid group

	-method         =string   nearest (default), zoom, local_mean, gaussian or laplacian.
	-downscale      =number   Reduction factor along Y and X per level (default 2).
	-max-layer      =number   Levels generated above the base (default 4).
	-input-path     =string   Array within the input store (default: root).
	-output-path    =string   Group within the output store (default: root).
	-config         =string   TOML configuration file; flags override it.

	-labeled        (flag)    Fail if a level holds values the base does not.
	-copy-metadata  (flag)    Copy the base attributes onto the group.
	-in-place       (flag)    The input is already the base of the output group.
	-consolidate    (flag)    Write consolidated metadata for the group.
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

	pc := cfg.Pyramid
	if *method != "" {
		if pc.Method, err = zarr.ParseMethod(*method); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *downscale > 0 {
		pc.Downscale = *downscale
	}
	if *maxLayer >= 0 {
		pc.MaxLayer = *maxLayer
	}
	pc.Labeled = pc.Labeled || *labeled
	pc.CopyMetadata = pc.CopyMetadata || *copyMetadata
	pc.InPlace = pc.InPlace || *inPlace
	pc.Consolidate = pc.Consolidate || *consolidate
	if pc.Timeout == 0 {
		pc.Timeout = cfg.Transfer.Timeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := scale(ctx, flag.Arg(0), flag.Arg(1), pc)
	stop()
	zarr.Shutdown()
	os.Exit(code)
}

func scale(ctx context.Context, input, output string, pc zarr.PyramidConfig) int {
	src, err := zarr.OpenStore(ctx, input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening input: %v\n", err)
		return 1
	}
	defer zarr.CloseStore(src)
	dst := src
	if output != input {
		if dst, err = zarr.OpenStore(ctx, output); err != nil {
			fmt.Fprintf(os.Stderr, "opening output: %v\n", err)
			return 1
		}
		defer zarr.CloseStore(dst)
	}

	b, err := zarr.NewPyramidBuilder(src, dst, pc)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	ms, err := b.Build(ctx, *inputPath, *outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scaling %s failed: %v\n", input, err)
		return 1
	}
	fmt.Printf("wrote %d levels of %s to %s\n", len(ms.Datasets), input, output)
	return 0
}
