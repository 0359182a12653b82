package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
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

	addr       = flag.String("addr", zarr.DefaultWebAddress, "")
	prefix     = flag.String("prefix", "/", "")
	configFile = flag.String("config", "", "")
)

const helpMessage = `
zarr-serve publishes a zarr store read-only over HTTP so it can be fetched
with zarr-fetch or opened by browser viewers.

Usage: zarr-serve [options] <store>

	-addr           =string   Listen address (default "localhost:8000").
	-prefix         =string   URL path the store is served below (default "/").
	-config         =string   TOML configuration file for logging.
	-verbose        (flag)    Run in verbose mode.
	-h, -help       (flag)    Show help message
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() {
		fmt.Print(helpMessage)
	}
	flag.Parse()

	if *showHelp || flag.NArg() != 1 {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := serve(ctx, flag.Arg(0))
	stop()
	zarr.Shutdown()
	os.Exit(code)
}

func serve(ctx context.Context, locator string) int {
	store, err := zarr.OpenStore(ctx, locator)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening store: %v\n", err)
		return 1
	}
	defer zarr.CloseStore(store)

	srv := &http.Server{
		Addr:        *addr,
		Handler:     zarr.NewHandler(store, *prefix),
		ReadTimeout: 1 * time.Hour,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Serving %s at http://%s%s ...\n", locator, *addr, *prefix)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
