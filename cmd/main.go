package main

import (
	"flag"
	"fmt"
	"os"

	"tricolor/internal/config"
	"tricolor/internal/dump"
	"tricolor/internal/logger"
	"tricolor/internal/workload"
	"tricolor/pkg/color"

	"github.com/charmbracelet/log"
)

// Main entry point for gcsim, which runs a synthetic workload against the
// collector and reports what it reclaimed.
func main() {
	var (
		help       bool
		verbose    bool
		noColor    bool
		configFile string
		dumpFile   string
		threshold  int
	)

	flag.BoolVar(&help, "h", false, "Show help")
	flag.BoolVar(&verbose, "v", false, "Verbose mode (log every collection)")
	flag.BoolVar(&noColor, "n", false, "No color")
	flag.StringVar(&configFile, "config", "", "Path to a tricolor.toml file")
	flag.StringVar(&dumpFile, "dump", "", "Write a CBOR heap dump to this file")
	flag.IntVar(&threshold, "t", -1, "Override collector.threshold")

	flag.Parse()

	if help {
		fmt.Printf("Usage: %s [options]\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
		return
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		logger.Init(verbose, noColor)
		log.Fatal("Loading configuration failed", "error", err)
	}
	if threshold >= 0 {
		cfg.Collector.Threshold = threshold
	}

	verbose = verbose || cfg.Log.Verbose
	noColor = noColor || cfg.Log.NoColor
	logger.Init(verbose, noColor)
	if noColor {
		color.EnableColor(false)
	}

	r, err := workload.NewRunner(cfg)
	if err != nil {
		log.Fatal("Invalid collector settings", "error", err)
	}

	res, err := r.Run()
	if err != nil {
		log.Fatal("Workload failed", "error", err)
	}

	fmt.Println(color.Heading("Collector Report"))
	fmt.Println(color.Field("rounds", res.Rounds))
	fmt.Println(color.Field("threshold", cfg.Collector.Threshold))
	fmt.Println(color.Field("allocations", res.Allocations))
	fmt.Println(color.Field("collections", res.Collections))
	fmt.Println(color.Field("freed", color.YellowText(fmt.Sprint(res.Freed))))
	fmt.Println(color.Field("peak", res.Peak))
	fmt.Println(color.Field("live", res.Live))
	fmt.Println(color.Field("closures", res.Closures))

	if verbose {
		st := r.Heap().Stats()
		fmt.Println(color.Field("last freed", st.LastFreed))
		fmt.Println(color.Field("last collection", color.GrayText(st.LastDuration.String())))
	}

	if dumpFile == "" {
		return
	}

	f, err := os.Create(dumpFile)
	if err != nil {
		log.Fatal("Cannot create dump", "file", dumpFile, "error", err)
	}
	defer f.Close()

	if err := dump.Write(f, r.Heap()); err != nil {
		log.Error("Writing dump failed", "file", dumpFile, "error", err)
		return
	}
	log.Info("Wrote heap dump", "file", dumpFile, "records", r.Heap().Len())
}
