package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dtitrack/pkg/config"
	"dtitrack/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	inputFile := flag.String("input", "", "HDF5 file with a tensor field or eigenvectors and FA")
	outputFile := flag.String("output", "", "Output HDF5 fiber file (overrides config)")
	configPath := flag.String("config", "dtitrack.yaml", "YAML configuration file")
	createConfig := flag.Bool("create-config", false, "Write a default configuration file to -config and exit")
	minFA := flag.Float64("min-fa", -1, "Minimum fractional anisotropy (overrides config)")
	minPoints := flag.Int("min-points", 0, "Minimum number of points per fiber (overrides config)")
	minCos := flag.Float64("min-cos", -2, "Minimum cosine between consecutive directions (overrides config)")
	seedStep := flag.Int("seed-step", 0, "Lattice spacing between seeds (overrides config)")
	numWorkers := flag.Int("workers", 0, "Number of tracking workers, 1 to 8 (overrides config)")
	numCores := flag.Int("cores", 0, "Number of CPU cores for the eigendecomposition (overrides config)")
	extractSlices := flag.Bool("extract-slices", false, "Save FA slices with the tracked fibers drawn on top")
	slicesDir := flag.String("slices-dir", "", "Directory to save extracted slices (overrides config)")
	quiet := flag.Bool("quiet", false, "Disable progress bars and stage output")
	flag.Parse()

	if *createConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to create config file: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Command line flags win over the config file
	if *outputFile != "" {
		cfg.Output.FiberFile = *outputFile
	}
	if *minFA >= 0 {
		cfg.Tracking.MinFA = *minFA
	}
	if *minPoints > 0 {
		cfg.Tracking.MinPoints = *minPoints
	}
	if *minCos >= -1 {
		cfg.Tracking.MinCos = *minCos
	}
	if *seedStep > 0 {
		cfg.Tracking.SeedStep = *seedStep
	}
	if *numWorkers > 0 {
		cfg.Processing.NumWorkers = *numWorkers
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *extractSlices {
		cfg.Output.SaveSlices = true
	}
	if *slicesDir != "" {
		cfg.Output.SliceDir = *slicesDir
	}
	if *quiet {
		cfg.Output.Verbose = false
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid parameters: %v", err)
	}

	params := pipeline.ParamsFromConfig(cfg)
	params.InputFile = *inputFile
	params.ShowProgress = !*quiet

	fmt.Println("================================")
	fmt.Println("DETERMINISTIC FIBER TRACKING ON DIFFUSION TENSOR FIELDS")
	fmt.Println("Principal eigenvector tracking after Mori et al.")
	fmt.Println("================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := pipeline.NewRunner(&params)
	summary, err := runner.Process(ctx)
	if err != nil {
		log.Fatalf("Tracking failed: %v", err)
	}

	fmt.Printf("\nTracking completed successfully in %.2f seconds!\n", summary.Duration.Seconds())
	if params.OutputFile != "" {
		fmt.Printf("Fibers saved to: %s\n", params.OutputFile)
	}

	fmt.Printf("\nFiber Statistics:\n")
	fmt.Printf("=================\n")
	fmt.Printf("Seeds processed: %d\n", summary.Seeds)
	fmt.Printf("Fibers kept: %d\n", summary.Fibers)
	fmt.Printf("Total points: %d\n", summary.Points)
	if summary.Fibers > 0 {
		fmt.Printf("Points per fiber: %.1f +/- %.1f\n", summary.MeanPoints, summary.StdDevPoints)
		fmt.Printf("Fiber length (mm): mean %.2f, min %.2f, max %.2f\n",
			summary.MeanLength, summary.MinLength, summary.MaxLength)
		fmt.Printf("Mean FA along fibers: %.3f\n", summary.MeanFA)
		fmt.Printf("Fibers near each fiber midpoint: %.2f\n", summary.MeanNeighbors)
	}

	fmt.Println("\nParallel processing:")
	fmt.Printf("- Used %d tracking workers\n", params.NumWorkers)
	fmt.Printf("- Used %d cores for the eigendecomposition\n", params.NumCores)

	if params.SaveSlices {
		fmt.Printf("\nSlices with fiber overlay saved to: %s\n", params.SliceDir)
	}
}
