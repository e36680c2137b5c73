// Command cloak is a demo CLI around the pure cloak.Cloak function:
// read an image file, cloak it, write the cloaked image and analysis
// visualization back out, print the metadata as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/nullface/cloak/cloak"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}

	inputPath := flag.String("in", "", "input image path (required)")
	outputPath := flag.String("out", "", "cloaked output path (default: <in>.cloaked.<ext>)")
	analysisPath := flag.String("analysis", "", "analysis output path (default: <in>.analysis.jpg)")
	strength := flag.String("strength", string(cloak.Standard), "subtle|standard|maximum")
	format := flag.String("format", "jpeg", "jpeg|png")
	quality := flag.Int("quality", 95, "JPEG quality [50,100]")
	seed := flag.Int64("seed", 0, "SPSA RNG seed (0 = nondeterministic)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: cloak -in photo.jpg [-strength standard] [-format jpeg] [-quality 95]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("read %s: %v", *inputPath, err)
	}

	opts := cloak.Options{
		Strength:      cloak.Strength(*strength),
		OutputFormat:  cloak.OutputFormat(*format),
		OutputQuality: *quality,
		Seed:          *seed,
	}

	result, err := cloak.Cloak(context.Background(), data, opts)
	if err != nil {
		log.Fatalf("cloak: %v", err)
	}

	ext := ".jpg"
	if opts.OutputFormat == cloak.FormatPNG {
		ext = ".png"
	}
	outPath := *outputPath
	if outPath == "" {
		base := strings.TrimSuffix(*inputPath, filepath.Ext(*inputPath))
		outPath = base + ".cloaked" + ext
	}
	if err := os.WriteFile(outPath, result.Image, 0o644); err != nil {
		log.Fatalf("write %s: %v", outPath, err)
	}
	fmt.Printf("cloaked image written to %s\n", outPath)

	if result.Analysis != nil {
		aPath := *analysisPath
		if aPath == "" {
			base := strings.TrimSuffix(*inputPath, filepath.Ext(*inputPath))
			aPath = base + ".analysis.jpg"
		}
		if err := os.WriteFile(aPath, result.Analysis, 0o644); err != nil {
			log.Fatalf("write %s: %v", aPath, err)
		}
		fmt.Printf("analysis image written to %s\n", aPath)
	} else {
		fmt.Println("no analysis image produced")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Metadata); err != nil {
		log.Fatalf("encode metadata: %v", err)
	}
}
