// Command soundmark is the CLI surface over the fingerprinting engine:
// build an index from a directory of reference audio, then identify
// query clips against it. Verb dispatch follows the same os.Args[1]
// switch shape as the teacher's main/main.go, generalized to flag-based
// subcommands to match the specification's `-i`/`-o`/`-d` surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"soundmark/internal/audio"
	"soundmark/internal/config"
	"soundmark/internal/dsp"
	"soundmark/internal/errs"
	"soundmark/internal/ingest"
	"soundmark/internal/logging"
	"soundmark/internal/match"
	"soundmark/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  soundmark build -i <dir> -o <db> [-c <config.yaml>] [-replace]")
	fmt.Fprintln(os.Stderr, "  soundmark identify -d <db> -i <file> [-c <config.yaml>] [-min-confidence N]")
	fmt.Fprintln(os.Stderr, "  soundmark stats -d <db>")
	fmt.Fprintln(os.Stderr, "  soundmark list -d <db>")
	fmt.Fprintln(os.Stderr, "  soundmark clean -d <db>")
	fmt.Fprintln(os.Stderr, "  soundmark visualize -i <file> -o <png> [-c <config.yaml>]")
}

func run(args []string) int {
	config.LoadDotEnv(".env")

	if len(args) < 1 {
		usage()
		return 2
	}

	switch args[0] {
	case "build":
		return cmdBuild(args[1:])
	case "identify":
		return cmdIdentify(args[1:])
	case "stats":
		return cmdStats(args[1:])
	case "list":
		return cmdList(args[1:])
	case "clean":
		return cmdClean(args[1:])
	case "visualize":
		return cmdVisualize(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		usage()
		return 2
	}
}

// openStore picks the Index Store backend from the -d/-o argument's
// shape: a Postgres DSN opens the Postgres-backed store (for corpora too
// large for one file), anything else is treated as a sqlite file path
// (the specification's default "single portable file" store).
func openStore(dbPath string) (store.Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("-d <db> is required")
	}
	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		return store.OpenPostgres(dbPath)
	}
	return store.OpenSQLite(dbPath)
}

func cmdBuild(args []string) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	inputDir := fs.String("i", "", "directory to ingest")
	dbPath := fs.String("o", "", "output database file")
	cfgPath := fs.String("c", "", "optional YAML config file")
	replace := fs.Bool("replace", false, "replace existing tracks instead of skipping them")
	verbose := fs.Bool("verbose", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	logging.Configure(*verbose, false)
	log := logging.Default()

	if *inputDir == "" || *dbPath == "" {
		fmt.Fprintln(os.Stderr, "build requires -i <dir> and -o <db>")
		return 2
	}

	p, err := config.Load(*cfgPath)
	if err != nil {
		log.Error("invalid config", "error", err)
		return 2
	}

	st, err := openStore(*dbPath)
	if err != nil {
		log.Error("failed to open store", "error", err)
		return 2
	}
	defer st.Close()

	ctx := context.Background()
	if saved, ok, err := st.SavedParams(ctx); err == nil && ok {
		if !saved.Equal(p) {
			log.Error("refusing to build: config differs from the database's existing parameters")
			return 2
		}
	}
	if err := st.SaveParams(ctx, p); err != nil {
		log.Error("failed to persist build parameters", "error", err)
		return 2
	}

	start := time.Now()
	result, err := ingest.Run(ctx, *inputDir, st, p, *replace)
	if err != nil {
		log.Error("ingest failed", "error", err)
		return 2
	}

	log.Info("ingest complete",
		"files_seen", result.FilesSeen,
		"files_ingested", result.FilesIngested,
		"files_failed", result.FilesFailed,
		"postings", result.TotalPostings,
		"elapsed", time.Since(start),
	)
	for _, f := range result.FailedFiles {
		log.Warn("file failed to ingest", "path", f)
	}
	return 0
}

func cmdIdentify(args []string) int {
	fs := flag.NewFlagSet("identify", flag.ContinueOnError)
	dbPath := fs.String("d", "", "database file")
	inputFile := fs.String("i", "", "sample file to identify")
	cfgPath := fs.String("c", "", "optional YAML config file")
	minConfidence := fs.Float64("min-confidence", 1.5, "minimum votes-ratio to declare a match")
	auditDSN := fs.String("audit-dsn", "", "optional Postgres DSN for the query audit log")
	verbose := fs.Bool("verbose", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	logging.Configure(*verbose, false)
	log := logging.Default()

	if *dbPath == "" || *inputFile == "" {
		fmt.Fprintln(os.Stderr, "identify requires -d <db> and -i <file>")
		return 2
	}

	p, err := config.Load(*cfgPath)
	if err != nil {
		log.Error("invalid config", "error", err)
		return 2
	}

	st, err := openStore(*dbPath)
	if err != nil {
		log.Error("failed to open store", "error", err)
		return 2
	}
	defer st.Close()

	ctx := context.Background()
	if saved, ok, serr := st.SavedParams(ctx); serr == nil && ok && !saved.Equal(p) {
		log.Error("refusing to identify", "error", errs.ParamsMismatch("query parameters differ from the database's build parameters"))
		return 2
	}

	var audit store.AuditLog = store.NoopAuditLog{}
	if *auditDSN != "" {
		if a, err := store.NewGormAuditLog(*auditDSN); err == nil {
			audit = a
			defer audit.Close()
		} else {
			log.Warn("audit log unavailable, continuing without it", "error", err)
		}
	}

	start := time.Now()
	result, err := match.IdentifyFile(ctx, st, *inputFile, p)
	elapsed := time.Since(start)
	if err != nil {
		log.Error("identify failed", "error", err)
		var e *errs.Error
		if errors.As(err, &e) && e.Kind == errs.KindSignal {
			fmt.Println("no match")
			return 1
		}
		return 2
	}

	sessionID := fmt.Sprintf("session_%d", time.Now().UnixNano())
	matched := result.TrackID != "" && result.Confidence >= *minConfidence
	if err := audit.RecordSession(ctx, store.QuerySession{
		ID:            sessionID,
		SampleRate:    0,
		TotalPeaks:    result.TotalPeaks,
		TotalPairs:    result.TotalPairs,
		TotalHashes:   result.TotalHashes,
		MatchFound:    matched,
		BestTrackID:   result.TrackID,
		Score:         result.Votes,
		Confidence:    result.Confidence,
		ProcessTimeMs: float64(elapsed.Milliseconds()),
	}, nil); err != nil {
		log.Warn("failed to write audit log", "error", err)
	}

	if !matched {
		fmt.Println("no match")
		return 1
	}

	fmt.Println(result.TrackID)
	log.Info("match found",
		"track_id", result.TrackID,
		"delta", result.Delta,
		"votes", result.Votes,
		"confidence", result.Confidence,
		"elapsed", elapsed,
	)
	return 0
}

func cmdStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	dbPath := fs.String("d", "", "database file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	st, err := openStore(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer st.Close()

	stats, err := st.Stats(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	fmt.Printf("tracks: %d\n", stats.TotalTracks)
	fmt.Printf("fingerprints: %d\n", stats.TotalFingerprints)
	return 0
}

func cmdList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	dbPath := fs.String("d", "", "database file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	st, err := openStore(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer st.Close()

	tracks, err := st.Tracks(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	for _, t := range tracks {
		fmt.Printf("%s\t%s\n", t.ID, t.Label)
	}
	return 0
}

func cmdClean(args []string) int {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	dbPath := fs.String("d", "", "database file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	st, err := openStore(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer st.Close()

	ctx := context.Background()
	tracks, err := st.Tracks(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	for _, t := range tracks {
		if err := st.DeleteTrack(ctx, t.ID); err != nil {
			fmt.Fprintf(os.Stderr, "failed to delete %s: %v\n", t.ID, err)
		}
	}
	fmt.Printf("removed %d tracks\n", len(tracks))
	return 0
}

// cmdVisualize dumps one audio file's spectrogram as a grayscale PNG, a
// debugging aid for inspecting peak density and STFT parameter choices
// without a database round-trip.
func cmdVisualize(args []string) int {
	fs := flag.NewFlagSet("visualize", flag.ContinueOnError)
	inputFile := fs.String("i", "", "audio file to render")
	outputPath := fs.String("o", "", "output PNG path")
	cfgPath := fs.String("c", "", "optional YAML config file")
	floorDB := fs.Float64("floor-db", -80, "dB value mapped to black")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *inputFile == "" || *outputPath == "" {
		fmt.Fprintln(os.Stderr, "visualize requires -i <file> and -o <png>")
		return 2
	}

	p, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	decoded, err := audio.Decode(*inputFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	channels := audio.ToMono(decoded, p)

	spec, err := dsp.Compute(channels[0], decoded.SampleRate, p)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := spec.WriteImage(*outputPath, *floorDB); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return 0
}
