// Package main provides the gemini-transcribe command line tool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/maauso/gemini-transcribe/internal/bootstrap"
	"github.com/maauso/gemini-transcribe/internal/config"
	"github.com/maauso/gemini-transcribe/internal/transcriber"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// stringSlice collects comma-separated or repeated flag values.
type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }

func (s *stringSlice) Set(v string) error {
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			*s = append(*s, p)
		}
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		output        string
		model         string
		backendName   string
		chunkDuration int
		overlap       int
		instructions  string
		header        string
		headerEvery   int
		speakers      stringSlice
		chunksDir     string
		workers       int
		configPath    string
		publish       bool
		quiet         bool
		showVersion   bool
	)

	flag.StringVar(&output, "output", "transcript.md", "Output file path (-o)")
	flag.StringVar(&output, "o", "transcript.md", "Output file path")
	flag.StringVar(&model, "model", "", "Model to use (-m); empty selects the backend default")
	flag.StringVar(&model, "m", "", "Model to use")
	flag.StringVar(&backendName, "backend", "", "Transcription backend: gemini|openai")
	flag.IntVar(&chunkDuration, "chunk-duration", 1200, "Chunk duration in seconds")
	flag.IntVar(&overlap, "overlap", 10, "Overlap between chunks in seconds")
	flag.StringVar(&instructions, "instructions", "", "Path to custom transcription instructions file (-i)")
	flag.StringVar(&instructions, "i", "", "Path to custom transcription instructions file")
	flag.StringVar(&header, "header", "", "Header text to prepend to the transcript")
	flag.IntVar(&headerEvery, "header-every", 0, "Section header cadence in seconds (900-1200, 0 for default)")
	flag.Var(&speakers, "speakers", "Speaker names (comma-separated or repeated)")
	flag.StringVar(&chunksDir, "chunks-dir", "audio_chunks", "Directory to store audio chunks")
	flag.IntVar(&workers, "workers", 0, "Concurrent chunk transcriptions (0 uses the configured value)")
	flag.StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.config/gemini-transcribe/config.yaml)")
	flag.BoolVar(&publish, "publish", false, "Upload the merged document to S3 after writing it")
	flag.BoolVar(&quiet, "quiet", false, "Suppress progress messages (-q)")
	flag.BoolVar(&quiet, "q", false, "Suppress progress messages")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit (-v)")
	flag.BoolVar(&showVersion, "v", false, "Print version and exit")
	flag.Usage = usage
	flag.Parse()

	if showVersion {
		fmt.Printf("gemini-transcribe %s\n", version)
		return nil
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	audioPath := flag.Arg(0)

	// Remember which flags were given so they can overlay the config.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	// Load .env if present; the real environment still wins.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if set["backend"] {
		cfg.Backend = backendName
	}
	if set["model"] || set["m"] {
		cfg.Model = model
	}
	if set["chunk-duration"] {
		cfg.ChunkDurationSec = chunkDuration
	}
	if set["overlap"] {
		cfg.OverlapSec = overlap
	}
	if set["header-every"] {
		cfg.HeaderEverySec = headerEvery
	}
	if set["chunks-dir"] {
		cfg.ChunksDir = chunksDir
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if quiet {
		cfg.LogLevel = "error"
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if publish && !cfg.S3Enabled() {
		return errors.New("publish requested but S3_BUCKET and S3_REGION are not configured")
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting gemini-transcribe",
		slog.String("version", version),
		slog.String("backend", cfg.Backend),
		slog.String("audio", audioPath),
		slog.String("chunks_dir", cfg.ChunksDir),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	// Without an explicit flag, pick up the instructions file from the
	// working directory when one exists.
	if instructions == "" {
		if found := config.FindInstructionsFile("."); found != "" {
			instructions = found
			logger.Info("using instructions file", slog.String("path", found))
		}
	}
	var instructionsText string
	if instructions != "" {
		data, err := os.ReadFile(instructions)
		if err != nil {
			return fmt.Errorf("read instructions: %w", err)
		}
		instructionsText = string(data)
	}

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := deps.Transcriber.Run(ctx, transcriber.Input{
		AudioPath:     audioPath,
		OutputPath:    output,
		Model:         cfg.Model,
		ChunkDuration: cfg.ChunkDuration(),
		Overlap:       cfg.Overlap(),
		Instructions:  instructionsText,
		HeaderText:    header,
		HeaderEvery:   cfg.HeaderEvery(),
		Speakers:      speakers,
		Publish:       publish,
	})
	if err != nil {
		return err
	}

	logger.Info("transcription complete",
		slog.String("run_id", result.RunID),
		slog.Int("chunks", len(result.Windows)),
		slog.Int("characters", result.Merged),
	)

	// The document path goes to stdout so scripts can consume it.
	fmt.Println(result.OutputPath)
	if result.PublishedURL != "" {
		fmt.Println(result.PublishedURL)
	}
	return nil
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: gemini-transcribe [flags] <audio-file>

Transcribe long audio recordings by splitting them into overlapping
chunks, transcribing each chunk against a remote model, and merging the
results into a single Markdown document.

Flags:
`)
	flag.PrintDefaults()
	fmt.Fprintf(flag.CommandLine.Output(), `
Examples:
  gemini-transcribe interview.wav
  gemini-transcribe interview.wav -o my_transcript.md
  gemini-transcribe interview.wav --chunk-duration 1800
  gemini-transcribe interview.wav --header "# Interview with Dr. Smith"
  gemini-transcribe interview.wav --backend openai --speakers "Ana,Ben"

Environment:
  GEMINI_API_KEY    Google AI API key (gemini backend)
  OPENAI_API_KEY    OpenAI API key (openai backend)
`)
}
