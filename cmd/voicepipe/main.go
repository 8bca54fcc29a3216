package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/voicepipe/voicepipe/internal/classify"
	"github.com/voicepipe/voicepipe/internal/config"
	"github.com/voicepipe/voicepipe/internal/job"
	"github.com/voicepipe/voicepipe/internal/language"
	"github.com/voicepipe/voicepipe/internal/metrics"
	"github.com/voicepipe/voicepipe/internal/provider"
	"github.com/voicepipe/voicepipe/internal/tui"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "voicepipe",
	Short:         "Normalize audio and transcribe it through cloud speech providers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(
		transcribeCmd(),
		watchCmd(),
		configureCmd(),
		providersCmd(),
		versionCmd(),
	)
}

func transcribeCmd() *cobra.Command {
	var (
		providerName  string
		language      string
		model         string
		punctuate     bool
		diarize       bool
		noNormalize   bool
		outputPath    string
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file",
		Long: `Transcribe an audio file through the configured provider.
The file is normalized (DC offset removal, noise gate, peak leveling)
and split into overlapping chunks when it exceeds the provider's
request size limit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := transcribeOptions{
				providerName:  providerName,
				language:      language,
				model:         model,
				punctuate:     punctuate,
				diarize:       diarize,
				noNormalize:   noNormalize,
				outputPath:    outputPath,
				metricsListen: metricsListen,
			}
			return runTranscribe(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "transcription provider (default from config)")
	cmd.Flags().StringVar(&language, "language", "", "ISO-639-1 language code (default auto-detect)")
	cmd.Flags().StringVar(&model, "model", "", "provider model name")
	cmd.Flags().BoolVar(&punctuate, "punctuate", false, "ask the provider to punctuate the transcript")
	cmd.Flags().BoolVar(&diarize, "diarize", false, "label speakers where the provider supports it")
	cmd.Flags().BoolVar(&noNormalize, "no-normalize", false, "submit the original bytes untouched")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the transcript to a file instead of stdout")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address while running")

	return cmd
}

type transcribeOptions struct {
	providerName  string
	language      string
	model         string
	punctuate     bool
	diarize       bool
	noNormalize   bool
	outputPath    string
	metricsListen string
}

func runTranscribe(cmd *cobra.Command, path string, opts transcribeOptions) error {
	cfg, err := loadConfigOrDefault()
	if err != nil {
		return err
	}

	providerName := opts.providerName
	if providerName == "" {
		providerName = cfg.Transcription.Provider
	}
	p := provider.Get(providerName)
	if p == nil {
		return fmt.Errorf("unknown provider: %s (available: %s)", providerName, strings.Join(provider.List(), ", "))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if int64(len(data)) > p.LargeFileThreshold() {
		fmt.Fprintln(os.Stderr, tui.StyleWarning.Render(
			fmt.Sprintf("large file (%d MB), transcription may take a while", len(data)/(1024*1024))))
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if opts.metricsListen != "" {
		go serveMetrics(opts.metricsListen, reg)
	}

	if !language.IsValidCode(opts.language) {
		return fmt.Errorf("unknown language code %q (use an ISO-639-1 code like 'en')", opts.language)
	}

	jobOpts := job.Options{
		Language:      firstNonEmpty(opts.language, cfg.Transcription.Language),
		Model:         firstNonEmpty(opts.model, cfg.Transcription.Model),
		Punctuate:     opts.punctuate || cfg.Transcription.Punctuate,
		Diarize:       opts.diarize || cfg.Transcription.Diarize,
		SkipNormalize: opts.noNormalize || !cfg.Normalize.Enabled,
	}

	interactive := opts.outputPath == ""
	orch, err := job.New(job.Config{
		Provider:         p,
		APIKey:           cfg.ResolveAPIKey(providerName),
		Planner:          cfg.ToPlanner(),
		NormalizeOptions: cfg.ToNormalizeOptions(),
		PayloadCeiling:   cfg.Chunking.PayloadCeiling,
		Metrics:          m,
		OnUpdate: func(s job.Snapshot) {
			if interactive && !s.Status.Terminal() {
				fmt.Fprintf(os.Stderr, "\r\033[K%s", tui.RenderStatus(s))
			}
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := orch.Start(ctx, job.Source{
		Name: filepath.Base(path),
		MIME: mimeFromExt(path),
		Data: data,
	}, jobOpts)
	if err != nil {
		ce := classify.Classify(err)
		fmt.Fprintln(os.Stderr, tui.RenderError(ce))
		return ce
	}

	final := handle.Wait()
	if interactive {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}
	fmt.Fprintln(os.Stderr, tui.RenderStatus(final))

	switch final.Status {
	case job.StatusCompleted:
		if opts.outputPath != "" {
			if err := os.WriteFile(opts.outputPath, []byte(final.Text+"\n"), 0644); err != nil {
				return fmt.Errorf("failed to write transcript: %w", err)
			}
			fmt.Fprintf(os.Stderr, "transcript written to %s\n", opts.outputPath)
			return nil
		}
		fmt.Println(tui.RenderTranscript(final.Text))
		return nil

	case job.StatusCancelled:
		return nil

	default:
		fmt.Fprintln(os.Stderr, tui.RenderError(final.Err))
		return final.Err
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration wizard",
		Long: `Interactive configuration wizard for voicepipe.
This will guide you through setting up:
- The transcription provider and its API key
- Model and language preferences
- Audio normalization and transcript options`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration wizard error: %w", err)
	}
	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println(tui.StyleSuccess.Render("Configuration saved."))
	configPath, _ := config.GetConfigPath()
	fmt.Printf("Config file location: %s\n", configPath)
	return nil
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List available transcription providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProviders()
		},
	}
}

func runProviders() error {
	cfg, err := loadConfigOrDefault()
	if err != nil {
		return err
	}

	for _, name := range provider.List() {
		p := provider.Get(name)

		mode := "sync"
		if p.Mode() == provider.Async {
			mode = "async"
		}

		key := "no key"
		if cfg.ResolveAPIKey(name) != "" {
			key = "key configured"
		} else if !p.RequiresAPIKey() {
			key = "no key needed"
		}

		fmt.Printf("\n%s [%s, limit %d MB, %s]\n", name, mode, p.PayloadCeiling()/(1024*1024), key)
		for _, m := range p.Models() {
			marker := "  "
			if m == p.DefaultModel() {
				marker = "  * "
			}
			fmt.Printf("%s%s\n", marker, m)
		}
	}

	fmt.Println()
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the voicepipe version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("voicepipe", version)
		},
	}
}

// loadConfigOrDefault tolerates a missing config file, falling back to
// defaults with keys taken from the environment.
func loadConfigOrDefault() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func mimeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
