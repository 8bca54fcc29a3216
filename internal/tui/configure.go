package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/voicepipe/voicepipe/internal/config"
	lang "github.com/voicepipe/voicepipe/internal/language"
	"github.com/voicepipe/voicepipe/internal/provider"
)

// ConfigureResult holds the configuration result from the wizard
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// providerDisplayNames maps provider IDs to human-readable names
var providerDisplayNames = map[string]string{
	"openai":     "OpenAI Whisper",
	"elevenlabs": "ElevenLabs Scribe",
	"assemblyai": "AssemblyAI",
}

func displayName(name string) string {
	if dn, ok := providerDisplayNames[name]; ok {
		return dn
	}
	return name
}

// Run starts the configuration wizard. A nil config starts from defaults.
func Run(existing *config.Config) (*ConfigureResult, error) {
	clearScreen()
	fmt.Println(Logo())
	fmt.Println()

	cfg := existing
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]config.ProviderConfig)
	}

	if err := editProvider(cfg); err != nil {
		return &ConfigureResult{Cancelled: true}, err
	}
	if err := editTranscription(cfg); err != nil {
		return &ConfigureResult{Cancelled: true}, err
	}
	if err := editProcessing(cfg); err != nil {
		return &ConfigureResult{Cancelled: true}, err
	}

	confirmed, err := showSummary(cfg)
	if err != nil {
		return &ConfigureResult{Cancelled: true}, err
	}
	if !confirmed {
		return &ConfigureResult{Cancelled: true}, nil
	}

	return &ConfigureResult{Config: cfg}, nil
}

// editProvider selects the transcription service and collects its API key.
func editProvider(cfg *config.Config) error {
	options := providerOptions()

	selected := cfg.Transcription.Provider
	if selected == "" {
		selected = options[0].Value
	}

	desc := "Choose which service to use for speech-to-text"
	if cfg.Transcription.Provider != "" {
		desc = fmt.Sprintf("Currently: %s", displayName(cfg.Transcription.Provider))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Transcription Provider").
				Description(desc).
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Transcription.Provider = selected
	// Switching providers invalidates the previous model choice.
	if p := provider.Get(selected); p != nil && !modelKnown(p, cfg.Transcription.Model) {
		cfg.Transcription.Model = ""
	}

	return editAPIKey(cfg, selected)
}

func editAPIKey(cfg *config.Config, providerName string) error {
	p := provider.Get(providerName)
	if p == nil || !p.RequiresAPIKey() {
		return nil
	}

	apiKey := cfg.Providers[providerName].APIKey
	desc := fmt.Sprintf("Or leave empty to use the %s environment variable", p.EnvVar())
	if apiKey != "" {
		desc = "Currently set. Leave unchanged or paste a new key."
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("%s API Key", displayName(providerName))).
				Description(desc).
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if s == "" || p.ValidateAPIKey(s) {
						return nil
					}
					return fmt.Errorf("that does not look like a %s key", displayName(providerName))
				}).
				Value(&apiKey),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	if apiKey != "" {
		cfg.Providers[providerName] = config.ProviderConfig{APIKey: apiKey}
	}
	return nil
}

// editTranscription selects the model and language for the chosen provider.
func editTranscription(cfg *config.Config) error {
	p := provider.Get(cfg.Transcription.Provider)
	if p == nil {
		return fmt.Errorf("no provider selected")
	}

	var modelOptions []huh.Option[string]
	for _, m := range p.Models() {
		label := m
		if m == p.DefaultModel() {
			label = m + " (recommended)"
		}
		modelOptions = append(modelOptions, huh.NewOption(label, m))
	}

	selectedModel := cfg.Transcription.Model
	if selectedModel == "" {
		selectedModel = p.DefaultModel()
	}

	language := cfg.Transcription.Language
	langDesc := "ISO-639-1 code (e.g., 'en', 'es', 'fr') or empty for auto-detect"
	if language != "" {
		langDesc = fmt.Sprintf("Currently: %s. %s", language, langDesc)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Transcription Model").
				Options(modelOptions...).
				Value(&selectedModel),
			huh.NewInput().
				Title("Language").
				Description(langDesc).
				Placeholder("auto-detect").
				Validate(func(s string) error {
					if lang.IsValidCode(s) {
						return nil
					}
					return fmt.Errorf("unknown language code %q", s)
				}).
				Value(&language),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Transcription.Model = selectedModel
	cfg.Transcription.Language = language
	return nil
}

// editProcessing toggles normalization and transcript post-options.
func editProcessing(cfg *config.Config) error {
	normalize := cfg.Normalize.Enabled
	punctuate := cfg.Transcription.Punctuate
	diarize := cfg.Transcription.Diarize

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Normalize audio before upload?").
				Description("Removes DC offset, gates background noise and levels the peak").
				Value(&normalize),
			huh.NewConfirm().
				Title("Punctuate transcript?").
				Value(&punctuate),
			huh.NewConfirm().
				Title("Label speakers (diarization)?").
				Description("Only applied by providers that support it").
				Value(&diarize),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Normalize.Enabled = normalize
	cfg.Transcription.Punctuate = punctuate
	cfg.Transcription.Diarize = diarize
	return nil
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))
	fmt.Println()

	model := cfg.Transcription.Model
	if model == "" {
		if p := provider.Get(cfg.Transcription.Provider); p != nil {
			model = p.DefaultModel()
		}
	}
	fmt.Printf("  %s %s (%s)\n", StyleLabel.Render("Provider:"), displayName(cfg.Transcription.Provider), model)

	fmt.Printf("  %s %s\n", StyleLabel.Render("Language:"), lang.FromCode(cfg.Transcription.Language).Name)

	var opts []string
	if cfg.Normalize.Enabled {
		opts = append(opts, "normalize")
	}
	if cfg.Transcription.Punctuate {
		opts = append(opts, "punctuate")
	}
	if cfg.Transcription.Diarize {
		opts = append(opts, "diarize")
	}
	if len(opts) == 0 {
		opts = append(opts, "none")
	}
	fmt.Printf("  %s %s\n", StyleLabel.Render("Processing:"), strings.Join(opts, ", "))

	if _, ok := cfg.Providers[cfg.Transcription.Provider]; ok {
		fmt.Printf("  %s stored in config\n", StyleLabel.Render("API key:"))
	} else if p := provider.Get(cfg.Transcription.Provider); p != nil && p.RequiresAPIKey() {
		fmt.Printf("  %s from %s\n", StyleLabel.Render("API key:"), p.EnvVar())
	}

	fmt.Println()

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}

	return confirmed, nil
}

// providerOptions lists registered providers as form options.
func providerOptions() []huh.Option[string] {
	var options []huh.Option[string]
	for _, name := range provider.List() {
		options = append(options, huh.NewOption(displayName(name), name))
	}
	return options
}

func modelKnown(p provider.Provider, model string) bool {
	if model == "" {
		return true
	}
	for _, m := range p.Models() {
		if m == model {
			return true
		}
	}
	return false
}
