package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// DefaultSettingsFile is the settings file looked up when none is given.
const DefaultSettingsFile = "bootstrap.yaml"

// EnvAssetCache overrides Assets.CacheDir when set.
const EnvAssetCache = "BOOTSTRAP_ASSET_CACHE"

// Settings is the bootstrap.yaml configuration.
type Settings struct {
	Project     ProjectSettings    `yaml:"project"`
	Layout      LayoutSettings     `yaml:"layout"`
	Sources     SourceSettings     `yaml:"sources"`
	Identifiers IdentifierSettings `yaml:"identifiers"`
	Install     InstallSettings    `yaml:"install"`
	Packages    PackageSettings    `yaml:"packages"`
	Assets      AssetSettings      `yaml:"assets"`
	Store       StoreSettings      `yaml:"store"`
	Telemetry   TelemetrySettings  `yaml:"telemetry"`
	Policy      PolicySettings     `yaml:"policy"`
}

// ProjectSettings locates the project being bootstrapped.
type ProjectSettings struct {
	// Root is the project directory. Relative paths below are resolved against it.
	Root string `yaml:"root" validate:"required"`

	// ResourcesDir holds the identifier list files.
	ResourcesDir string `yaml:"resources_dir" validate:"required"`
}

// LayoutSettings describes the scaffolded directory layout.
type LayoutSettings struct {
	Enabled bool           `yaml:"enabled"`
	Root    string         `yaml:"root" validate:"required_if=Enabled true"`
	Folders []string       `yaml:"folders" validate:"dive,required"`
	Moves   []MoveSettings `yaml:"moves" validate:"dive"`
	Deletes []string       `yaml:"deletes" validate:"dive,required"`
}

// MoveSettings relocates an existing path into the layout.
type MoveSettings struct {
	From string `yaml:"from" validate:"required"`
	To   string `yaml:"to" validate:"required"`
}

// SourceSettings names the configuration sources for identifier lists.
type SourceSettings struct {
	PackagesFile  string        `yaml:"packages_file" validate:"required"`
	AssetsFile    string        `yaml:"assets_file" validate:"required"`
	Manifest      string        `yaml:"manifest,omitempty"`
	Script        string        `yaml:"script,omitempty"`
	ScriptTimeout time.Duration `yaml:"script_timeout" validate:"gte=0"`
}

// IdentifierSettings controls identifier classification.
type IdentifierSettings struct {
	RegistryPrefix string `yaml:"registry_prefix" validate:"required"`
	SourceHost     string `yaml:"source_host" validate:"required,url"`
	SourceSuffix   string `yaml:"source_suffix"`
	AssetSuffix    string `yaml:"asset_suffix"`
}

// InstallSettings tunes the installation drivers.
type InstallSettings struct {
	PollInterval time.Duration `yaml:"poll_interval" validate:"gte=10ms"`
	ItemDelay    time.Duration `yaml:"item_delay" validate:"gte=0"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=0"`
	StopGrace    time.Duration `yaml:"stop_grace" validate:"gte=0"`
}

// PackageSettings selects and configures the package backend.
type PackageSettings struct {
	Backend        string   `yaml:"backend" validate:"oneof=manifest command"`
	ManifestPath   string   `yaml:"manifest_path" validate:"required_if=Backend manifest"`
	DefaultVersion string   `yaml:"default_version"`
	InstallCommand []string `yaml:"install_command,omitempty"`
	ListCommand    []string `yaml:"list_command,omitempty"`
}

// AssetSettings configures asset lookup and import.
type AssetSettings struct {
	CacheDir   string               `yaml:"cache_dir,omitempty"`
	ImportDir  string               `yaml:"import_dir" validate:"required"`
	StagingDir string               `yaml:"staging_dir,omitempty"`
	Remote     *RemoteCacheSettings `yaml:"remote,omitempty"`
}

// RemoteCacheSettings points at an asset cache reachable over SFTP.
type RemoteCacheSettings struct {
	Host           string        `yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port           int           `yaml:"port" validate:"gte=0,lte=65535"`
	User           string        `yaml:"user" validate:"required"`
	KeyPath        string        `yaml:"key_path,omitempty"`
	Password       string        `yaml:"password,omitempty"`
	Dir            string        `yaml:"dir" validate:"required"`
	KnownHostsPath string        `yaml:"known_hosts,omitempty"`
	Insecure       bool          `yaml:"insecure,omitempty"`
	Timeout        time.Duration `yaml:"timeout" validate:"gte=0"`
}

// StoreSettings configures the install history database.
type StoreSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// TelemetrySettings configures logging, metrics and tracing.
type TelemetrySettings struct {
	LogLevel        string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat       string `yaml:"log_format" validate:"oneof=json console"`
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	MetricsAddr     string `yaml:"metrics_addr"`
	TracingEnabled  bool   `yaml:"tracing_enabled"`
	TracingExporter string `yaml:"tracing_exporter" validate:"omitempty,oneof=stdout otlp none"`
	TracingEndpoint string `yaml:"tracing_endpoint,omitempty"`
}

// PolicySettings configures identifier admission policies.
type PolicySettings struct {
	Enabled  bool     `yaml:"enabled"`
	Builtins bool     `yaml:"builtins"`
	Dirs     []string `yaml:"dirs,omitempty"`

	// Disabled names policies, built-in or loaded, that are turned off.
	Disabled []string `yaml:"disabled,omitempty"`
}

// DefaultSettings returns settings for a project in the current directory.
func DefaultSettings() *Settings {
	tmpl := engine.DefaultSourceTemplate()
	return &Settings{
		Project: ProjectSettings{
			Root:         ".",
			ResourcesDir: "Assets/_Project/Resources",
		},
		Layout: LayoutSettings{
			Enabled: true,
			Root:    "Assets/_Project",
			Folders: []string{
				"Scripts",
				"Textures & Materials",
				"Models",
				"Animation",
				"Prefabs",
				"Swatches",
				"Rendering",
				"XR",
				"Input",
				"Resources",
			},
			Moves: []MoveSettings{
				{From: "Assets/Scenes", To: "Assets/_Project/Scenes"},
				{From: "Assets/Settings", To: "Assets/_Project/Settings"},
				{From: "Assets/InputSystem_Actions.inputactions", To: "Assets/_Project/Input/InputSystem_Actions.inputactions"},
			},
			Deletes: []string{
				"Assets/TutorialInfo",
				"Assets/Readme.asset",
			},
		},
		Sources: SourceSettings{
			PackagesFile:  "packages.json",
			AssetsFile:    "editor-assets.json",
			ScriptTimeout: 30 * time.Second,
		},
		Identifiers: IdentifierSettings{
			RegistryPrefix: tmpl.RegistryPrefix,
			SourceHost:     tmpl.Host,
			SourceSuffix:   tmpl.Suffix,
			AssetSuffix:    engine.DefaultAssetSuffix,
		},
		Install: InstallSettings{
			PollInterval: engine.DefaultPollInterval,
			ItemDelay:    engine.DefaultItemDelay,
			Timeout:      engine.DefaultInstallTimeout,
			StopGrace:    engine.DefaultStopGrace,
		},
		Packages: PackageSettings{
			Backend:        "manifest",
			ManifestPath:   "Packages/manifest.json",
			DefaultVersion: "latest",
		},
		Assets: AssetSettings{
			ImportDir:  "Assets/ImportedPackages",
			StagingDir: ".bootstrap/staging",
		},
		Store: StoreSettings{
			Enabled: true,
			Path:    ".bootstrap/history.db",
		},
		Telemetry: TelemetrySettings{
			LogLevel:        "info",
			LogFormat:       "console",
			MetricsAddr:     ":9090",
			TracingExporter: "none",
		},
		Policy: PolicySettings{
			Enabled:  true,
			Builtins: true,
		},
	}
}

// LoadSettings reads a settings file on top of DefaultSettings and applies
// environment overrides.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}

	s.ApplyEnv(os.Getenv)
	return s, nil
}

// LoadSettingsOrDefault behaves like LoadSettings but falls back to the defaults
// when the file does not exist. The boolean reports whether the file was found.
func LoadSettingsOrDefault(path string) (*Settings, bool, error) {
	s, err := LoadSettings(path)
	if errors.Is(err, fs.ErrNotExist) {
		s = DefaultSettings()
		s.ApplyEnv(os.Getenv)
		return s, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// SaveSettings writes settings as YAML, creating parent directories as needed.
func SaveSettings(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// ApplyEnv applies environment overrides using getenv.
func (s *Settings) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvAssetCache); v != "" {
		s.Assets.CacheDir = v
	}
}

// Validate checks struct constraints and cross-field rules.
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return engine.NewError(engine.ErrCodeValidation, "invalid settings", err)
	}

	if s.Packages.Backend == "command" {
		if len(s.Packages.InstallCommand) == 0 {
			return engine.NewError(engine.ErrCodeValidation, "packages.install_command is required for the command backend", nil)
		}
		if !containsPlaceholder(s.Packages.InstallCommand) {
			return engine.NewError(engine.ErrCodeValidation,
				fmt.Sprintf("packages.install_command must contain %s", IdentifierPlaceholder), nil)
		}
		if len(s.Packages.ListCommand) == 0 {
			return engine.NewError(engine.ErrCodeValidation, "packages.list_command is required for the command backend", nil)
		}
	}

	if r := s.Assets.Remote; r != nil && r.KeyPath == "" && r.Password == "" {
		return engine.NewError(engine.ErrCodeValidation, "assets.remote requires key_path or password", nil)
	}

	if s.Telemetry.TracingEnabled && s.Telemetry.TracingExporter == "otlp" && s.Telemetry.TracingEndpoint == "" {
		return engine.NewError(engine.ErrCodeValidation, "telemetry.tracing_endpoint is required for the otlp exporter", nil)
	}

	return nil
}

// SourceTemplate returns the identifier template described by the settings.
func (s *Settings) SourceTemplate() engine.SourceTemplate {
	return engine.SourceTemplate{
		RegistryPrefix: s.Identifiers.RegistryPrefix,
		Host:           s.Identifiers.SourceHost,
		Suffix:         s.Identifiers.SourceSuffix,
	}
}

// ProjectPath resolves a path relative to the project root.
func (s *Settings) ProjectPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.Project.Root, filepath.FromSlash(p))
}

// IdentifierPlaceholder is replaced by the identifier in command templates.
const IdentifierPlaceholder = "{id}"

func containsPlaceholder(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, IdentifierPlaceholder) {
			return true
		}
	}
	return false
}
