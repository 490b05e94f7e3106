package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	EnvSpotifyID     = "SPOTIFY_ID"
	EnvSpotifySecret = "SPOTIFY_SECRET"
)

type Settings struct {
	FileLookupThreshold        float64 `yaml:"file_lookup_threshold"`
	FingerprintLookupThreshold float64 `yaml:"fingerprint_lookup_threshold"`

	MoveFiles                  bool   `yaml:"move_files"`
	MoveFilesTo                string `yaml:"move_files_to"`
	RenameFiles                bool   `yaml:"rename_files"`
	FileNamingFormat           string `yaml:"file_naming_format"`
	VAFileNamingFormat         string `yaml:"va_file_naming_format"`
	WindowsCompatibleFilenames bool   `yaml:"windows_compatible_filenames"`
	ASCIIFilenames             bool   `yaml:"ascii_filenames"`

	SaveImages                 bool   `yaml:"save_images"`
	CoverImageFilename         string `yaml:"cover_image_filename"`
	CoverMaxSize               uint   `yaml:"cover_max_size"`
	MoveAdditionalFiles        bool   `yaml:"move_additional_files"`
	MoveAdditionalFilesPattern string `yaml:"move_additional_files_pattern"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	SpotifyClientID     string `yaml:"spotify_client_id"`
	SpotifyClientSecret string `yaml:"spotify_client_secret"`
}

func DefaultSettings() Settings {
	return Settings{
		FileLookupThreshold:        .7,
		FingerprintLookupThreshold: .5,
		MoveFilesTo:                xdg.UserDirs.Music,
		RenameFiles:                true,
		FileNamingFormat:           "{{or .albumartist .artist}}/{{.album}}/{{pad .tracknumber 2}} {{.title}}",
		VAFileNamingFormat:         "Various Artists/{{.album}}/{{pad .tracknumber 2}} {{.artist}} - {{.title}}",
		WindowsCompatibleFilenames: true,
		CoverImageFilename:         "cover",
		MoveAdditionalFilesPattern: "*.jpg *.png",
		LogLevel:                   "info",
		LogFormat:                  "console",
	}
}

// Path returns the default location of the configuration file
func Path() (string, error) {
	return xdg.ConfigFile(filepath.Join("spotitag", "config.yml"))
}

// Load overlays the file found at path, if any, on top of the defaults,
// then applies the environment overrides
func Load(path string) (Settings, error) {
	settings := DefaultSettings()
	payload, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Settings{}, fmt.Errorf("read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(payload, &settings); err != nil {
			return Settings{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if value := strings.TrimSpace(os.Getenv(EnvSpotifyID)); value != "" {
		settings.SpotifyClientID = value
	}
	if value := strings.TrimSpace(os.Getenv(EnvSpotifySecret)); value != "" {
		settings.SpotifyClientSecret = value
	}
	return settings, nil
}

func (settings Settings) Save(path string) error {
	payload, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, payload, 0o600)
}

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid config"
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Problems, "; "))
}

func (settings Settings) Validate() error {
	problems := []string{}
	if settings.FileLookupThreshold < 0 || settings.FileLookupThreshold > 1 {
		problems = append(problems, "file_lookup_threshold must be within [0, 1]")
	}
	if settings.FingerprintLookupThreshold < 0 || settings.FingerprintLookupThreshold > 1 {
		problems = append(problems, "fingerprint_lookup_threshold must be within [0, 1]")
	}
	if settings.RenameFiles && strings.TrimSpace(settings.FileNamingFormat) == "" {
		problems = append(problems, "file_naming_format must be set when renaming files")
	}
	if settings.MoveFiles && strings.TrimSpace(settings.MoveFilesTo) == "" {
		problems = append(problems, "move_files_to must be set when moving files")
	}
	if settings.SaveImages && strings.TrimSpace(settings.CoverImageFilename) == "" {
		problems = append(problems, "cover_image_filename must be set when saving images")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
