package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/gosimple/unidecode"
	"github.com/streambinder/spotitag/config"
	"github.com/streambinder/spotitag/entity"
	"github.com/streambinder/spotitag/util"
)

const maxComponentLength = 255

var (
	windowsIncompatible = strings.NewReplacer(
		`:`, "_", `*`, "_", `?`, "_", `"`, "_", `<`, "_", `>`, "_", `|`, "_")
	separators = strings.NewReplacer("/", "_", `\`, "_")
	functions  = template.FuncMap{
		"pad": func(value string, width int) string {
			if number, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				return fmt.Sprintf("%0*d", width, number)
			}
			return value
		},
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
	}
)

// Formatter renders a naming format for the given metadata
// into a relative path fragment
type Formatter interface {
	Format(format string, metadata *entity.Metadata) (string, error)
}

// TemplateFormatter renders text/template formats:
// fields are exposed by name, with internal ones prefixed by "_"
// in place of "~" and "~#" (e.g. {{._extension}})
type TemplateFormatter struct {
	// Sanitize gets applied to every value before rendering
	Sanitize func(string) string
}

func (formatter TemplateFormatter) Format(format string, metadata *entity.Metadata) (string, error) {
	tmpl, err := template.New("format").Funcs(functions).Option("missingkey=zero").Parse(format)
	if err != nil {
		return "", fmt.Errorf("parse naming format: %w", err)
	}

	data := make(map[string]string, metadata.Len())
	for _, field := range metadata.Keys() {
		value := metadata.Get(field, "")
		if formatter.Sanitize != nil {
			value = formatter.Sanitize(value)
		}
		data[templateKey(field)] = value
	}

	var buffer strings.Builder
	if err := tmpl.Execute(&buffer, data); err != nil {
		return "", fmt.Errorf("render naming format: %w", err)
	}
	return strings.TrimSpace(buffer.String()), nil
}

func templateKey(field string) string {
	if !entity.IsInternal(field) {
		return field
	}
	return "_" + strings.TrimLeft(field, entity.InternalPrefix+"#")
}

// Policy computes where files belong according to the settings
type Policy struct {
	settings  config.Settings
	formatter Formatter
}

func New(settings config.Settings) *Policy {
	policy := &Policy{settings: settings}
	policy.formatter = TemplateFormatter{Sanitize: policy.Sanitize}
	return policy
}

// WithFormatter swaps the default template formatter
func (policy *Policy) WithFormatter(formatter Formatter) *Policy {
	policy.formatter = formatter
	return policy
}

// Sanitize makes a single value safe to be used as a path component
func (policy *Policy) Sanitize(value string) string {
	value = separators.Replace(value)
	if policy.settings.WindowsCompatibleFilenames {
		value = windowsIncompatible.Replace(value)
	}
	if policy.settings.ASCIIFilenames {
		value = ascii(value)
	}
	return value
}

func ascii(value string) string {
	value = unidecode.Unidecode(value)
	return strings.Map(func(r rune) rune {
		if r > 0x7f {
			return '_'
		}
		return r
	}, value)
}

// MakeFilename returns the absolute path the file at path should end up to
func (policy *Policy) MakeFilename(path string, metadata *entity.Metadata) (string, error) {
	var (
		settings = policy.settings
		dir      = filepath.Dir(path)
		filename = filepath.Base(path)
	)
	if settings.MoveFiles {
		target := settings.MoveFilesTo
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, target)
		}
		dir = filepath.Clean(target)
	}

	if settings.RenameFiles {
		name, err := policy.formatFilename(path, metadata)
		if err != nil {
			return "", err
		}
		if name != "" {
			if !settings.MoveFiles {
				name = filepath.Base(name)
			}
			filename = name
		}
	}

	return filepath.Join(dir, filename), nil
}

func (policy *Policy) formatFilename(path string, metadata *entity.Metadata) (string, error) {
	format := policy.settings.FileNamingFormat
	if metadata.Get(entity.TagCompilation, "") == "1" && policy.settings.VAFileNamingFormat != "" {
		format = policy.settings.VAFileNamingFormat
	}
	format = strings.ReplaceAll(strings.ReplaceAll(format, "\t", ""), "\n", "")

	name, err := policy.formatter.Format(format, metadata)
	if err != nil || name == "" {
		return "", err
	}
	if policy.settings.WindowsCompatibleFilenames {
		name = strings.ReplaceAll(name, "./", "_/")
	}

	extension := strings.ToLower(filepath.Ext(path))
	components := strings.Split(name+extension, "/")
	for index, component := range components {
		components[index] = shorten(strings.TrimSpace(component), maxComponentLength)
	}
	return filepath.Join(components...), nil
}

// shorten trims value to at most limit bytes without breaking runes
func shorten(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	extension := filepath.Ext(value)
	if len(extension) >= limit {
		extension = ""
	}
	stem := value[:limit-len(extension)]
	for !utf8.ValidString(stem) {
		stem = stem[:len(stem)-1]
	}
	return strings.TrimSpace(stem) + extension
}

// Place moves the file at path to target, picking a free name
// by appending " (n)" if target is already taken
func (policy *Policy) Place(path, target string) (string, error) {
	if filepath.Clean(path) == filepath.Clean(target) {
		return path, nil
	}

	var (
		extension = filepath.Ext(target)
		stem      = strings.TrimSuffix(target, extension)
		candidate = target
	)
	for counter := 1; util.FileExists(candidate); counter++ {
		candidate = fmt.Sprintf("%s (%d)%s", stem, counter, extension)
	}
	if err := util.FileMoveOrCopy(path, candidate); err != nil {
		return "", fmt.Errorf("move %s: %w", path, err)
	}
	return candidate, nil
}

// MoveAdditionalFiles moves the files matching the additional files patterns
// from the old directory to the new one, files loaded in the session excluded
func (policy *Policy) MoveAdditionalFiles(oldPath, newPath string, loaded func(string) bool) error {
	var (
		oldDir   = filepath.Dir(oldPath)
		newDir   = filepath.Dir(newPath)
		patterns = strings.Fields(policy.settings.MoveAdditionalFilesPattern)
	)
	if !policy.settings.MoveAdditionalFiles || len(patterns) == 0 || filepath.Clean(oldDir) == filepath.Clean(newDir) {
		return nil
	}

	entries, err := os.ReadDir(oldDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !matchesAny(entry.Name(), patterns) {
			continue
		}
		var (
			source = filepath.Join(oldDir, entry.Name())
			target = filepath.Join(newDir, entry.Name())
		)
		if (loaded != nil && loaded(source)) || util.FileExists(target) {
			continue
		}
		if err := util.FileMoveOrCopy(source, target); err != nil {
			return fmt.Errorf("move additional file %s: %w", source, err)
		}
	}
	return nil
}

// hidden files only match patterns explicitly targeting them
func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(pattern, ".") {
			continue
		}
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}
