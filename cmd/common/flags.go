package common

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CommonFlags contains flags that are shared across multiple commands
type CommonFlags struct {
	// Environment and configuration
	EnvFile     *string
	ConfigFile  *string
	DataRoot    *string
	ConsoleOnly *bool

	// Logging and output
	Verbose  *bool
	Silent   *bool
	NoEmojis *bool

	Version *bool
}

// RegisterCommonFlags registers common flags with the default flag set
func RegisterCommonFlags() *CommonFlags {
	return RegisterCommonFlagsOn(flag.CommandLine)
}

// RegisterCommonFlagsOn registers common flags with fs
func RegisterCommonFlagsOn(fs *flag.FlagSet) *CommonFlags {
	return &CommonFlags{
		EnvFile:     fs.String("env", ".env", "Environment file path"),
		ConfigFile:  fs.String("config", "", "JSON config file applied over the environment"),
		DataRoot:    fs.String("data-root", "data", "Data root directory"),
		ConsoleOnly: fs.Bool("console-only", false, "Console output only (no file output)"),

		Verbose:  fs.Bool("verbose", false, "Enable verbose output"),
		Silent:   fs.Bool("silent", false, "Enable silent mode (minimal output)"),
		NoEmojis: fs.Bool("no-emojis", false, "Disable emoji output"),

		Version: fs.Bool("version", false, "Show version information"),
	}
}

// Logger builds a console logger honoring the output flags
func (f *CommonFlags) Logger() *Logger {
	l := NewLogger()
	l.ShowEmojis = !*f.NoEmojis
	l.SilentMode = *f.Silent
	if *f.Verbose {
		l.Level = LogLevelDebug
	}
	return l
}

// ParseFloatList parses a comma separated list such as "0.5,1,2"
func ParseFloatList(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// FlagValidator provides flag validation utilities
type FlagValidator struct {
	errors []string
}

// NewFlagValidator creates a new flag validator
func NewFlagValidator() *FlagValidator {
	return &FlagValidator{
		errors: make([]string, 0),
	}
}

// ValidateFloat validates a float flag value
func (v *FlagValidator) ValidateFloat(name string, value float64, min, max float64) *FlagValidator {
	if value < min || value > max {
		v.errors = append(v.errors, fmt.Sprintf("%s must be between %.4f and %.4f, got: %.4f", name, min, max, value))
	}
	return v
}

// ValidateInt validates an int flag value
func (v *FlagValidator) ValidateInt(name string, value int, min, max int) *FlagValidator {
	if value < min || value > max {
		v.errors = append(v.errors, fmt.Sprintf("%s must be between %d and %d, got: %d", name, min, max, value))
	}
	return v
}

// ValidateChoice validates that a string is one of the allowed choices
func (v *FlagValidator) ValidateChoice(name, value string, choices []string) *FlagValidator {
	for _, choice := range choices {
		if value == choice {
			return v
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of [%s], got: %s", name, strings.Join(choices, ", "), value))
	return v
}

// ValidateFile validates that a file exists
func (v *FlagValidator) ValidateFile(name, path string, required bool) *FlagValidator {
	if path == "" {
		if required {
			v.errors = append(v.errors, fmt.Sprintf("%s is required", name))
		}
		return v
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		v.errors = append(v.errors, fmt.Sprintf("%s file does not exist: %s", name, path))
	}
	return v
}

// AddError adds a custom validation error
func (v *FlagValidator) AddError(message string) *FlagValidator {
	v.errors = append(v.errors, message)
	return v
}

// HasErrors returns true if there are validation errors
func (v *FlagValidator) HasErrors() bool {
	return len(v.errors) > 0
}

// GetError returns a formatted error message with all validation errors
func (v *FlagValidator) GetError() error {
	if len(v.errors) == 0 {
		return nil
	}

	if len(v.errors) == 1 {
		return fmt.Errorf("validation error: %s", v.errors[0])
	}

	return fmt.Errorf("validation errors:\n  - %s", strings.Join(v.errors, "\n  - "))
}

// PrintErrors prints all validation errors
func (v *FlagValidator) PrintErrors() {
	if len(v.errors) == 0 {
		return
	}

	fmt.Fprintf(os.Stderr, "❌ Flag validation errors:\n")
	for _, err := range v.errors {
		fmt.Fprintf(os.Stderr, "   • %s\n", err)
	}
}
