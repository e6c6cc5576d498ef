package keyring

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Loader reads keyring.yaml from disk
type Loader struct {
	filePath string
}

// NewLoader creates a new keyring loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Path returns the file the loader reads
func (l *Loader) Path() string {
	return l.filePath
}

// Load reads and parses the keyring file
func (l *Loader) Load() (Config, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read keyring file: %w", err)
	}

	// Resolve ${VAR} references so hashes can come from secrets
	data = expandEnvVariables(data)

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse keyring yaml: %w", err)
	}

	return config, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVariables replaces ${NAME} with the value of the environment variable NAME.
// Example: key_sha256: ${ANS_KEY_OWNER_A} -> key_sha256: 9f86d0...
func expandEnvVariables(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envVarPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}
