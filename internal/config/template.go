package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// defaultTemplate is the commented file written by `config init`. Its
// values must stay equal to Default(); WriteDefault parses it back to
// enforce that before writing.
const defaultTemplate = `# lookervault configuration.
#
# Credentials are never read from this file. Set LOOKERSDK_BASE_URL,
# LOOKERSDK_CLIENT_ID and LOOKERSDK_CLIENT_SECRET in the environment.
# Every key below can also be set via LOOKERVAULT_<KEY> (for example
# LOOKERVAULT_WORKERS=4) and overridden per run by command flags.

# Path of the content repository database.
database = "lookervault.db"

# Concurrent workers per content type. Capped at 16: the repository has
# a single writer, so more workers just queue on the write lock.
workers = 8

# Items fetched per API page during extraction.
page_size = 100

# Checkpoint after this many items.
checkpoint_interval = 100

# Retry attempts per item before it moves to the dead-letter queue.
max_retries = 3

# Rate limiter admission ceilings.
rate_limit_per_minute = 300
rate_limit_per_second = 10

# Per-request API timeout in seconds.
timeout_seconds = 30
`

// WriteDefault writes the commented default configuration to path.
// Refuses to overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	// The template is hand-maintained; make sure it still parses and
	// still matches the built-in defaults.
	var parsed Config
	if err := toml.Unmarshal([]byte(defaultTemplate), &parsed); err != nil {
		return fmt.Errorf("default config template is invalid: %w", err)
	}
	if parsed != *Default() {
		return fmt.Errorf("default config template drifted from built-in defaults")
	}

	if err := os.WriteFile(path, []byte(defaultTemplate), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
