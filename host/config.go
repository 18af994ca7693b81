// Package host wires the compiler and vm packages together into a
// runnable program: it loads and compiles a script, runs it on a fresh
// vm.Interpreter, and implements require()'s module cache, grounded on
// original_source/oyc.py's OYC class and structured after the teacher's
// plaid.go digestFile pipeline.
package host

import (
	"github.com/caarlos0/env/v9"
)

// Config holds the interpreter's tunables, hardcoded as module
// constants in the Python original (oyc.py's _MAX_STACK_DEPTH) but
// exposed here as environment variables per SPEC_FULL.md's ambient
// configuration section, grounded on _examples/mna-nenuphar's use of
// caarlos0/env for its own maincmd configuration.
type Config struct {
	MaxStackDepth int  `env:"LUMEN_MAX_STACK_DEPTH" envDefault:"65536"`
	NoColor       bool `env:"LUMEN_NO_COLOR" envDefault:"false"`
}

// LoadConfig reads Config from the environment, falling back to the
// defaults above when a variable is unset.
func LoadConfig() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
