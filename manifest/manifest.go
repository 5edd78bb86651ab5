// Package manifest handles mbasic.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/mbasic/compiler"
	"github.com/chazu/mbasic/status"
)

// FileName is the name of the project configuration file.
const FileName = "mbasic.toml"

// Manifest represents an mbasic.toml project configuration.
type Manifest struct {
	Project   Project   `toml:"project"`
	Compiler  Compiler  `toml:"compiler"`
	Optimizer Optimizer `toml:"optimizer"`
	Cache     Cache     `toml:"cache"`

	// Dir is the directory containing the mbasic.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// Compiler holds the compile and link switches. Unset switches take the
// value from compiler.DefaultFlags.
type Compiler struct {
	Optimize        *bool  `toml:"optimize"`
	PoolConstants   *bool  `toml:"pool-constants"`
	LoopTopTest     *bool  `toml:"loop-top-test"`
	StripStatements *bool  `toml:"strip-statements"`
	Separator       string `toml:"separator"`
}

// Optimizer configures the pattern optimizer.
type Optimizer struct {
	Rules    string `toml:"rules"`
	DeadCode *bool  `toml:"dead-code"`
}

// Cache configures the compiled program store.
type Cache struct {
	Path string `toml:"path"`
}

// Load parses an mbasic.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes and validates manifest text.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, status.New(status.ErrManifest, "%s", err).Wrap(err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, status.New(status.ErrManifest, "unknown key %s", undecoded[0])
	}
	if sep := m.Compiler.Separator; sep != "" && len([]rune(sep)) != 1 {
		return nil, status.New(status.ErrManifest, "separator %q must be one character", sep)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find an mbasic.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Flags converts the configured switches to compiler flags.
func (m *Manifest) Flags() compiler.Flags {
	f := compiler.DefaultFlags()
	set(&f.Optimize, m.Compiler.Optimize)
	set(&f.PoolConstants, m.Compiler.PoolConstants)
	set(&f.LoopTopTest, m.Compiler.LoopTopTest)
	set(&f.StripStatements, m.Compiler.StripStatements)
	set(&f.DeadCode, m.Optimizer.DeadCode)
	if m.Compiler.Separator != "" {
		f.Separator = m.Compiler.Separator
	}
	return f
}

func set(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// RulesPath returns the absolute path of the rule file, or "" for the
// built-in rules.
func (m *Manifest) RulesPath() string {
	return m.resolve(m.Optimizer.Rules)
}

// CachePath returns the absolute path of the cache database, or "" when
// caching is off.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

// EntryPath returns the absolute path of the program to compile when none
// is named on the command line.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Project.Entry)
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
