package preset

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"
)

// DefaultName is the preset used when none is given.
const DefaultName = "podcast"

// ErrUnknownPreset is returned by Resolve for a name that is neither a
// built-in nor a readable file.
var ErrUnknownPreset = errors.New("preset: unknown preset")

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Names lists the built-in presets.
func Names() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	slices.Sort(names)
	return names
}

// Builtin returns a fresh copy of the named built-in preset.
func Builtin(name string) (*Preset, error) {
	data, err := builtinFS.ReadFile(path.Join("builtin", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q (built-in presets: %s)", ErrUnknownPreset, name, strings.Join(Names(), ", "))
	}
	return Parse(data)
}

// Resolve accepts a built-in name or a path to a YAML file. An empty value
// selects DefaultName.
func Resolve(nameOrPath string) (*Preset, error) {
	if nameOrPath == "" {
		nameOrPath = DefaultName
	}
	if slices.Contains(Names(), nameOrPath) {
		return Builtin(nameOrPath)
	}
	if _, err := os.Stat(nameOrPath); err != nil {
		return nil, fmt.Errorf("%w: %q is not a built-in preset or a readable file", ErrUnknownPreset, nameOrPath)
	}
	return Load(nameOrPath)
}
