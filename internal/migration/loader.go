// Package migration implements the Migration Loader and the Migration
// Controller: parsing an ordered, validated sequence of per-model migration
// modules, and driving them against the remote in parallel.
package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

// Context is passed to a migration function on every invocation.
type Context struct {
	Log interface {
		Info(msg string, args ...any)
	}
}

// Func transforms one record to the next data version. Returning ok=false
// means "already migrated, skip" — both a nil record and ok=false are
// tolerated as the same "skip" signal, since on-disk migration modules are
// not guaranteed to distinguish "no change" from "nothing to do".
type Func func(ctx context.Context, record *storeapi.Record, mctx *Context) (*storeapi.Record, bool)

// Module is one versioned step in a model's migration sequence.
type Module struct {
	Version int
	Migrate Func
}

// Plan maps a model name to its ordered migration modules, versions 1..k
// with no gaps, validated against the bucket config's data_version index.
type Plan map[string][]Module

// dataVersionIndex is the indexed field every bucket with a migration plan
// must declare.
const dataVersionIndex = "data_version"

// NewPlan validates a set of per-model modules against cfg and returns a
// Plan. Modules for a model must already be sorted by version 1..k with no
// gaps; a nil Migrate func is a configuration error.
func NewPlan(modules map[string][]Module, cfg storeapi.BucketsConfig) (Plan, error) {
	plan := make(Plan, len(modules))
	for model, mods := range modules {
		if err := validateSequence(model, mods); err != nil {
			return nil, err
		}
		if err := validateDataVersionIndex(model, cfg); err != nil {
			return nil, err
		}
		plan[model] = mods
	}
	return plan, nil
}

func validateSequence(model string, mods []Module) error {
	for i, m := range mods {
		want := i + 1
		if m.Version != want {
			return fmt.Errorf("model %q: migration versions must start at 1 and increase by exactly 1, got version %d at position %d", model, m.Version, i)
		}
		if m.Migrate == nil {
			return fmt.Errorf("model %q: migration version %d has no migrate function", model, m.Version)
		}
	}
	return nil
}

func validateDataVersionIndex(model string, cfg storeapi.BucketsConfig) error {
	spec, ok := cfg[model]
	if !ok {
		return fmt.Errorf("model %q: has a migration plan but no bucket config entry", model)
	}
	field, ok := spec.Schema.Index[dataVersionIndex]
	if !ok || field.Type != storeapi.IndexTypeNumber {
		return fmt.Errorf("model %q: bucket %q must declare an indexed %q field of type number to carry a migration plan",
			model, spec.Name, dataVersionIndex)
	}
	return nil
}

// Registration supplies the actual migrate function for one (model,
// version) pair. Because Go cannot dynamically load arbitrary source files
// at runtime, the migrate functions themselves are registered in Go code
// (typically one init() per on-disk file); LoadPlanFromDir cross-checks that
// registration set against the literal directory contents so the on-disk
// layout stays the source of truth for ordering and naming.
type Registration struct {
	Model   string
	Version int
	Migrate Func
}

// filenamePattern matches NNN-<slug>.<ext>: a decimal version number
// (conventionally zero-padded), a dash, a slug of letters, digits,
// underscores and dashes, and an extension.
var filenamePattern = regexp.MustCompile(`^(\d+)-[A-Za-z0-9_-]+\.\w+$`)

// LoadPlanFromDir scans root/<modelName>/NNN-<slug>.<ext> and produces a
// validated Plan, using registrations to supply the actual migrate
// functions for each (model, version) the directory names.
func LoadPlanFromDir(root string, registrations []Registration, cfg storeapi.BucketsConfig) (Plan, error) {
	byModel := map[string]map[int]Func{}
	for _, r := range registrations {
		m, ok := byModel[r.Model]
		if !ok {
			m = map[int]Func{}
			byModel[r.Model] = m
		}
		m[r.Version] = r.Migrate
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read migrations root %q: %w", root, err)
	}

	modules := map[string][]Module{}
	for _, modelEntry := range entries {
		if !modelEntry.IsDir() {
			continue
		}
		model := modelEntry.Name()
		mods, err := loadModelDir(filepath.Join(root, model), model, byModel[model])
		if err != nil {
			return nil, err
		}
		modules[model] = mods
	}

	return NewPlan(modules, cfg)
}

func loadModelDir(dir, model string, registered map[int]Func) ([]Module, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read model migrations dir %q: %w", dir, err)
	}

	var invalid []string
	type numberedFile struct {
		n    int
		name string
	}
	var numbered []numberedFile
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		match := filenamePattern.FindStringSubmatch(f.Name())
		if match == nil {
			invalid = append(invalid, filepath.Join(model, f.Name()))
			continue
		}
		n, err := strconv.Atoi(match[1])
		if err != nil {
			invalid = append(invalid, filepath.Join(model, f.Name()))
			continue
		}
		numbered = append(numbered, numberedFile{n: n, name: f.Name()})
	}
	if len(invalid) > 0 {
		return nil, &storeapi.InvalidDataMigrationFileNamesError{Filenames: invalid}
	}

	sort.Slice(numbered, func(i, j int) bool { return numbered[i].n < numbered[j].n })

	mods := make([]Module, 0, len(numbered))
	for _, nf := range numbered {
		fn, ok := registered[nf.n]
		if !ok {
			return nil, fmt.Errorf("model %q: no registered migration function for file %q (version %d)", model, nf.name, nf.n)
		}
		mods = append(mods, Module{Version: nf.n, Migrate: fn})
	}
	return mods, nil
}
