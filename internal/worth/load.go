package worth

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"wealthtop/internal/wealth"
)

const (
	BlocksFile     = "blocks.yaml"
	SpawnersFile   = "spawners.yaml"
	ContainersFile = "containers.yaml"
	InventoryFile  = "inventory.yaml"
	ExternalFile   = "external.yaml"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemasOnce    sync.Once
	tableSchema    *jsonschema.Schema
	externalSchema *jsonschema.Schema
	schemasErr     error
)

func compileSchemas() error {
	schemasOnce.Do(func() {
		compile := func(name string) *jsonschema.Schema {
			if schemasErr != nil {
				return nil
			}
			b, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemasErr = err
				return nil
			}
			s, err := jsonschema.CompileString(name, string(b))
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", name, err)
				return nil
			}
			return s
		}
		tableSchema = compile("table.schema.json")
		externalSchema = compile("external.schema.json")
	})
	return schemasErr
}

// ExternalCategory is one named external wealth category and the source specs
// summed into it, in file order.
type ExternalCategory struct {
	Name    string   `yaml:"category" json:"category"`
	Sources []string `yaml:"sources" json:"sources"`
}

// Tables is the full set of worth inputs for one configuration generation.
type Tables struct {
	Blocks     Table
	Spawners   Table
	Containers Table
	Inventory  Table
	External   []ExternalCategory

	// Failed holds the load error of each table that could not be used.
	// Categories backed by a failed table must be treated as disabled.
	Failed map[string]error
}

// Known reports whether a key exists in the host's palette. A nil Known
// accepts every key.
type Known func(key string) bool

type LoadOptions struct {
	Dir string

	KnownBlock Known
	KnownMob   Known
	KnownItem  Known
}

// Load reads every table from opts.Dir. A table that fails to load is
// recorded in Tables.Failed and left empty; the returned error joins those
// failures and wraps ErrConfigurationMismatch.
func Load(opts LoadOptions, log *zap.Logger) (*Tables, error) {
	if log == nil {
		log = zap.NewNop()
	}
	out := &Tables{Failed: map[string]error{}}
	var errs []error

	load := func(file string, known Known) Table {
		t, err := LoadTable(filepath.Join(opts.Dir, file), file, known, log)
		if err != nil {
			out.Failed[file] = err
			errs = append(errs, err)
		}
		return t
	}
	out.Blocks = load(BlocksFile, opts.KnownBlock)
	out.Spawners = load(SpawnersFile, opts.KnownMob)
	out.Containers = load(ContainersFile, opts.KnownItem)
	out.Inventory = load(InventoryFile, opts.KnownItem)

	ext, err := LoadExternal(filepath.Join(opts.Dir, ExternalFile))
	if err != nil {
		out.Failed[ExternalFile] = err
		errs = append(errs, err)
	}
	out.External = ext

	return out, errors.Join(errs...)
}

// LoadTable reads one key -> worth YAML file. Keys are upper-cased; keys the
// host does not know are skipped with a warning.
func LoadTable(path, name string, known Known, log *zap.Logger) (Table, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := compileSchemas(); err != nil {
		return Table{name: name}, fmt.Errorf("%w: %w", ErrConfigurationMismatch, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Table{name: name}, fmt.Errorf("%w: %s: %w", ErrConfigurationMismatch, name, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Table{name: name}, fmt.Errorf("%w: %s: %w", ErrConfigurationMismatch, name, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := validate(tableSchema, doc); err != nil {
		return Table{name: name}, fmt.Errorf("%w: %s: %w", ErrConfigurationMismatch, name, err)
	}

	values := make(map[string]float64, len(doc))
	for k, v := range doc {
		key := NormalizeKey(k)
		if known != nil && !known(key) {
			log.Warn("skipping unknown worth key", zap.String("table", name), zap.String("key", key))
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		values[key] = f
	}
	return NewTable(name, values), nil
}

// LoadExternal reads the external category list. A missing file is not an
// error: it simply configures no external categories.
func LoadExternal(path string) ([]ExternalCategory, error) {
	if err := compileSchemas(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigurationMismatch, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigurationMismatch, ExternalFile, err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigurationMismatch, ExternalFile, err)
	}
	if doc == nil {
		return nil, nil
	}
	if err := validate(externalSchema, doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigurationMismatch, ExternalFile, err)
	}
	var cats []ExternalCategory
	if err := yaml.Unmarshal(raw, &cats); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigurationMismatch, ExternalFile, err)
	}
	for _, c := range cats {
		if wealth.Reserved(c.Name) {
			return nil, fmt.Errorf("%w: %s: category %q is built in", ErrConfigurationMismatch, ExternalFile, c.Name)
		}
	}
	return cats, nil
}

// validate round-trips a YAML document through JSON so the validator sees
// plain JSON types (float64, string, map[string]any).
func validate(s *jsonschema.Schema, doc any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
