package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

// LoadBucketsConfig parses a Desired Bucket Configuration from a YAML file:
// a mapping from model name to bucket spec, mirroring storeapi.BucketsConfig
// directly via yaml tags on storeapi's own types.
func LoadBucketsConfig(path string) (storeapi.BucketsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read buckets config %q: %w", path, err)
	}

	cfg := storeapi.BucketsConfig{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse buckets config %q: %w", path, err)
	}

	if err := validateBucketsConfig(cfg); err != nil {
		return nil, fmt.Errorf("buckets config %q: %w", path, err)
	}
	return cfg, nil
}

func validateBucketsConfig(cfg storeapi.BucketsConfig) error {
	models := make([]string, 0, len(cfg))
	for model, spec := range cfg {
		models = append(models, model)
		if spec.Name == "" {
			return fmt.Errorf("model %q: missing bucket name", model)
		}
		for field, def := range spec.Schema.Index {
			switch def.Type {
			case storeapi.IndexTypeString, storeapi.IndexTypeNumber, storeapi.IndexTypeBoolean:
			default:
				return fmt.Errorf("model %q: field %q: unknown index type %q", model, field, def.Type)
			}
		}
	}
	sort.Strings(models)
	return nil
}
