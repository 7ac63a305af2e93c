package bucketsinit

import (
	"fmt"
	"sort"

	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

// validateConfig enforces the Desired Bucket Configuration invariant that
// remote bucket names (not just model names, which are already unique by
// virtue of being map keys) are unique within the configuration.
func validateConfig(cfg storeapi.BucketsConfig) error {
	byName := map[string][]string{}
	for model, spec := range cfg {
		byName[spec.Name] = append(byName[spec.Name], model)
	}
	var dupes []string
	for name, models := range byName {
		if len(models) > 1 {
			sort.Strings(models)
			dupes = append(dupes, fmt.Sprintf("%s (models %v)", name, models))
		}
	}
	if len(dupes) > 0 {
		sort.Strings(dupes)
		return storeapi.NewKindError(storeapi.KindInvalidBucketConfig,
			fmt.Sprintf("duplicate bucket names across models: %v", dupes), nil)
	}
	return nil
}
