/*

This file contains the loader for the static tracked-pool universe.

The pool set is operator-curated and fixed for the lifetime of the process;
there is no runtime discovery of pools.

*/

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/meridianyield/rotor/internal/types"
)

var hexAddressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// LoadPools reads the tracked-pool universe from the JSON file at path.
// Addresses are canonicalized to lower case; duplicate or malformed entries
// are rejected so every downstream lookup can compare addresses directly.
func LoadPools(path string) ([]types.PoolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pools file %s: %w", path, err)
	}

	var pools []types.PoolConfig
	if err := json.Unmarshal(data, &pools); err != nil {
		return nil, fmt.Errorf("failed to parse pools file %s: %w", path, err)
	}
	if len(pools) == 0 {
		return nil, errors.New("pools file " + path + " contains no pools")
	}

	seen := make(map[string]bool, len(pools))
	for i := range pools {
		pools[i].Address = strings.ToLower(strings.TrimSpace(pools[i].Address))
		pools[i].InputToken = strings.ToLower(strings.TrimSpace(pools[i].InputToken))

		if !hexAddressPattern.MatchString(pools[i].Address) {
			return nil, fmt.Errorf("pool %d has invalid address %q", i, pools[i].Address)
		}
		if !hexAddressPattern.MatchString(pools[i].InputToken) {
			return nil, fmt.Errorf("pool %s has invalid input token %q", pools[i].Address, pools[i].InputToken)
		}
		if pools[i].Chain == "" {
			return nil, fmt.Errorf("pool %s is missing a chain identifier", pools[i].Address)
		}
		if seen[pools[i].Address] {
			return nil, fmt.Errorf("pool %s appears more than once", pools[i].Address)
		}
		seen[pools[i].Address] = true
	}

	return pools, nil
}
