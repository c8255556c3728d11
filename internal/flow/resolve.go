package flow

import "github.com/talgya/soil-flow/internal/soil"

// ResolveDestinations looks up every destination name and returns the pools
// in the same order. It stops at the first name that does not resolve.
func ResolveDestinations(
	flow string, finder PoolFinder, names []string,
) ([]*soil.Pool, error) {
	pools := make([]*soil.Pool, 0, len(names))
	for _, name := range names {
		p, ok := finder.FindPool(name)
		if !ok || p == nil {
			return nil, &ConfigError{Flow: flow, Pool: name, Err: ErrPoolNotFound}
		}
		pools = append(pools, p)
	}
	return pools, nil
}

// destinationPools resolves the destinations on first use and keeps them for
// the engine's lifetime.
func (e *Engine) destinationPools() ([]*soil.Pool, error) {
	if e.destinations != nil {
		return e.destinations, nil
	}
	pools, err := ResolveDestinations(e.name, e.finder, e.destNames)
	if err != nil {
		return nil, err
	}
	e.destinations = pools
	return pools, nil
}
