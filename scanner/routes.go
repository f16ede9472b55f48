package scanner

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/apexlabs/apexbot/types"
)

type pairKey struct {
	lo, hi common.Address
}

func newPairKey(a, b common.Address) pairKey {
	if bytesLess(a, b) {
		return pairKey{lo: a, hi: b}
	}
	return pairKey{lo: b, hi: a}
}

func bytesLess(a, b common.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// EnumerateRoutes builds every two-hop and three-hop closed loop over a set
// of validated snapshots from one chain. Two-hop loops cross two distinct
// pools on the same pair; three-hop loops chain three distinct pools through
// an intermediate token back to the start.
func EnumerateRoutes(pools []*types.PoolSnapshot) []*types.RouteCandidate {
	byPair := make(map[pairKey][]*types.PoolSnapshot)
	byToken := make(map[common.Address][]*types.PoolSnapshot)
	for _, p := range pools {
		byPair[newPairKey(p.TokenA, p.TokenB)] = append(byPair[newPairKey(p.TokenA, p.TokenB)], p)
		byToken[p.TokenA] = append(byToken[p.TokenA], p)
		byToken[p.TokenB] = append(byToken[p.TokenB], p)
	}

	var routes []*types.RouteCandidate

	// Two-hop: out on one pool, back on a different pool of the same pair.
	// Both loan directions are distinct candidates.
	for _, group := range byPair {
		if len(group) < 2 {
			continue
		}
		for _, out := range group {
			for _, back := range group {
				if out.PoolID == back.PoolID {
					continue
				}
				for _, start := range []common.Address{out.TokenA, out.TokenB} {
					mid := other(out, start)
					route, err := types.NewRouteCandidate([]types.Hop{
						{Pool: out, TokenIn: start, TokenOut: mid},
						{Pool: back, TokenIn: mid, TokenOut: start},
					})
					if err != nil {
						continue
					}
					routes = append(routes, route)
				}
			}
		}
	}

	// Three-hop: start -> mid1 -> mid2 -> start across three distinct pools.
	for _, p1 := range pools {
		for _, start := range []common.Address{p1.TokenA, p1.TokenB} {
			mid1 := other(p1, start)
			for _, p2 := range byToken[mid1] {
				if p2.PoolID == p1.PoolID {
					continue
				}
				mid2 := other(p2, mid1)
				if mid2 == start {
					continue
				}
				for _, p3 := range byToken[mid2] {
					if p3.PoolID == p1.PoolID || p3.PoolID == p2.PoolID {
						continue
					}
					if other(p3, mid2) != start {
						continue
					}
					route, err := types.NewRouteCandidate([]types.Hop{
						{Pool: p1, TokenIn: start, TokenOut: mid1},
						{Pool: p2, TokenIn: mid1, TokenOut: mid2},
						{Pool: p3, TokenIn: mid2, TokenOut: start},
					})
					if err != nil {
						continue
					}
					routes = append(routes, route)
				}
			}
		}
	}

	return routes
}

func other(p *types.PoolSnapshot, token common.Address) common.Address {
	if token == p.TokenA {
		return p.TokenB
	}
	return p.TokenA
}
