package saboteur

import (
	"fmt"
	"math/rand/v2"
)

// selectionSeedDomain separates the selection stream from other
// derivations of the scenario seed.
const selectionSeedDomain uint64 = 0xff

// selectionStream returns the deterministic stream for a scenario seed.
// Every selection opens a fresh stream, so a selection repeated with the
// same seed and the same eligibility sets yields the same choice.
func selectionStream(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed^selectionSeedDomain, selectionSeedDomain))
}

// pick reduces one draw to an index below n by modulo.
func pick(prng *rand.Rand, n int) int {
	return int(prng.Uint64() % uint64(n))
}

// SelectEligibleFailure picks one failure case from those still eligible
// for the scenario, deterministically from the scenario seed. It returns
// ErrNoEligibleFailure once evaluation has marked every case.
func SelectEligibleFailure(scn *Scenario) (Failure, error) {
	eligible := scn.EligibleFailures()
	if len(eligible) == 0 {
		return 0, fmt.Errorf("%w: scenario %s (seed %d)", ErrNoEligibleFailure, scn.ID, scn.Seed)
	}
	return eligible[pick(selectionStream(scn.Seed), len(eligible))], nil
}

// SelectEligibleOrder picks one order from those still eligible,
// deterministically from the scenario seed. It returns the order and its
// index in the scenario, or ErrNoEligibleOrder when narrowing has marked
// every order.
func SelectEligibleOrder(scn *Scenario) (*Order, int, error) {
	eligible := scn.EligibleOrderIndices()
	if len(eligible) == 0 {
		return nil, 0, fmt.Errorf("%w: scenario %s (seed %d)", ErrNoEligibleOrder, scn.ID, scn.Seed)
	}
	index := eligible[pick(selectionStream(scn.Seed), len(eligible))]
	return &scn.Orders[index], index, nil
}

// SelectEligibleResolver picks one criteria resolver from those still
// eligible, deterministically from the scenario seed. It returns the
// resolver and its index in the scenario, or ErrNoEligibleResolver when
// narrowing has marked every resolver.
func SelectEligibleResolver(scn *Scenario) (*CriteriaResolver, int, error) {
	eligible := scn.EligibleResolverIndices()
	if len(eligible) == 0 {
		return nil, 0, fmt.Errorf("%w: scenario %s (seed %d)", ErrNoEligibleResolver, scn.ID, scn.Seed)
	}
	index := eligible[pick(selectionStream(scn.Seed), len(eligible))]
	return &scn.CriteriaResolvers[index], index, nil
}
