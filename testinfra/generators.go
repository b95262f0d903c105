// Package testinfra provides test infrastructure for saboteur campaign validation.
package testinfra

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"pgregory.net/rapid"

	"saboteur"
)

// SettlementSim is an in-memory stand-in for the settlement engine under
// test. The honest configuration reverts every corrupted payload with the
// expected reason; individual mutations can be marked as wrongly accepted,
// transient failures and latency can be injected.
type SettlementSim struct {
	mu         sync.Mutex
	accepted   map[string]bool
	failures   int
	delay      time.Duration
	executions int
}

// NewSettlementSim creates a new honest settlement simulator.
func NewSettlementSim() *SettlementSim {
	return &SettlementSim{
		accepted: make(map[string]bool),
	}
}

// AcceptMutation configures the simulated engine to settle payloads corrupted
// by the named mutation instead of reverting them.
func (s *SettlementSim) AcceptMutation(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted[name] = true
}

// FixMutation restores honest reverts for the named mutation.
func (s *SettlementSim) FixMutation(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accepted, name)
}

// FailNext makes the next n executions fail with a transient error.
func (s *SettlementSim) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

// SetDelay injects a fixed latency into every execution.
func (s *SettlementSim) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Executions returns the number of payloads handed to the simulator.
func (s *SettlementSim) Executions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executions
}

// Mutator returns a mutator that corrupts the scenario per the plan and tags
// the payload with the mutation name, so the executor can look up per-mutation
// behavior without shared state.
func (s *SettlementSim) Mutator() saboteur.Mutator {
	return saboteur.MutatorFunc(func(ctx context.Context, scn *saboteur.Scenario, plan *saboteur.Plan) ([]byte, error) {
		return encodeSimPayload(plan.Detail.Mutation, plan.Expected), nil
	})
}

// Executor returns an executor backed by the simulator's configuration.
func (s *SettlementSim) Executor() saboteur.Executor {
	return saboteur.ExecutorFunc(func(ctx context.Context, payload []byte) (*saboteur.Verdict, error) {
		mutation, expected := decodeSimPayload(payload)

		s.mu.Lock()
		delay := s.delay
		fail := s.failures > 0
		if fail {
			s.failures--
		}
		accepted := s.accepted[mutation]
		s.executions++
		s.mu.Unlock()

		// A slow engine keeps working past the deadline; it does not
		// watch the context.
		if delay > 0 {
			time.Sleep(delay)
		}

		if fail {
			return nil, fmt.Errorf("settlement engine unavailable")
		}
		if accepted {
			return &saboteur.Verdict{Reverted: false, Payload: []byte("settled")}, nil
		}
		return &saboteur.Verdict{Reverted: true, Payload: expected}, nil
	})
}

// encodeSimPayload prefixes the expected revert reason with the mutation name.
func encodeSimPayload(mutation string, expected []byte) []byte {
	payload := make([]byte, 0, len(mutation)+1+len(expected))
	payload = append(payload, mutation...)
	payload = append(payload, '|')
	return append(payload, expected...)
}

// decodeSimPayload splits a tagged payload back into mutation name and
// expected revert reason.
func decodeSimPayload(payload []byte) (string, []byte) {
	idx := bytes.IndexByte(payload, '|')
	if idx < 0 {
		return "", payload
	}
	return string(payload[:idx]), payload[idx+1:]
}

// HonestMutator returns a mutator whose payload is exactly the expected
// revert reason. Paired with HonestExecutor every trial confirms.
func HonestMutator() saboteur.Mutator {
	return saboteur.MutatorFunc(func(ctx context.Context, scn *saboteur.Scenario, plan *saboteur.Plan) ([]byte, error) {
		return plan.Expected, nil
	})
}

// HonestExecutor returns an executor that reverts every payload with the
// payload itself as the reason.
func HonestExecutor() saboteur.Executor {
	return saboteur.ExecutorFunc(func(ctx context.Context, payload []byte) (*saboteur.Verdict, error) {
		return &saboteur.Verdict{Reverted: true, Payload: payload}, nil
	})
}

// ============================================================================
// Rapid Generators
// ============================================================================

// tokenPalette is the set of asset contracts scenarios draw from.
var tokenPalette = []saboteur.Token{"WETH", "USDC", "DAI", "LOOT", "PUNK", "MACE"}

// AccountGenerator generates random account identifiers with the given prefix.
func AccountGenerator(prefix string) *rapid.Generator[saboteur.Account] {
	return rapid.Custom(func(t *rapid.T) saboteur.Account {
		id := rapid.StringMatching(fmt.Sprintf(`^%s-[a-z0-9]{6}$`, prefix)).Draw(t, "accountID")
		return saboteur.Account(id)
	})
}

// TokenGenerator generates a token from the palette.
func TokenGenerator() *rapid.Generator[saboteur.Token] {
	return rapid.SampledFrom(tokenPalette)
}

// SignatureGenerator generates well-formed 65 byte order signatures.
func SignatureGenerator() *rapid.Generator[[]byte] {
	return rapid.SliceOfN(rapid.Byte(), 65, 65)
}

// OfferItemGenerator generates random offer items.
func OfferItemGenerator() *rapid.Generator[saboteur.Item] {
	return rapid.Custom(func(t *rapid.T) saboteur.Item {
		kind := rapid.SampledFrom([]saboteur.ItemKind{
			saboteur.ItemToken,
			saboteur.ItemNFT,
			saboteur.ItemNFTCriteria,
		}).Draw(t, "offerKind")

		item := saboteur.Item{
			Kind:  kind,
			Token: TokenGenerator().Draw(t, "offerToken"),
		}
		switch kind {
		case saboteur.ItemToken:
			item.Amount = rapid.Uint64Range(1, 1000000).Draw(t, "offerAmount")
		default:
			item.Identifier = rapid.Uint64Range(1, 1000000).Draw(t, "offerIdentifier")
			item.Amount = 1
		}
		return item
	})
}

// ConsiderationItemGenerator generates random consideration items.
func ConsiderationItemGenerator() *rapid.Generator[saboteur.Item] {
	return rapid.Custom(func(t *rapid.T) saboteur.Item {
		item := saboteur.Item{
			Amount:    rapid.Uint64Range(1, 1000000).Draw(t, "considerationAmount"),
			Recipient: AccountGenerator("rcpt").Draw(t, "recipient"),
		}
		if rapid.Bool().Draw(t, "considerationNative") {
			item.Kind = saboteur.ItemNative
		} else {
			item.Kind = saboteur.ItemToken
			item.Token = TokenGenerator().Draw(t, "considerationToken")
		}
		return item
	})
}

// OrderGenerator generates random well-formed orders. Contract orders carry
// no signature; every other kind is signed.
func OrderGenerator() *rapid.Generator[saboteur.Order] {
	return rapid.Custom(func(t *rapid.T) saboteur.Order {
		kind := rapid.SampledFrom([]saboteur.OrderKind{
			saboteur.OrderStandard,
			saboteur.OrderPartial,
			saboteur.OrderRestricted,
			saboteur.OrderContract,
		}).Draw(t, "orderKind")

		start := rapid.Int64Range(1600000000, 1700000000).Draw(t, "startTime")
		end := start + rapid.Int64Range(100000, 100000000).Draw(t, "window")

		order := saboteur.Order{
			Offerer:   AccountGenerator("offerer").Draw(t, "offerer"),
			Kind:      kind,
			Offer:     rapid.SliceOfN(OfferItemGenerator(), 1, 3).Draw(t, "offer"),
			StartTime: start,
			EndTime:   end,
			Salt:      rapid.Uint64().Draw(t, "salt"),
		}
		if rapid.Bool().Draw(t, "hasConsideration") {
			order.Consideration = rapid.SliceOfN(ConsiderationItemGenerator(), 1, 3).Draw(t, "consideration")
		}
		if kind != saboteur.OrderContract {
			order.Signature = SignatureGenerator().Draw(t, "signature")
		}
		return order
	})
}

// ScenarioGenerator generates random valid scenarios with one to four orders.
// Resolvers are derived from the criteria items actually present, so every
// resolver coordinate is in range. Eligibility varies freely: routes, native
// value and expected transfers may or may not be present.
func ScenarioGenerator() *rapid.Generator[*saboteur.Scenario] {
	return rapid.Custom(func(t *rapid.T) *saboteur.Scenario {
		builder := saboteur.NewScenario().
			WithSeed(rapid.Uint64().Draw(t, "seed")).
			WithCaller(AccountGenerator("caller").Draw(t, "caller"))

		if rapid.IntRange(0, 3).Draw(t, "routed") > 0 {
			route := rapid.StringMatching(`^conduit-[0-9]{2}$`).Draw(t, "route")
			builder.WithRoute(saboteur.RouteKey(route))
		}

		orders := rapid.SliceOfN(OrderGenerator(), 1, 4).Draw(t, "orders")
		for _, order := range orders {
			builder.AddOrder(order)
		}

		// Point resolvers at criteria items the drawn orders actually carry.
		for orderIndex, order := range orders {
			for itemIndex, item := range order.Offer {
				if !item.Kind.IsCriteria() {
					continue
				}
				count := rapid.IntRange(0, 2).Draw(t, "resolverCount")
				for i := 0; i < count; i++ {
					resolver := saboteur.CriteriaResolver{
						OrderIndex: orderIndex,
						Side:       saboteur.SideOffer,
						ItemIndex:  itemIndex,
						Identifier: rapid.Uint64Range(1, 1000000).Draw(t, "resolverIdentifier"),
					}
					if rapid.Bool().Draw(t, "proofBacked") {
						resolver.Proof = rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 2, 32), 1, 3).Draw(t, "proof")
					}
					builder.AddCriteriaResolver(resolver)
				}
			}
		}

		// Cover some offer items with explicit transfers; uncovered
		// non-native items keep the transfer failure cases eligible.
		caller := saboteur.Account("caller-settle")
		for _, order := range orders {
			for _, item := range order.Offer {
				if rapid.Bool().Draw(t, "covered") {
					builder.ExpectExplicit(saboteur.Transfer{
						Kind:   item.Kind,
						Token:  item.Token,
						From:   order.Offerer,
						To:     caller,
						Amount: item.Amount,
					})
				}
			}
		}

		return builder.MustBuild()
	})
}

// OrderlessScenarioGenerator generates scenarios with no orders and no
// resolvers. Every order-scoped failure case is ineligible for these.
func OrderlessScenarioGenerator() *rapid.Generator[*saboteur.Scenario] {
	return rapid.Custom(func(t *rapid.T) *saboteur.Scenario {
		builder := saboteur.NewScenario().
			WithSeed(rapid.Uint64().Draw(t, "seed")).
			WithCaller(AccountGenerator("caller").Draw(t, "caller"))
		if rapid.Bool().Draw(t, "routed") {
			builder.WithRoute("conduit-0")
		}
		return builder.MustBuild()
	})
}

// RichScenarioGenerator generates scenarios that keep every failure case in
// the catalog eligible: a signed standard order paying native value, a
// partial order carrying a criteria item with both a proof-backed and a
// wildcard resolver, a restricted order, a route, and at least one offer item
// left uncovered by the expected transfers. Accounts, tokens, amounts and the
// seed vary freely.
func RichScenarioGenerator() *rapid.Generator[*saboteur.Scenario] {
	return rapid.Custom(func(t *rapid.T) *saboteur.Scenario {
		alice := AccountGenerator("alice").Draw(t, "alice")
		bob := AccountGenerator("bob").Draw(t, "bob")
		carol := AccountGenerator("carol").Draw(t, "carol")
		caller := AccountGenerator("caller").Draw(t, "caller")

		nativeAmount := rapid.Uint64Range(1, 1000000).Draw(t, "nativeAmount")
		tokenAmount := rapid.Uint64Range(1, 1000000).Draw(t, "tokenAmount")
		criteriaRoot := rapid.Uint64Range(1, 1000000).Draw(t, "criteriaRoot")
		identifier := rapid.Uint64Range(1, 1000000).Draw(t, "identifier")
		seed := rapid.Uint64().Draw(t, "seed")

		return saboteur.NewScenario().
			WithSeed(seed).
			WithCaller(caller).
			WithRoute("conduit-1").
			AddOrder(saboteur.Order{
				Offerer: alice,
				Kind:    saboteur.OrderStandard,
				Offer: []saboteur.Item{
					{Kind: saboteur.ItemToken, Token: "WETH", Amount: tokenAmount},
				},
				Consideration: []saboteur.Item{
					{Kind: saboteur.ItemNative, Amount: nativeAmount, Recipient: alice},
					{Kind: saboteur.ItemToken, Token: "USDC", Amount: tokenAmount, Recipient: bob},
				},
				StartTime: 1700000000,
				EndTime:   1800000000,
				Salt:      rapid.Uint64().Draw(t, "salt0"),
				Signature: SignatureGenerator().Draw(t, "sig0"),
			}).
			AddOrder(saboteur.Order{
				Offerer: bob,
				Kind:    saboteur.OrderPartial,
				Offer: []saboteur.Item{
					{Kind: saboteur.ItemNFTCriteria, Token: "LOOT", Identifier: criteriaRoot, Amount: 1},
				},
				Consideration: []saboteur.Item{
					{Kind: saboteur.ItemToken, Token: "USDC", Amount: tokenAmount, Recipient: bob},
				},
				StartTime: 1700000000,
				EndTime:   1800000000,
				Salt:      rapid.Uint64().Draw(t, "salt1"),
				Signature: SignatureGenerator().Draw(t, "sig1"),
			}).
			AddOrder(saboteur.Order{
				Offerer: carol,
				Kind:    saboteur.OrderRestricted,
				Offer: []saboteur.Item{
					{Kind: saboteur.ItemNFT, Token: "PUNK", Identifier: identifier, Amount: 1},
				},
				Consideration: []saboteur.Item{
					{Kind: saboteur.ItemToken, Token: "USDC", Amount: tokenAmount, Recipient: carol},
				},
				StartTime: 1700000000,
				EndTime:   1800000000,
				Salt:      rapid.Uint64().Draw(t, "salt2"),
				Signature: SignatureGenerator().Draw(t, "sig2"),
			}).
			AddCriteriaResolver(saboteur.CriteriaResolver{
				OrderIndex: 1,
				Side:       saboteur.SideOffer,
				ItemIndex:  0,
				Identifier: identifier,
				Proof:      [][]byte{{0xaa, 0xbb}},
			}).
			AddCriteriaResolver(saboteur.CriteriaResolver{
				OrderIndex: 1,
				Side:       saboteur.SideOffer,
				ItemIndex:  0,
				Identifier: identifier + 1,
			}).
			ExpectExplicit(saboteur.Transfer{
				Kind:   saboteur.ItemToken,
				Token:  "WETH",
				From:   alice,
				To:     caller,
				Amount: tokenAmount,
				Route:  "conduit-1",
			}).
			MustBuild()
	})
}
