package saboteur

import (
	"fmt"

	"github.com/google/uuid"
)

// Account identifies a participant: an offerer, the caller, or a
// consideration recipient.
type Account string

// Token identifies the asset contract an item is drawn from. The empty
// Token denotes the chain's native asset.
type Token string

// RouteKey selects the transfer route a settlement run moves assets
// through. The empty RouteKey means assets move directly between
// participants with no intermediary.
type RouteKey string

// ItemKind classifies the asset carried by an Item.
type ItemKind int

const (
	// ItemNative is the chain's native asset.
	ItemNative ItemKind = iota
	// ItemToken is a fungible token balance.
	ItemToken
	// ItemNFT is a specific non-fungible token.
	ItemNFT
	// ItemNFTCriteria is a non-fungible token constrained by a criteria
	// root instead of a concrete identifier. A CriteriaResolver supplies
	// the concrete identifier at settlement time.
	ItemNFTCriteria
)

// String returns the kind name used in stored trials and logs.
func (k ItemKind) String() string {
	switch k {
	case ItemNative:
		return "native"
	case ItemToken:
		return "token"
	case ItemNFT:
		return "nft"
	case ItemNFTCriteria:
		return "nft_criteria"
	default:
		return fmt.Sprintf("ItemKind(%d)", int(k))
	}
}

// IsNative reports whether the kind moves the chain's native asset.
func (k ItemKind) IsNative() bool {
	return k == ItemNative
}

// IsCriteria reports whether items of this kind need a criteria resolver.
func (k ItemKind) IsCriteria() bool {
	return k == ItemNFTCriteria
}

// Item is a single asset position inside an order.
type Item struct {
	Kind  ItemKind
	Token Token

	// Identifier is the token identifier for non-fungible kinds. For
	// criteria-backed kinds it holds the criteria root instead.
	Identifier uint64

	Amount uint64

	// Recipient is set on consideration items only.
	Recipient Account
}

// OrderKind classifies how an order may be settled.
type OrderKind int

const (
	// OrderStandard settles fully or not at all.
	OrderStandard OrderKind = iota
	// OrderPartial may settle a fraction of its amounts.
	OrderPartial
	// OrderRestricted requires sign-off from an approval authority.
	OrderRestricted
	// OrderContract is originated by a contract offerer and carries no
	// signature.
	OrderContract
)

// String returns the kind name used in stored trials and logs.
func (k OrderKind) String() string {
	switch k {
	case OrderStandard:
		return "standard"
	case OrderPartial:
		return "partial"
	case OrderRestricted:
		return "restricted"
	case OrderContract:
		return "contract"
	default:
		return fmt.Sprintf("OrderKind(%d)", int(k))
	}
}

// Order is one offer/consideration pair inside a scenario.
type Order struct {
	Offerer Account
	Kind    OrderKind

	Offer         []Item
	Consideration []Item

	// StartTime and EndTime bound the validity window in unix seconds.
	StartTime int64
	EndTime   int64

	Salt uint64

	// Signature authorizes the order. Contract orders leave it empty.
	Signature []byte
}

// Signed reports whether the order carries a signature.
func (o *Order) Signed() bool {
	return len(o.Signature) > 0
}

// HasNativeConsideration reports whether any consideration item pays the
// chain's native asset.
func (o *Order) HasNativeConsideration() bool {
	for _, item := range o.Consideration {
		if item.Kind.IsNative() {
			return true
		}
	}
	return false
}

// Side distinguishes the offer and consideration lists of an order.
type Side int

const (
	// SideOffer addresses the offer list.
	SideOffer Side = iota
	// SideConsideration addresses the consideration list.
	SideConsideration
)

// String returns the side name used in stored trials and logs.
func (s Side) String() string {
	switch s {
	case SideOffer:
		return "offer"
	case SideConsideration:
		return "consideration"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// CriteriaResolver supplies the concrete identifier for one
// criteria-backed item, together with the membership proof against the
// item's criteria root. An empty proof marks a wildcard root that accepts
// any identifier.
type CriteriaResolver struct {
	OrderIndex int
	Side       Side
	ItemIndex  int
	Identifier uint64
	Proof      [][]byte
}

// Wildcard reports whether the resolver targets a wildcard criteria root.
func (r *CriteriaResolver) Wildcard() bool {
	return len(r.Proof) == 0
}

// Transfer describes one asset movement a settlement run is expected to
// perform.
type Transfer struct {
	Kind   ItemKind
	Token  Token
	From   Account
	To     Account
	Amount uint64
	Route  RouteKey
}

// Covers reports whether this transfer moves the given item, out of the
// given participant, over the given route. Kind and token must match
// exactly; amounts are not compared because a covering transfer of any
// size exercises the same approval path.
func (t *Transfer) Covers(participant Account, route RouteKey, item Item) bool {
	return t.From == participant &&
		t.Route == route &&
		t.Kind == item.Kind &&
		t.Token == item.Token
}

// Scenario is one generated settlement test case: the orders and criteria
// resolvers to settle, the expected transfers of the honest run, and the
// seed that drives every choice made while planning its corruption.
//
// The three ineligibility sets grow monotonically. Evaluation and
// derivation only ever add marks; nothing removes one. A Scenario is not
// safe for concurrent use.
type Scenario struct {
	// ID tags the scenario in stored trials and events.
	ID string

	Orders            []Order
	CriteriaResolvers []CriteriaResolver

	// Caller is the account submitting the settlement run.
	Caller Account

	// Route is the transfer route the run settles through.
	Route RouteKey

	// ExpectedExplicit and ExpectedImplicit are the transfers the honest
	// run performs: explicit ones named by the orders, implicit ones
	// added by the settlement engine itself.
	ExpectedExplicit []Transfer
	ExpectedImplicit []Transfer

	// Seed drives every selection made for this scenario.
	Seed uint64

	ineligibleFailures  map[Failure]struct{}
	ineligibleOrders    map[int]struct{}
	ineligibleResolvers map[int]struct{}
}

// MarkFailureIneligible records that the scenario cannot exhibit kind.
func (s *Scenario) MarkFailureIneligible(kind Failure) {
	if s.ineligibleFailures == nil {
		s.ineligibleFailures = make(map[Failure]struct{})
	}
	s.ineligibleFailures[kind] = struct{}{}
}

// FailureEligible reports whether kind has not been marked ineligible.
func (s *Scenario) FailureEligible(kind Failure) bool {
	_, marked := s.ineligibleFailures[kind]
	return !marked
}

// MarkOrderIneligible records that the order at index cannot exhibit the
// failure case being derived.
func (s *Scenario) MarkOrderIneligible(index int) {
	if s.ineligibleOrders == nil {
		s.ineligibleOrders = make(map[int]struct{})
	}
	s.ineligibleOrders[index] = struct{}{}
}

// OrderEligible reports whether the order at index has not been marked
// ineligible.
func (s *Scenario) OrderEligible(index int) bool {
	_, marked := s.ineligibleOrders[index]
	return !marked
}

// MarkResolverIneligible records that the criteria resolver at index
// cannot exhibit the failure case being derived.
func (s *Scenario) MarkResolverIneligible(index int) {
	if s.ineligibleResolvers == nil {
		s.ineligibleResolvers = make(map[int]struct{})
	}
	s.ineligibleResolvers[index] = struct{}{}
}

// ResolverEligible reports whether the criteria resolver at index has not
// been marked ineligible.
func (s *Scenario) ResolverEligible(index int) bool {
	_, marked := s.ineligibleResolvers[index]
	return !marked
}

// EligibleFailures returns the failure cases still eligible for the
// scenario, in catalog order.
func (s *Scenario) EligibleFailures() []Failure {
	var out []Failure
	for f := Failure(0); f < failureCount; f++ {
		if s.FailureEligible(f) {
			out = append(out, f)
		}
	}
	return out
}

// EligibleOrderIndices returns the indices of orders still eligible for
// the failure case being derived, in scenario order.
func (s *Scenario) EligibleOrderIndices() []int {
	var out []int
	for i := range s.Orders {
		if s.OrderEligible(i) {
			out = append(out, i)
		}
	}
	return out
}

// EligibleResolverIndices returns the indices of criteria resolvers still
// eligible for the failure case being derived, in scenario order.
func (s *Scenario) EligibleResolverIndices() []int {
	var out []int
	for i := range s.CriteriaResolvers {
		if s.ResolverEligible(i) {
			out = append(out, i)
		}
	}
	return out
}

// Routed reports whether the scenario settles through a named route.
func (s *Scenario) Routed() bool {
	return s.Route != ""
}

// TotalNativeConsideration sums native consideration amounts across all
// orders. The settlement call must attach at least this much value.
func (s *Scenario) TotalNativeConsideration() uint64 {
	var total uint64
	for i := range s.Orders {
		for _, item := range s.Orders[i].Consideration {
			if item.Kind.IsNative() {
				total += item.Amount
			}
		}
	}
	return total
}

// ScenarioBuilder provides a fluent API for assembling scenarios.
type ScenarioBuilder struct {
	scn    *Scenario
	errors []error
}

// NewScenario creates a new scenario builder. The scenario ID is
// automatically generated using UUID.
func NewScenario() *ScenarioBuilder {
	return &ScenarioBuilder{
		scn: &Scenario{
			ID: uuid.New().String(),
		},
		errors: make([]error, 0),
	}
}

// NewScenarioWithID creates a new scenario builder with a specific ID.
// This is useful when replaying a stored trial.
func NewScenarioWithID(id string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scn: &Scenario{
			ID: id,
		},
		errors: make([]error, 0),
	}
}

// WithSeed sets the selection seed.
func (b *ScenarioBuilder) WithSeed(seed uint64) *ScenarioBuilder {
	b.scn.Seed = seed
	return b
}

// WithCaller sets the account submitting the settlement run.
func (b *ScenarioBuilder) WithCaller(caller Account) *ScenarioBuilder {
	if caller == "" {
		b.errors = append(b.errors, fmt.Errorf("caller cannot be empty"))
		return b
	}
	b.scn.Caller = caller
	return b
}

// WithRoute sets the transfer route for the run.
func (b *ScenarioBuilder) WithRoute(route RouteKey) *ScenarioBuilder {
	b.scn.Route = route
	return b
}

// AddOrder appends an order to the scenario.
func (b *ScenarioBuilder) AddOrder(order Order) *ScenarioBuilder {
	if order.Offerer == "" {
		b.errors = append(b.errors, fmt.Errorf("order %d: offerer cannot be empty", len(b.scn.Orders)))
		return b
	}
	if order.Kind == OrderContract && order.Signed() {
		b.errors = append(b.errors, fmt.Errorf("order %d: contract order cannot carry a signature", len(b.scn.Orders)))
		return b
	}
	b.scn.Orders = append(b.scn.Orders, order)
	return b
}

// AddCriteriaResolver appends a criteria resolver. Order index bounds are
// checked at Build time so resolvers may be added before their orders.
func (b *ScenarioBuilder) AddCriteriaResolver(resolver CriteriaResolver) *ScenarioBuilder {
	b.scn.CriteriaResolvers = append(b.scn.CriteriaResolvers, resolver)
	return b
}

// ExpectExplicit appends a transfer named by the orders themselves.
func (b *ScenarioBuilder) ExpectExplicit(transfer Transfer) *ScenarioBuilder {
	b.scn.ExpectedExplicit = append(b.scn.ExpectedExplicit, transfer)
	return b
}

// ExpectImplicit appends a transfer the settlement engine adds on its own.
func (b *ScenarioBuilder) ExpectImplicit(transfer Transfer) *ScenarioBuilder {
	b.scn.ExpectedImplicit = append(b.scn.ExpectedImplicit, transfer)
	return b
}

// Build validates and returns the scenario.
func (b *ScenarioBuilder) Build() (*Scenario, error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	if b.scn.Caller == "" {
		return nil, fmt.Errorf("scenario must have a caller")
	}

	for i, r := range b.scn.CriteriaResolvers {
		if r.OrderIndex < 0 || r.OrderIndex >= len(b.scn.Orders) {
			return nil, fmt.Errorf("criteria resolver %d: order index %d out of range", i, r.OrderIndex)
		}
		order := &b.scn.Orders[r.OrderIndex]
		items := order.Offer
		if r.Side == SideConsideration {
			items = order.Consideration
		}
		if r.ItemIndex < 0 || r.ItemIndex >= len(items) {
			return nil, fmt.Errorf("criteria resolver %d: item index %d out of range", i, r.ItemIndex)
		}
	}

	return b.scn, nil
}

// MustBuild validates and returns the scenario, panicking on error.
// Use this only when you're certain the scenario is valid.
func (b *ScenarioBuilder) MustBuild() *Scenario {
	scn, err := b.Build()
	if err != nil {
		panic(err)
	}
	return scn
}
