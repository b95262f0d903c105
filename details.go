package saboteur

import (
	"encoding/binary"
	"fmt"
)

// FaultCode is the 4-byte discriminator leading every revert payload the
// settlement engine produces when it rejects a run.
type FaultCode uint32

// Payload encodes the code followed by the given argument words: the code
// big-endian in 4 bytes, then each argument big-endian in 8 bytes.
func (c FaultCode) Payload(args ...uint64) []byte {
	buf := make([]byte, 4, 4+8*len(args))
	binary.BigEndian.PutUint32(buf, uint32(c))
	for _, arg := range args {
		buf = binary.BigEndian.AppendUint64(buf, arg)
	}
	return buf
}

// ReasonDeriver computes the revert payload expected once a planned
// failure is applied. Derivers run after the mutation target is resolved:
// a per-order deriver may assume state.Order is set, a per-resolver
// deriver state.Resolver.
type ReasonDeriver func(scn *Scenario, state *MutationState, code FaultCode) []byte

// Detail describes one failure case: the name it is reported under, the
// mutation routine that applies it, the fault code the settlement engine
// rejects it with, and the derivation scope of its target.
type Detail struct {
	// Name is the reporting name. It defaults to the catalog name of the
	// failure case when left empty at registration.
	Name string

	// Mutation names the mutation routine a Mutator dispatches on.
	Mutation string

	Code  FaultCode
	Scope DerivationScope

	// Deriver computes the expected revert payload. When nil the payload
	// is the bare fault code with no arguments.
	Deriver ReasonDeriver
}

// DetailSet holds exactly one Detail per failure case. Registration
// happens once at setup; a DetailSet is read-only afterwards and safe for
// concurrent use.
type DetailSet struct {
	details map[Failure]Detail
}

// NewDetailSet creates an empty detail set.
func NewDetailSet() *DetailSet {
	return &DetailSet{
		details: make(map[Failure]Detail),
	}
}

// Add registers the detail for kind. A second registration for the same
// kind fails rather than silently replacing the first.
func (ds *DetailSet) Add(kind Failure, detail Detail) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidFailure, int(kind))
	}
	if _, dup := ds.details[kind]; dup {
		return fmt.Errorf("%w: %s", ErrDetailAlreadyRegistered, kind)
	}
	if !detail.Scope.Valid() {
		return fmt.Errorf("%s: %w: %v", kind, ErrUnknownScope, detail.Scope)
	}
	if detail.Name == "" {
		detail.Name = kind.String()
	}
	ds.details[kind] = detail
	return nil
}

// Get returns the detail for kind.
func (ds *DetailSet) Get(kind Failure) (Detail, error) {
	detail, ok := ds.details[kind]
	if !ok {
		return Detail{}, fmt.Errorf("%w: %s", ErrDetailMissing, kind)
	}
	return detail, nil
}

// Len returns the number of registered details.
func (ds *DetailSet) Len() int {
	return len(ds.details)
}

// AssertComplete verifies that every given failure case has a registered
// detail. It returns ErrDetailMissing naming the first case without one.
func (ds *DetailSet) AssertComplete(kinds []Failure) error {
	for _, kind := range kinds {
		if _, ok := ds.details[kind]; !ok {
			return fmt.Errorf("%w: %s", ErrDetailMissing, kind)
		}
	}
	return nil
}

// RevertReason computes the revert payload the settlement engine must
// produce once the planned failure is applied to the scenario.
func (ds *DetailSet) RevertReason(scn *Scenario, state *MutationState, kind Failure) ([]byte, error) {
	detail, err := ds.Get(kind)
	if err != nil {
		return nil, err
	}
	if detail.Deriver == nil {
		return detail.Code.Payload(), nil
	}
	return detail.Deriver(scn, state, detail.Code), nil
}
