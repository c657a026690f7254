// Package session owns the client-side cart state machine. A Store is the
// single writer for one shopping session's cart snapshot: it restores the
// session from a persisted cart id, coordinates optimistic mutations against
// the remote platform, and rolls back on failure.
package session

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/packon/storefront/internal/cart"
)

// State is the session lifecycle phase.
type State int

const (
	// StateUninitialized means no cart id is held.
	StateUninitialized State = iota
	// StateRestoring means a persisted id is being re-validated remotely.
	StateRestoring
	// StateReady means the store holds a snapshot of a live remote cart.
	StateReady
	// StateMutating means a mutation is in flight.
	StateMutating
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRestoring:
		return "restoring"
	case StateReady:
		return "ready"
	case StateMutating:
		return "mutating"
	default:
		return "unknown"
	}
}

var (
	// ErrMutationInFlight is returned when a second mutation arrives while
	// one is pending. Mutations are rejected rather than queued so the
	// optimistic-rollback path never races a concurrent write.
	ErrMutationInFlight = errors.New("cart mutation already in flight")

	// ErrCartUnavailable is returned for line operations on a session that
	// holds no cart.
	ErrCartUnavailable = errors.New("no cart in session")
)

// Commerce is the remote cart surface the store drives.
type Commerce interface {
	Create(ctx context.Context) (*cart.Cart, error)
	Read(ctx context.Context, id string) (*cart.Cart, error)
	AddLines(ctx context.Context, id string, lines []cart.LineInput) (*cart.Cart, error)
	RemoveLines(ctx context.Context, id string, lineIDs []string) (*cart.Cart, error)
	UpdateLines(ctx context.Context, id string, updates []cart.LineUpdate) (*cart.Cart, error)
}

// IDStore persists the cart identifier across sessions. The id is the only
// durable piece of cart state: full contents are always re-read from the
// remote system because prices and availability may change server-side.
type IDStore interface {
	Save(ctx context.Context, id string) error
	// Load returns the persisted id, or "" when none is stored.
	Load(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// Store is the cart session state machine.
type Store struct {
	remote   Commerce
	ids      IDStore
	onChange func(*cart.Cart)

	mu     sync.Mutex
	state  State
	cartID string
	cart   *cart.Cart
}

// Option customizes a Store.
type Option func(*Store)

// WithOnChange registers a callback invoked with a fresh snapshot every time
// the published cart changes, including optimistic projections.
func WithOnChange(fn func(*cart.Cart)) Option {
	return func(s *Store) { s.onChange = fn }
}

// New creates a Store.
func New(remote Commerce, ids IDStore, opts ...Option) *Store {
	s := &Store{remote: remote, ids: ids}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle phase.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CartID returns the current cart identifier, or "" when none is held.
func (s *Store) CartID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartID
}

// Cart returns a snapshot copy of the current cart, or nil.
func (s *Store) Cart() *cart.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Init restores the session from the persisted cart id. With no persisted id
// the store stays Uninitialized. A recognized id yields a Ready store holding
// the remote snapshot. An expired or unknown id is discarded and the store
// returns to Uninitialized without error: that path is expected, not
// exceptional. On transport failure the id is kept so a later Init can retry.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRestoring || s.state == StateMutating {
		s.mu.Unlock()
		return ErrMutationInFlight
	}

	id, err := s.ids.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "load cart id")
	}
	if id == "" {
		s.state = StateUninitialized
		s.cartID = ""
		s.cart = nil
		s.mu.Unlock()
		return nil
	}
	s.state = StateRestoring
	s.cartID = id
	s.mu.Unlock()

	remote, err := s.remote.Read(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateUninitialized
		return errors.Wrap(err, "restore cart")
	}
	if remote == nil {
		// The remote no longer recognizes the id: start a fresh session.
		s.state = StateUninitialized
		s.cartID = ""
		s.cart = nil
		if err := s.ids.Clear(ctx); err != nil {
			return errors.Wrap(err, "clear cart id")
		}
		return nil
	}

	s.cart = remote
	s.state = StateReady
	s.publishLocked()
	return nil
}

// AddItem adds quantity units of a variant. When no cart exists yet, a cart
// is created first and its id persisted immediately; a creation failure
// aborts the whole operation. The remote response is adopted verbatim as the
// new snapshot — quantities are never recomputed locally for an add.
func (s *Store) AddItem(ctx context.Context, variantID string, quantity int) error {
	s.mu.Lock()
	if s.state == StateMutating || s.state == StateRestoring {
		s.mu.Unlock()
		return ErrMutationInFlight
	}
	s.state = StateMutating
	cartID := s.cartID
	s.mu.Unlock()

	if cartID == "" {
		created, err := s.remote.Create(ctx)
		if err == nil && created == nil {
			err = errors.New("remote returned no cart")
		}
		if err != nil {
			s.settle(nil, false)
			return errors.Wrap(err, "create cart")
		}
		if err := s.ids.Save(ctx, created.ID); err != nil {
			s.settle(nil, false)
			return errors.Wrap(err, "persist cart id")
		}

		s.mu.Lock()
		s.cartID = created.ID
		s.cart = created
		s.publishLocked()
		s.mu.Unlock()
		cartID = created.ID
	}

	updated, err := s.remote.AddLines(ctx, cartID, []cart.LineInput{
		{MerchandiseID: variantID, Quantity: quantity},
	})
	if err == nil && updated == nil {
		err = errors.New("remote returned no cart")
	}
	if err != nil {
		// Prior snapshot is untouched; just leave Mutating.
		s.settle(nil, false)
		return errors.Wrap(err, "add item")
	}

	s.settle(updated, true)
	return nil
}

// RemoveItem removes one line. The removal is published optimistically —
// the line filtered out and the total quantity decremented — before the
// network call, then replaced by the authoritative response. Cost amounts are
// deliberately left stale in the projection: currency-safe recomputation
// requires authoritative data. On failure the pre-call snapshot is restored
// exactly.
func (s *Store) RemoveItem(ctx context.Context, lineID string) error {
	s.mu.Lock()
	switch s.state {
	case StateMutating, StateRestoring:
		s.mu.Unlock()
		return ErrMutationInFlight
	case StateUninitialized:
		s.mu.Unlock()
		return ErrCartUnavailable
	}

	rollback := s.cart.Clone()
	cartID := s.cartID

	optimistic := s.cart.Clone()
	removedQty := 0
	kept := optimistic.Lines[:0]
	for _, ln := range optimistic.Lines {
		if ln.ID == lineID {
			removedQty = ln.Quantity
			continue
		}
		kept = append(kept, ln)
	}
	optimistic.Lines = kept
	optimistic.TotalQuantity = max(0, optimistic.TotalQuantity-removedQty)

	s.cart = optimistic
	s.state = StateMutating
	s.publishLocked()
	s.mu.Unlock()

	updated, err := s.remote.RemoveLines(ctx, cartID, []string{lineID})
	if err == nil && updated == nil {
		err = errors.New("remote returned no cart")
	}
	if err != nil {
		s.settle(rollback, true)
		return errors.Wrap(err, "remove item")
	}

	s.settle(updated, true)
	return nil
}

// UpdateItem sets a new quantity on a line. There is no optimistic
// projection for quantity changes: the snapshot is only replaced by the
// authoritative response, and a failure leaves the prior snapshot in place.
func (s *Store) UpdateItem(ctx context.Context, lineID string, quantity int) error {
	s.mu.Lock()
	switch s.state {
	case StateMutating, StateRestoring:
		s.mu.Unlock()
		return ErrMutationInFlight
	case StateUninitialized:
		s.mu.Unlock()
		return ErrCartUnavailable
	}
	cartID := s.cartID
	s.state = StateMutating
	s.mu.Unlock()

	updated, err := s.remote.UpdateLines(ctx, cartID, []cart.LineUpdate{
		{LineID: lineID, Quantity: quantity},
	})
	if err == nil && updated == nil {
		err = errors.New("remote returned no cart")
	}
	if err != nil {
		s.settle(nil, false)
		return errors.Wrap(err, "update item")
	}

	s.settle(updated, true)
	return nil
}

// settle ends the Mutating phase. When replace is true the given snapshot
// (possibly a rollback copy) becomes current and is published; otherwise the
// existing snapshot is kept. The next state follows from whether a cart is
// held at all.
func (s *Store) settle(snapshot *cart.Cart, replace bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if replace {
		s.cart = snapshot
	}
	if s.cart != nil {
		s.state = StateReady
	} else {
		s.state = StateUninitialized
	}
	if replace {
		s.publishLocked()
	}
}

// publishLocked notifies the change listener with a snapshot copy. Caller
// holds mu.
func (s *Store) publishLocked() {
	if s.onChange != nil {
		s.onChange(s.cart.Clone())
	}
}
