package musicbox

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they run inline on the
// caller's goroutine (wrap with hooks/async otherwise).
type Hooks interface {
	// A cache entry was purged on read.
	// reason ∈ {"corrupt", "expired", "value_decode"}
	SelfHeal(storageKey, reason string)

	// A cache write was dropped (quota, disabled storage, backend down).
	StoreWriteFailed(storageKey string, err error)

	// The location gate moved between states.
	GateTransition(boxSlug string, from, to GateState)

	// A background re-check revoked access that had been granted.
	AccessRevoked(boxSlug string, reason DenialReason)

	// The server replaced the account balance.
	BalanceReplaced(previous, current int)

	// Anonymous points were dropped when a user signed in.
	AnonymousPointsDiscarded(points int)

	// A search response arrived after a newer query superseded it.
	StaleSearchDropped(query string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)                     {}
func (NopHooks) StoreWriteFailed(string, error)              {}
func (NopHooks) GateTransition(string, GateState, GateState) {}
func (NopHooks) AccessRevoked(string, DenialReason)          {}
func (NopHooks) BalanceReplaced(int, int)                    {}
func (NopHooks) AnonymousPointsDiscarded(int)                {}
func (NopHooks) StaleSearchDropped(string)                   {}
