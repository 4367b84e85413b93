// Package musicbox is the client core of a location-gated music box: users
// standing near a physical box can browse the songs left there, spend points
// to reveal them, leave one of their own and react with emojis.
//
// Components:
//   - TTLStore[V]: expiring values over a byte Provider (Ristretto, BigCache,
//     Redis). Corrupt or expired entries read as misses and are removed.
//   - Gate: proves presence (position, then server verification), seeds the
//     BoxSnapshot on grant and re-checks in the background until revoked.
//   - SnapshotStore: the one cached view of the current box, patched
//     field-by-field by every screen.
//   - Economy: reveal, deposit, purchase and react. Server balances replace
//     the local one; failures leave every copy untouched.
//   - ReactionPicker / EmojiCatalog: which emojis a user may use and the
//     purchase-then-react flow.
//   - Searcher: debounced search-as-you-type; late responses are dropped.
//
// Keys:
//
//	<ns>:mm_box_content - the box snapshot
//	<ns>:anon_points    - points earned while signed out
//
// Visit pattern:
//
//	sess, _ := musicbox.New(musicbox.Options{Service: client, Provider: store, Locator: loc})
//	gate, _ := sess.OpenGate("canal", onRevoked)
//	defer gate.Close()
//	if out := gate.Enter(ctx); out.Granted() {
//	    song, err := sess.Economy().Reveal(ctx, "canal", id)
//	    ...
//	}
package musicbox
