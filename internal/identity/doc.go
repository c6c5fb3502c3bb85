// Package identity resolves the active customer id for a widget session.
//
// Resolution combines two sources: the id the host page cached from a
// previous visit, and the optional external identity metadata the embedding
// site supplies. When metadata carries an external id the backend lookup is
// authoritative and may rebind the session to a better-matching customer
// mid-session; the rebind is announced through the host bridge so the cached
// id can be corrected.
package identity
