// Package agent owns the node's pairing lifecycle.
//
// One goroutine (Run) holds every piece of mutable state: the current
// identity, the proximity detector, and the set of bus subscriptions. The
// router, the console, and the local API never touch that state; they send
// commands and, if they care, wait for the resulting State.
//
// # Lifecycle
//
//	Unpaired --Install--> Paired(id)   persist, ack, subscribe id topics
//	Paired   --Delete---> Unpaired     remove record, resubscribe install
//	Paired   --Reset----> Unpaired     memory only: record and subscriptions stay
//	any      --AssignID-> Paired(id)   memory only, no metadata
//
// Install while paired is rejected with ErrAlreadyPaired. After Reset the
// node accepts Install again, while still subscribed to the old id topics and
// with the old record on disk. A restart after Reset comes back paired.
//
// # Subscriptions
//
// The wanted set is a function of state (Subscriptions). Every transition
// that changes it is applied as a diff: extras are unsubscribed first, then
// missing topics are subscribed. The same diff runs after every reconnect.
package agent
