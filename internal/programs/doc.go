// Package programs holds the built-in handler programs an actor can run and
// the registry that maps topology program names to them.
//
// counter reproduces a pair of test canisters: an integer counter with
// methods that fail at each kind of suspension point, a call to a peer, a
// method denied by the admission filter, and a drop-guard counter updated
// from an unwind hook.
//
// recorder appends its argument to a list twice around a local suspension,
// which makes interleaving between concurrent calls visible in its state.
package programs
