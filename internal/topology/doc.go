// Package topology compiles CUE deployment descriptions into actor specs.
//
// A topology directory holds one or more .cue files that unify into a single
// value of the form:
//
//	engine: {
//		max_steps:  1000     // optional
//		reentrancy: "allow"  // optional: "allow" | "reject"
//	}
//
//	actor: canister_a: {
//		program: "counter"
//		state: { counter: 0, drop_counter: 0 }
//		deny: ["protected_by_inspect_message"]
//		peers: { other: "canister_b" }
//	}
//
// State values follow the IR value model: strings, integers, booleans,
// lists and structs. Floats and null are rejected at compile time so that
// every committed state has a canonical JSON form.
package topology
