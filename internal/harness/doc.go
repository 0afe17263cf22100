// Package harness provides conformance testing for actor topologies.
//
// The harness deploys a CUE topology on a real engine, submits the calls a
// scenario lists, and checks the outcomes, the journal trace, and the final
// actor states.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	topology: ../topologies/canisters
//	flow_token: scen
//	setup:
//	  - actor: canister_a
//	    method: increase_counter
//	flow:
//	  - actor: canister_a
//	    method: increase_counter_then_call_another_canister_then_panic
//	    expect:
//	      outcome: failed
//	      code: TRAP
//	  - concurrent:
//	      - actor: canister_a
//	        method: increase_counter
//	      - actor: canister_a
//	        method: increase_counter
//	assertions:
//	  - type: final_state
//	    actor: canister_a
//	    expect: { counter: 3 }
//	  - type: trace_order
//	    entries:
//	      - "commit canister_a.increase_counter_then_call_another_canister_then_panic outbound"
//	      - "rollback canister_a.increase_counter_then_call_another_canister_then_panic TRAP"
//
// # Assertion Types
//
//   - trace_contains: an entry appears in the trace
//   - trace_order: entries appear in the given order
//   - trace_count: an entry appears exactly N times
//   - final_state: an actor's final state contains the expected fields
//   - commit_count: number of commits, optionally for one actor
//   - rollback_count: number of rollbacks, optionally for one actor
//
// Trace entries are written as "<type> <actor>.<method>", followed by the
// commit or resume reason, the call target ("-> b.get_counter") for parks,
// and the failure code for rollbacks and rejections.
//
// # Deterministic Testing
//
// Each scenario runs on a fresh engine with:
//   - Sequential flow tokens ("<flow_token>-1", "<flow_token>-2", ...)
//   - The engine's logical clock, starting at 1
//   - An in-memory SQLite journal
//
// After the flow, the harness checks the journal against the engine: every
// actor's latest commit must equal its final state, and commit versions must
// form an unbroken chain.
//
// Golden snapshots group the trace by flow, so calls submitted in one
// concurrent group produce the same snapshot however the goroutines were
// scheduled.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/scenario_b_outbound_commit.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
