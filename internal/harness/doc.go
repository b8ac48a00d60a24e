// Package harness runs rule scenarios described in YAML.
//
// A scenario names one or more rules, feeds them a fixed event sequence
// and states which events must match.
//
// # Scenario Format
//
//	name: strict_count
//	description: "count! resets on a miss"
//	rule: "count!(>4, 3)"
//	start: "2025-06-01T00:00:00Z"   # optional, parsed with dateparse
//	step: 1s                        # optional spacing of unstamped events
//	events:
//	  - value: 5
//	  - value: "12.5"
//	    type: float
//	  - value: 7
//	    at: 30s                     # offset from start
//	  - value: 8
//	    time: "2025-06-01 00:01:00" # absolute time
//	expect: [false, false, true, false]
//
// Several rules are given as a mapping and expectations as matches:
//
//	rules:
//	  pair:  "<1, 2>"
//	  burst: "filter(>50).window(10s).count().meet(>=2)"
//	matches:
//	  pair: [2]
//	  burst: []
//
// A scenario may instead expect compilation to fail:
//
//	rule: "filter(>3).sum()"
//	compile_error: { phase: chain, code: C303 }
//
// # Assertion Types
//
//   - match_count: the rule matched exactly count events
//   - value_at: the rule matched event index with the given value
//   - error_at: the rule failed on event index with the given diag code
//   - no_errors: no evaluation of the rule (or of any rule) failed
//
// # Deterministic Testing
//
// Every run uses:
//   - Sequential rule ids (testutil.SequentialIDs)
//   - A stepping wall clock for unstamped events (testutil.StepClock)
//   - A fresh in-memory SQLite log (store.Open(":memory:"))
//
// so the same scenario always produces a byte-identical trace for golden
// comparison. After the run the log is replayed against freshly compiled
// rules, and the scenario fails if the replay disagrees.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/strict_count.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
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
