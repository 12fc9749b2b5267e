// Package harness provides scenario-driven conformance testing for the
// archive repository.
//
// The harness lays out source files, drives a sequence of repository
// sessions against a fresh root, and validates the final catalog and root
// contents, both through explicit assertions and golden snapshots.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	files:
//	  - {path: project/main.go, content: "package main\n"}
//	  - {path: big.bin, random: 4000000, seed: 1}
//	flow:
//	  - config: {key: size, value: 10M}
//	  - archive: project
//	    expect: {version: 1}
//	  - restore: {name: project, version: 1, directory: restored}
//	    expect: {status: Restored}
//	  - list: {pattern: "^proj"}
//	    expect: {count: 1}
//	  - stray: junk.txt
//	  - corrupt: big.bin-1.tar.gz
//	assertions:
//	  - {type: item_status, name: project, version: 1, status: Restored}
//	  - {type: root_entries, entries: [.lock, meta.db]}
//
// Each flow step carries exactly one operation. archive, restore, config
// and list run as their own locked session ending in a retention pass, just
// like separate command invocations. stray and corrupt tamper with the root
// between sessions.
//
// Paths in files and archive are relative to the source directory; restore
// directories are relative to the output directory and are created on
// demand.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - item_status: An item (name, version) has the given status
//   - root_entries: The root holds exactly the given entries
//   - config_value: A setting holds the given stored value
//   - same_tree: A restored tree matches its source byte for byte
//   - within_budget: Archived blobs fit the size limit, unless only one is left
//
// # Deterministic Testing
//
// Every scenario runs in its own work directory with a stepping clock
// (testutil.DeterministicClock), so catalog timestamps are identical across
// runs. Snapshots leave out blob sizes and absolute paths for the same
// reason.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/budget_eviction.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario, workDir, harness.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
