// Command contract-runner replays contract fixture files against the Go
// adapter. Each operation's outcome prints as one JSON line; a fixture fails
// when an outcome misses its expectation. Exit status 1 means at least one
// fixture failed.
//
//	contract-runner fixtures/crud.json fixtures/operators.json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/stratakv/strata-contract-tests/runners/go/internal/driver"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: contract-runner <fixture.json>...")
		os.Exit(2)
	}

	failed := false
	for _, path := range os.Args[1:] {
		if err := runFixture(path); err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", path, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func runFixture(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fx driver.Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}

	outs, err := driver.New().Run(context.Background(), &fx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for i, out := range outs {
		op := fx.Operations[i]
		if err := enc.Encode(map[string]any{
			"fixture": fx.Name,
			"index":   i,
			"op":      op.Op,
			"outcome": out,
		}); err != nil {
			return err
		}
		if !driver.Matches(op.Expect, out) {
			return fmt.Errorf("operation %d (%s): outcome does not match expectation", i, op.Op)
		}
	}
	return nil
}
