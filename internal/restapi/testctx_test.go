package restapi_test

import (
	"context"
	"testing"
)

// testContext stands in for testing.T.Context, which needs Go 1.24: the
// returned context is canceled when the test's cleanups run.
func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
