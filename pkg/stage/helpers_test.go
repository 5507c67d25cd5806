package stage_test

import (
	"context"
	"testing"

	"go.uber.org/goleak"

	"github.com/askiada/paladin-plugins/pkg/stage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func countTo(t *testing.T, pipe *stage.Pipeline, total int) *stage.Step[int] {
	t.Helper()

	step, err := stage.AddRootStep(pipe, "root", func(ctx context.Context, rootChan chan<- int) error {
		for i := 0; i < total; i++ {
			err := stage.Emit(ctx, rootChan, i)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	return step
}
