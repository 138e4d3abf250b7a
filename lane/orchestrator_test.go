package lane

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sourcelane/gateway/source"
)

type stubAdapter struct {
	name  Name
	delay time.Duration
	items []source.Source
}

func (s stubAdapter) Name() Name { return s.name }

func (s stubAdapter) Search(ctx context.Context, req Request) Result {
	select {
	case <-time.After(s.delay):
		return Result{Lane: s.name, Status: StatusOK, Items: s.items}
	case <-ctx.Done():
		return Result{Lane: s.name, Status: StatusTimeout}
	}
}

func TestExecuteCollectsAllLaneResultsWithinBudget(t *testing.T) {
	o := NewOrchestrator(
		stubAdapter{name: Web, items: []source.Source{{ID: "w1"}}},
		stubAdapter{name: Vector, items: []source.Source{{ID: "v1"}}},
		stubAdapter{name: KG, items: []source.Source{{ID: "k1"}}},
		nil,
	)

	res := o.Execute(context.Background(), "q",
		EnabledSet{Web: true, Vector: true, KG: true},
		Deadlines{Web: time.Second, Vector: time.Second, KG: time.Second},
		3*time.Second)

	assert.Equal(t, StatusOK, res.Results[Web].Status)
	assert.Equal(t, StatusOK, res.Results[Vector].Status)
	assert.Equal(t, StatusOK, res.Results[KG].Status)
	assert.Empty(t, res.Warnings)
}

func TestExecuteMarksSlowLaneAsTimeoutAndWarns(t *testing.T) {
	o := NewOrchestrator(
		stubAdapter{name: Web, items: []source.Source{{ID: "w1"}}},
		stubAdapter{name: Vector, delay: 500 * time.Millisecond},
		stubAdapter{name: KG, items: []source.Source{{ID: "k1"}}},
		nil,
	)

	res := o.Execute(context.Background(), "q",
		EnabledSet{Web: true, Vector: true, KG: true},
		Deadlines{Web: time.Second, Vector: 50 * time.Millisecond, KG: time.Second},
		100*time.Millisecond)

	assert.Equal(t, StatusTimeout, res.Results[Vector].Status)
	assert.Contains(t, res.Warnings, "lane_timeout:vector")
}

func TestExecuteMarksDisabledLanesWithoutInvokingThem(t *testing.T) {
	called := false
	o := NewOrchestrator(
		stubAdapter{name: Web, items: []source.Source{{ID: "w1"}}},
		adapterFunc{name: Vector, fn: func(ctx context.Context, req Request) Result {
			called = true
			return Result{Lane: Vector, Status: StatusOK}
		}},
		stubAdapter{name: KG, items: []source.Source{{ID: "k1"}}},
		nil,
	)

	res := o.Execute(context.Background(), "q",
		EnabledSet{Web: true, Vector: false, KG: true},
		Deadlines{Web: time.Second, Vector: time.Second, KG: time.Second},
		3*time.Second)

	assert.Equal(t, StatusDisabled, res.Results[Vector].Status)
	assert.False(t, called)
}

type adapterFunc struct {
	name Name
	fn   func(ctx context.Context, req Request) Result
}

func (a adapterFunc) Name() Name { return a.name }
func (a adapterFunc) Search(ctx context.Context, req Request) Result { return a.fn(ctx, req) }
