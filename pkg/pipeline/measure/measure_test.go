package measure_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/pkg/pipeline/measure"
	"github.com/askiada/paladin-plugins/pkg/pipeline/model"
	"github.com/askiada/paladin-plugins/pkg/plugin/output"
)

func TestDefaultMeasure(t *testing.T) {
	t.Parallel()

	msr := measure.NewDefaultMeasure()
	first := msr.AddMetric("1. go")
	assert.Same(t, first, msr.AddMetric("1. go"))
	msr.AddMetric("init taxonomy")
	assert.Equal(t, []string{"1. go", "init taxonomy"}, msr.Names())
	assert.Len(t, msr.AllMetrics(), 2)
	assert.Nil(t, msr.GetMetric("missing"))

	first.AddDuration(model.MainPhase, 2*time.Second)
	first.AddDuration(model.MainPhase, 3*time.Second)
	first.AddDuration(model.ParsePhase, 1500*time.Microsecond)
	assert.Equal(t, 5*time.Second, first.Duration(model.MainPhase))
	assert.Equal(t, 2, first.Calls(model.MainPhase))
	assert.Equal(t, 0, first.Calls(model.InitPhase))
	assert.Equal(t, time.Duration(0), first.Duration(model.InitPhase))
	assert.Equal(t, 5002*time.Millisecond, first.TotalDuration())
}

func TestPipelineMeasureSummary(t *testing.T) {
	t.Parallel()

	router := output.NewRouter(output.RouterConsole(output.Stderr, nil))
	msr := measure.NewDefaultMeasure()
	opt := measure.PipelineMeasure(msr, router)

	info := &model.PluginInfo{Type: model.InvocationPluginType, Index: 0, Name: "go"}
	require.NoError(t, opt.New())
	require.NoError(t, opt.PreparePlugin(model.Start, info))
	require.NoError(t, opt.OnPhase(info, model.MainPhase, 3*time.Millisecond))
	require.NoError(t, opt.Finish())

	summary := router.Pending(output.Stderr)
	assert.Contains(t, summary, "Plugin")
	assert.Contains(t, summary, "1. go")
	assert.Contains(t, summary, "3ms")
	assert.Empty(t, router.Pending(output.Stdout))

	silent := measure.PipelineMeasure(measure.NewDefaultMeasure(), nil)
	require.NoError(t, silent.Finish())
}
