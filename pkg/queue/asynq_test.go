package queue

import (
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidshard/flashd/pkg/structs"
)

func TestDeaggregateEvents(t *testing.T) {
	given := asynq.NewTask(asyncEventTask, []byte(
		`{"job_id":"1","phase":"DISPATCH","message":"dispatching","time":10}`+asyncAggSep+
			`{"job_id":"1","phase":"COMPILE","message":"compiling","time":11}`+asyncAggSep+
			`{"job_id":"1","phase":"COMPLETED","message":"done","time":12}`+asyncAggSep,
	))

	result, err := deaggregateEvents(given)

	assert.Nil(t, err)
	require.Equal(t, 3, len(result))
	assert.Equal(t, &structs.Event{JobID: "1", Phase: structs.PhaseDispatch, Message: "dispatching", Time: 10}, result[0])
	assert.Equal(t, structs.PhaseCompile, result[1].Phase)
	assert.Equal(t, structs.PhaseCompleted, result[2].Phase)
}

func TestDeaggregateEventsBadLine(t *testing.T) {
	given := asynq.NewTask(asyncEventTask, []byte(
		`{"job_id":"1","phase":"DISPATCH"}`+asyncAggSep+
			`{not json`+asyncAggSep+
			`{"job_id":"1","phase":"FAILED"}`,
	))

	result, err := deaggregateEvents(given)

	assert.Error(t, err)
	require.Equal(t, 2, len(result))
	assert.Equal(t, structs.PhaseDispatch, result[0].Phase)
	assert.Equal(t, structs.PhaseFailed, result[1].Phase)
}

func TestAggregate(t *testing.T) {
	group := "job-1"

	cases := []struct {
		Name   string
		Given  [][]byte
		Expect []byte
	}{
		{
			"SingleEvent",
			[][]byte{[]byte(`{"a":1}`)},
			[]byte(`{"a":1}` + asyncAggSep),
		},
		{
			"MultipleEvents",
			[][]byte{[]byte(`{"a":1}`), []byte(`{"a":2}`)},
			[]byte(`{"a":1}` + asyncAggSep + `{"a":2}` + asyncAggSep),
		},
		{
			"EmptyPayloadsSkipped",
			[][]byte{[]byte(`{"a":1}`), nil, []byte{}},
			[]byte(`{"a":1}` + asyncAggSep),
		},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			in := []*asynq.Task{}
			for _, b := range c.Given {
				in = append(in, asynq.NewTask(group, b))
			}

			result := aggregate(group, in)

			assert.Equal(t, asyncEventTask, result.Type())
			assert.Equal(t, c.Expect, result.Payload())
		})
	}
}

func TestAggregateRoundTrip(t *testing.T) {
	in := []*structs.Event{
		{JobID: "1", Phase: structs.PhaseDeploy, Message: "line one\nline two", Time: 1},
		{JobID: "1", Phase: structs.PhaseFailed, Message: "¬|odd runes", Time: 2},
	}
	tasks := []*asynq.Task{}
	for _, e := range in {
		data, err := json.Marshal(e)
		require.NoError(t, err)
		tasks = append(tasks, asynq.NewTask(asyncEventTask, data))
	}

	result, err := deaggregateEvents(aggregate("1", tasks))

	require.NoError(t, err)
	assert.Equal(t, in, result)
}

func TestSetDefaults(t *testing.T) {
	opts := &Options{URL: "localhost:6379"}

	opts.SetDefaults()

	assert.Equal(t, defaultQueueName, opts.Name)
	assert.Equal(t, defaultMaxRetry, opts.MaxRetry)
	assert.Equal(t, defaultAggMaxSize, opts.AggMaxSize)
	assert.Equal(t, defaultAggMaxDelay, opts.AggMaxDelay)
}
