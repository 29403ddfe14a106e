package backend_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/durablefunctions-go/backend"
)

func Test_UnmarshalHistoryEvent(t *testing.T) {
	data := `{
		"EventType": 4,
		"EventId": 0,
		"IsPlayed": true,
		"Timestamp": "2021-05-01T10:00:00.123Z",
		"Name": "Hello",
		"Input": "\"Tokyo\"",
		"Tags": {"region": "west"}
	}`
	var e backend.HistoryEvent
	require.NoError(t, json.Unmarshal([]byte(data), &e))

	assert.Equal(t, backend.EventTaskScheduled, e.EventType)
	assert.Equal(t, int32(0), e.EventID)
	assert.True(t, e.IsPlayed)
	assert.Equal(t, time.Date(2021, 5, 1, 10, 0, 0, 123000000, time.UTC), e.Timestamp)
	assert.Equal(t, "Hello", e.Name)
	assert.Equal(t, `"Tokyo"`, string(e.Input))
	assert.Nil(t, e.Result)
	assert.Equal(t, int32(-1), e.TaskScheduledID)
	assert.Equal(t, int32(-1), e.TimerID)
	if assert.Contains(t, e.Extra, "Tags") {
		assert.JSONEq(t, `{"region": "west"}`, string(e.Extra["Tags"]))
	}
}

func Test_UnmarshalHistoryEvent_MissingMandatoryField(t *testing.T) {
	for _, data := range []string{
		`{"EventId": 0, "IsPlayed": false, "Timestamp": "2021-05-01T10:00:00Z"}`,
		`{"EventType": 4, "IsPlayed": false, "Timestamp": "2021-05-01T10:00:00Z"}`,
		`{"EventType": 4, "EventId": 0, "Timestamp": "2021-05-01T10:00:00Z"}`,
		`{"EventType": 4, "EventId": 0, "IsPlayed": false}`,
		`{"EventType": null, "EventId": 0, "IsPlayed": false, "Timestamp": "2021-05-01T10:00:00Z"}`,
		`{"EventType": 4, "EventId": null, "IsPlayed": false, "Timestamp": "2021-05-01T10:00:00Z"}`,
		`{"EventType": 4, "EventId": 0, "IsPlayed": null, "Timestamp": "2021-05-01T10:00:00Z"}`,
		`{"EventType": 4, "EventId": 0, "IsPlayed": false, "Timestamp": null}`,
	} {
		var e backend.HistoryEvent
		err := json.Unmarshal([]byte(data), &e)
		assert.ErrorIs(t, err, backend.ErrMissingEventField, data)
	}
}

func Test_UnmarshalHistoryEvent_Payloads(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"json text in a string", `"{\"a\":1}"`, `{"a":1}`},
		{"plain string", `"hello world"`, `"hello world"`},
		{"inline object", `{"a":1}`, `{"a":1}`},
		{"number", `42`, `42`},
		{"null", `null`, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := `{"EventType":5,"EventId":-1,"IsPlayed":false,"Timestamp":"2021-05-01T10:00:00Z","TaskScheduledId":3,"Result":` + tt.input + `}`
			var e backend.HistoryEvent
			require.NoError(t, json.Unmarshal([]byte(data), &e))
			assert.Equal(t, tt.want, string(e.Result))
			assert.Equal(t, int32(3), e.TaskScheduledID)
		})
	}
}

func Test_UnmarshalHistoryEvent_ZonelessTimestamp(t *testing.T) {
	data := `{"EventType":11,"EventId":-1,"IsPlayed":false,"Timestamp":"2021-05-01T10:00:00.5","FireAt":"2021-05-01T10:05:00","TimerId":2}`
	var e backend.HistoryEvent
	require.NoError(t, json.Unmarshal([]byte(data), &e))
	assert.Equal(t, time.Date(2021, 5, 1, 10, 0, 0, 500000000, time.UTC), e.Timestamp)
	assert.Equal(t, time.Date(2021, 5, 1, 10, 5, 0, 0, time.UTC), e.FireAt)
	assert.Equal(t, int32(2), e.TimerID)

	bad := `{"EventType":11,"EventId":-1,"IsPlayed":false,"Timestamp":"yesterday"}`
	assert.Error(t, json.Unmarshal([]byte(bad), &e))
}

func Test_MarshalHistoryEvent_RoundTrip(t *testing.T) {
	data := `{"EventType":7,"EventId":4,"IsPlayed":false,"Timestamp":"2021-05-01T10:00:00Z","Name":"Child","InstanceId":"child-1","Input":"[1,2]","Custom":true}`
	var e backend.HistoryEvent
	require.NoError(t, json.Unmarshal([]byte(data), &e))

	out, err := json.Marshal(&e)
	require.NoError(t, err)
	assert.JSONEq(t, data, string(out))
}

func Test_History_Processed(t *testing.T) {
	h := backend.NewHistory([]*backend.HistoryEvent{{}, {}})
	assert.Equal(t, 2, h.Len())
	assert.False(t, h.IsProcessed(0))

	h.SetProcessed(-1, 1, 7)
	assert.False(t, h.IsProcessed(0))
	assert.True(t, h.IsProcessed(1))
	assert.False(t, h.IsProcessed(-1))
	assert.Nil(t, h.Event(2))
	assert.Nil(t, h.Event(-1))
}

func Test_EventTypeString(t *testing.T) {
	assert.Equal(t, "TimerFired", backend.EventTimerFired.String())
	assert.Equal(t, "HistoryState", backend.EventHistoryState.String())
	assert.Equal(t, "EventType(42)", backend.EventType(42).String())
}
