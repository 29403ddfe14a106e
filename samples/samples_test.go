package samples_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/backend"
	"github.com/microsoft/durablefunctions-go/samples"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() backend.Logger {
	return backend.NewLogger(io.Discard, false)
}

func Test_Samples(t *testing.T) {
	tests := []struct {
		name   string
		status api.OrchestrationStatus
		output string
	}{
		{"sequence", api.RUNTIME_STATUS_COMPLETED, `["Hello, Tokyo!","Hello, London!","Hello, Seattle!"]`},
		{"parallel", api.RUNTIME_STATUS_COMPLETED, `0.7`},
		{"external-events", api.RUNTIME_STATUS_COMPLETED, `"Hello, Chris!"`},
		{"external-events-timeout", api.RUNTIME_STATUS_FAILED, `"no name was received by 1970-01-01T00:00:30Z"`},
		{"retries", api.RUNTIME_STATUS_COMPLETED, `3`},
		{"entities", api.RUNTIME_STATUS_COMPLETED, `42`},
		{"sub-orchestration", api.RUNTIME_STATUS_COMPLETED, `{
			"east": ["Hello, Tokyo!","Hello, London!","Hello, Seattle!"],
			"west": ["Hello, Tokyo!","Hello, London!","Hello, Seattle!"]
		}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := samples.Find(tt.name)
			require.True(t, ok)
			ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
			defer cancel()

			md, err := samples.Run(ctx, s, samples.Options{Logger: quietLogger()})
			require.NoError(t, err)
			assert.Equal(t, tt.status, md.RuntimeStatus)
			assert.JSONEq(t, tt.output, string(md.Output))
		})
	}
}

func Test_Samples_All(t *testing.T) {
	all := samples.All()
	require.Len(t, all, 7)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Name, all[i].Name)
	}
	for _, s := range all {
		assert.NotEmpty(t, s.Description, s.Name)
	}
	_, ok := samples.Find("missing")
	assert.False(t, ok)
}

func Test_Samples_Registry(t *testing.T) {
	// every registration makes its own registry, so registering twice doesn't collide
	_, err := samples.NewRegistry()
	require.NoError(t, err)
	_, err = samples.NewRegistry()
	require.NoError(t, err)
}

func Test_Counter(t *testing.T) {
	state, result, err := samples.Counter(nil, "add", []byte(`5`))
	require.NoError(t, err)
	assert.Equal(t, 5, state)
	assert.Equal(t, 5, result)

	state, _, err = samples.Counter([]byte(`5`), "reset", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, state)

	_, _, err = samples.Counter(nil, "add", []byte(`"five"`))
	assert.ErrorContains(t, err, "invalid input for add")
	_, _, err = samples.Counter(nil, "divide", nil)
	assert.ErrorContains(t, err, "unsupported operation 'divide'")
}
