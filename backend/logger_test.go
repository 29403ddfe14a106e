package backend_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/microsoft/durablefunctions-go/backend"
)

func Test_Logger_Levels(t *testing.T) {
	tests := []struct {
		verbose bool
		want    []string
		dropped []string
	}{
		{verbose: false, want: []string{"INFO: started abc", "WARNING: retrying", "ERROR: boom 42"}, dropped: []string{"DEBUG:"}},
		{verbose: true, want: []string{"DEBUG: replaying 3 events", "INFO: started abc", "ERROR: boom 42"}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := backend.NewLogger(&buf, tt.verbose)
		logger.Debugf("replaying %d events", 3)
		logger.Infof("started %s", "abc")
		logger.Warn("retrying")
		logger.Error("boom ", 42)

		for _, line := range tt.want {
			assert.Contains(t, buf.String(), line)
		}
		for _, line := range tt.dropped {
			assert.NotContains(t, buf.String(), line)
		}
	}
}
