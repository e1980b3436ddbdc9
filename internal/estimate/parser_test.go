package estimate_test

import (
	"estimate-backend/internal/estimate"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEstimate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		seconds float64
		found   bool
	}{
		{name: "marker only", text: ";TIME:5400", seconds: 5400, found: true},
		{name: "marker after noise", text: "Loading model\nSlicing layers\n;TIME:1234.5\nDone\n", seconds: 1234.5, found: true},
		{name: "crlf line endings", text: "start\r\n;TIME:60\r\n", seconds: 60, found: true},
		{name: "leading whitespace", text: "  \t;TIME:90", seconds: 90, found: true},
		{name: "first marker wins", text: ";TIME:10\n;TIME:20\n", seconds: 10, found: true},
		{name: "spaces around payload", text: ";TIME: 42 ", seconds: 42, found: true},
		{name: "empty input", text: "", found: false},
		{name: "no marker", text: "Slicing done\n;LAYER_COUNT:100\n", found: false},
		{name: "empty payload", text: ";TIME:\n", found: false},
		{name: "non numeric payload", text: ";TIME:soon\n;TIME:30\n", found: false},
		{name: "negative payload", text: ";TIME:-5", found: false},
		{name: "infinite payload", text: ";TIME:Inf", found: false},
		{name: "marker must prefix the line", text: "estimate ;TIME:300", found: false},
		{name: "case sensitive marker", text: ";time:300", found: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seconds, found := estimate.ParseEstimate(tc.text)
			assert.Equal(t, tc.found, found)
			if tc.found {
				assert.Equal(t, tc.seconds, seconds)
			}
		})
	}
}

func TestScanEstimateLargeInput(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50000; i++ {
		sb.WriteString("G1 X10 Y10 E0.5\n")
	}
	sb.WriteString(";TIME:7200\n")

	seconds, found := estimate.ScanEstimate(strings.NewReader(sb.String()))
	assert.True(t, found)
	assert.Equal(t, 7200.0, seconds)
}

func TestScanEstimateSkipsOverlongLines(t *testing.T) {
	// A progress bar redrawn with carriage returns never emits a newline.
	text := strings.Repeat("x", 2<<20) + "\n" + strings.Repeat("\r[=====>    ] 50%", 100000) + "\n;TIME:5400\n"

	seconds, found := estimate.ParseEstimate(text)
	assert.True(t, found)
	assert.Equal(t, 5400.0, seconds)
}

func TestScanEstimateOverlongMarkerPayload(t *testing.T) {
	_, found := estimate.ParseEstimate(";TIME:" + strings.Repeat("9", 1<<20) + "\n;TIME:60\n")
	assert.False(t, found)
}
