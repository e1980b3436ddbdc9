package estimate

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
)

// TimeMarker prefixes the engine's print-time annotation, e.g. ";TIME:5400".
const TimeMarker = ";TIME:"

const readBufferBytes = 64 * 1024

// ParseEstimate returns the seconds encoded in the first marker line of text.
// found is false when there is no marker or its payload is not a usable number.
func ParseEstimate(text string) (seconds float64, found bool) {
	return ScanEstimate(strings.NewReader(text))
}

// ScanEstimate is ParseEstimate over a stream. Only the first marker line is
// considered; reading stops there. Lines longer than the read buffer are
// matched on their first fragment and the rest is skipped.
func ScanEstimate(r io.Reader) (seconds float64, found bool) {
	reader := bufio.NewReaderSize(r, readBufferBytes)

	continuation := false
	for {
		fragment, isPrefix, err := reader.ReadLine()
		if err != nil {
			return 0, false
		}

		lineStart := !continuation
		continuation = isPrefix
		if !lineStart {
			continue
		}

		line := strings.TrimLeft(string(fragment), " \t")
		payload, ok := strings.CutPrefix(line, TimeMarker)
		if !ok {
			continue
		}
		if isPrefix {
			// A payload that does not fit the buffer is not a number.
			return 0, false
		}
		return parseSeconds(payload)
	}
}

func parseSeconds(payload string) (float64, bool) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(payload, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, false
	}
	return value, true
}
