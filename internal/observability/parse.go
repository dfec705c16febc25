package observability

import (
	"errors"
	"strconv"
	"strings"
)

var errNoRatio = errors.New("no sampler ratio")

// parseRatio clamps the value to [0,1].
func parseRatio(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errNoRatio
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	switch {
	case f < 0:
		return 0, nil
	case f > 1:
		return 1, nil
	}
	return f, nil
}

// parseHeaders reads "k1=v1,k2=v2".
func parseHeaders(raw string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
