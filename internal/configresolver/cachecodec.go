package configresolver

import "encoding/json"

// encodeResolved/decodeResolved serialize a ResolvedConfig for the Redis read-through
// cache. decimal.Decimal and uuid.UUID both marshal to JSON natively, so no intermediate
// wire type is needed.
func encodeResolved(resolved ResolvedConfig) (string, bool) {
	raw, err := json.Marshal(resolved)
	if err != nil {
		return "", false
	}

	return string(raw), true
}

func decodeResolved(raw string) (ResolvedConfig, bool) {
	var resolved ResolvedConfig

	if err := json.Unmarshal([]byte(raw), &resolved); err != nil {
		return ResolvedConfig{}, false
	}

	return resolved, true
}
