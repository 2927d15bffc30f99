package protocol

const (
	// Transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrRateLimit       = "E_RATE_LIMIT"

	// Command layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrNoResource = "E_NO_RESOURCE"
	ErrConflict   = "E_CONFLICT"
	ErrCapacity   = "E_CAPACITY"
	ErrNotFound   = "E_NOT_FOUND"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrRateLimit:       {},
	ErrBadRequest:      {},
	ErrNoResource:      {},
	ErrConflict:        {},
	ErrCapacity:        {},
	ErrNotFound:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
