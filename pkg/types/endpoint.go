package types

// Endpoint is one upstream event-source endpoint. The configured set is
// ordered by Priority (lower number preferred) and immutable after load.
type Endpoint struct {
	URL         string
	Priority    int
	Description string
}
