package interfaces

import "context"

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for single-attempt HTTP requests.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// Get performs a GET request to the specified URL with parameters and headers.
	// Returns the response body as bytes or a typed upstream error.
	Get(ctx context.Context, url string, params map[string]string, headers map[string]string) ([]byte, error)
}
