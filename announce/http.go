package announce

import (
	"context"
	"fmt"
	"net/http"
)

// HTTP announces to an http(s) tracker and returns its response.
func HTTP(ctx context.Context, client *http.Client, base string, req Request) (*Response, error) {
	u, err := req.URL(base)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	response, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error contacting tracker: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker responded with status %s", response.Status)
	}
	return ReadResponse(response.Body)
}
