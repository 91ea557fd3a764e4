package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/gridmapper/internal/httputil"
)

// maxMapInfoBytes bounds the map service response.
const maxMapInfoBytes = 1 << 20

// FetchHTTP asks a map service for the native map geometry. Any transport
// failure, non-2xx status, malformed body or invalid geometry is an error;
// callers cannot build a grid without it.
func FetchHTTP(ctx context.Context, client httputil.HTTPClient, url string) (MapInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return MapInfo{}, fmt.Errorf("build map info request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return MapInfo{}, fmt.Errorf("fetch map info from %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMapInfoBytes))
	if err != nil {
		return MapInfo{}, fmt.Errorf("read map info: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return MapInfo{}, fmt.Errorf("map service returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var info MapInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return MapInfo{}, fmt.Errorf("decode map info: %w", err)
	}
	if err := info.Validate(); err != nil {
		return MapInfo{}, err
	}
	return info, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
