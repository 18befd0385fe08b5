package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apisrv "github.com/compose-network/reqcoord/server/api"
	"github.com/compose-network/reqcoord/x/admission"
	"github.com/compose-network/reqcoord/x/cancellation"
	"github.com/compose-network/reqcoord/x/coordinator"
)

// FetchResult is the value produced by the coordinated fetch work unit.
type FetchResult struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
	Bytes  int64  `json:"bytes"`
}

type fetchRequest struct {
	URL        string `json:"url"`
	DedupKey   string `json:"dedup_key"`
	Priority   string `json:"priority"`
	TimeoutMs  int64  `json:"timeout_ms"`
	CacheTTLMs int64  `json:"cache_ttl_ms"`
}

type fetchResponse struct {
	Success    bool         `json:"success"`
	Value      *FetchResult `json:"value,omitempty"`
	Error      string       `json:"error,omitempty"`
	FromCache  bool         `json:"from_cache"`
	RequestID  string       `json:"request_id"`
	DurationMs int64        `json:"duration_ms"`
}

// handleFetch admits an outbound GET through the coordinator and reports its
// Result envelope. Failures of the fetch itself come back with success=false
// and HTTP 200; only malformed requests are 4xx.
func (a *App) handleFetch(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apisrv.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return
	}

	target, err := url.Parse(req.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		apisrv.WriteError(w, r, http.StatusBadRequest, "invalid_url", "url must be absolute http(s)", nil)
		return
	}

	priority, err := admission.ParsePriority(req.Priority)
	if err != nil {
		apisrv.WriteError(w, r, http.StatusBadRequest, "invalid_priority", err.Error(), nil)
		return
	}

	opts := coordinator.Options{
		DedupKey: req.DedupKey,
		Priority: priority,
		Timeout:  time.Duration(req.TimeoutMs) * time.Millisecond,
		CacheTTL: time.Duration(req.CacheTTLMs) * time.Millisecond,
	}

	res := a.coord.Execute(a.fetchWork(target.String()), opts)

	resp := fetchResponse{
		Success:    res.Success,
		Error:      res.ErrorMessage(),
		FromCache:  res.FromCache,
		RequestID:  res.RequestID,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Success {
		value := res.Value
		resp.Value = &value
	}
	apisrv.WriteJSON(w, http.StatusOK, resp)
}

// fetchWork builds the cancellation-aware unit of work for one URL. The
// coordinator's scope is bridged onto the request context so an abort tears
// the connection down promptly.
func (a *App) fetchWork(target string) coordinator.Work[FetchResult] {
	return func(tok *cancellation.Token) (FetchResult, error) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		remove := tok.OnCancel(cancel)
		defer remove()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return FetchResult{}, fmt.Errorf("build request for %s: %w", target, err)
		}
		req.Header.Set("User-Agent", a.cfg.Fetch.UserAgent)

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return FetchResult{}, fmt.Errorf("fetch %s: %w", target, err)
		}
		defer resp.Body.Close()

		n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, a.cfg.Fetch.MaxResponseBytes))
		if err != nil {
			return FetchResult{}, fmt.Errorf("read %s: %w", target, err)
		}

		return FetchResult{URL: target, Status: resp.StatusCode, Bytes: n}, nil
	}
}
