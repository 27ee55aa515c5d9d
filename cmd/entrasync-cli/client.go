package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/janovincze/entrasync/internal/api/models"
)

const syncPath = "/entraid/user/sync"

// apiClient calls the sync endpoints of a running API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func flagQuery(disable, remove bool) string {
	q := url.Values{}
	q.Set("disable", strconv.FormatBool(disable))
	q.Set("remove", strconv.FormatBool(remove))
	return "?" + q.Encode()
}

func (c *apiClient) startSync(ctx context.Context, disable, remove bool) (*models.SyncJobResponse, error) {
	var resp models.SyncJobResponse
	return &resp, c.do(ctx, http.MethodPut, syncPath+flagQuery(disable, remove), &resp)
}

func (c *apiClient) syncStatus(ctx context.Context, disable, remove bool) (*models.SyncJobResponse, error) {
	var resp models.SyncJobResponse
	return &resp, c.do(ctx, http.MethodGet, syncPath+flagQuery(disable, remove), &resp)
}

func (c *apiClient) cancelSync(ctx context.Context, disable, remove bool) (*models.SyncJobResponse, error) {
	var resp models.SyncJobResponse
	return &resp, c.do(ctx, http.MethodDelete, syncPath+flagQuery(disable, remove), &resp)
}

func (c *apiClient) listJobs(ctx context.Context) (*models.SyncJobListResponse, error) {
	var resp models.SyncJobListResponse
	return &resp, c.do(ctx, http.MethodGet, syncPath+"/jobs", &resp)
}

func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var problem models.ProblemDetails
		if err := json.NewDecoder(resp.Body).Decode(&problem); err != nil || problem.Detail == "" {
			return fmt.Errorf("%s %s: %s", method, path, resp.Status)
		}
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, problem.Detail)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
