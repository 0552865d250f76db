package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"papercast/internal/api"
	"papercast/internal/jobs"
)

// apiClient is a thin HTTP wrapper over the daemon API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(addr string) *apiClient {
	return &apiClient{
		base: "http://" + strings.TrimSpace(addr),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) Status() (api.DaemonStatus, error) {
	var status api.DaemonStatus
	err := c.getJSON("/api/status", &status)
	return status, err
}

func (c *apiClient) Submit(req api.SubmitRequest) (api.JobView, error) {
	var view api.JobView
	err := c.postJSON("/api/jobs", req, &view)
	return view, err
}

func (c *apiClient) List(statuses []string) (api.JobListResponse, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		query := url.Values{}
		for _, status := range statuses {
			query.Add("status", status)
		}
		path += "?" + query.Encode()
	}
	var list api.JobListResponse
	err := c.getJSON(path, &list)
	return list, err
}

func (c *apiClient) Describe(token string) (api.JobView, error) {
	var view api.JobView
	err := c.getJSON("/api/jobs/"+url.PathEscape(token), &view)
	return view, err
}

func (c *apiClient) Report(token string) (api.ReportView, error) {
	var report api.ReportView
	err := c.getJSON("/api/jobs/"+url.PathEscape(token)+"/report", &report)
	return report, err
}

func (c *apiClient) Transcript(token string) (string, error) {
	body, err := c.get("/api/jobs/" + url.PathEscape(token) + "/transcript")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *apiClient) Retry(token string) (api.JobView, error) {
	var view api.JobView
	err := c.postJSON("/api/jobs/"+url.PathEscape(token)+"/retry", nil, &view)
	return view, err
}

func (c *apiClient) RetryAll() (int64, error) {
	var count api.CountResponse
	err := c.postJSON("/api/jobs/retry", nil, &count)
	return count.Affected, err
}

func (c *apiClient) Remove(token string) error {
	req, err := http.NewRequest(http.MethodDelete, c.base+"/api/jobs/"+url.PathEscape(token), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.wrapDialError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	return nil
}

func (c *apiClient) Clear(mode string) (int64, error) {
	req, err := http.NewRequest(http.MethodDelete, c.base+"/api/jobs?mode="+url.QueryEscape(mode), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, c.wrapDialError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, decodeError(resp)
	}
	var count api.CountResponse
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return count.Affected, nil
}

// WaitForStatus polls a job until it reaches want, fails, or the timeout
// elapses.
func (c *apiClient) WaitForStatus(token, want string, timeout time.Duration) (api.JobView, error) {
	deadline := time.Now().Add(timeout)
	var view api.JobView
	var err error
	for time.Now().Before(deadline) {
		view, err = c.Describe(token)
		if err != nil {
			return view, err
		}
		if view.Status == want {
			return view, nil
		}
		if view.Status == string(jobs.StatusFailed) && want != string(jobs.StatusFailed) {
			return view, fmt.Errorf("job failed: %s", view.ErrorMessage)
		}
		time.Sleep(500 * time.Millisecond)
	}
	return view, fmt.Errorf("timed out waiting for job %s to reach %s (last status %s)", token, want, view.Status)
}

func (c *apiClient) get(path string) ([]byte, error) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return nil, c.wrapDialError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *apiClient) getJSON(path string, out any) error {
	body, err := c.get(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) postJSON(path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	resp, err := c.http.Post(c.base+path, "application/json", body)
	if err != nil {
		return c.wrapDialError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) wrapDialError(err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: connection refused; start it with `papercast daemon`", c.base)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

func decodeError(resp *http.Response) error {
	var payload api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return errors.New(payload.Error)
	}
	return fmt.Errorf("daemon returned %s", resp.Status)
}
