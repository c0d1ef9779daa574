package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sapliy/staff-notify/internal/directory"
	"github.com/sapliy/staff-notify/internal/draft"
	"github.com/sapliy/staff-notify/internal/notification"
)

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(method, path string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	hc := c.http
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error connecting to notifyd: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return nil, &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	return resp, nil
}

func (c *apiClient) getJSON(path string, dst any) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(dst)
}

func (c *apiClient) History(q url.Values) ([]notification.Notification, error) {
	var out struct {
		Notifications []notification.Notification `json:"notifications"`
	}
	path := "/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	if err := c.getJSON(path, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

func (c *apiClient) Notification(id string) (*notification.Notification, error) {
	var n notification.Notification
	if err := c.getJSON("/notifications/"+url.PathEscape(id), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ExportCSV returns the CSV body and the filename suggested by the server.
func (c *apiClient) ExportCSV(id string) ([]byte, string, error) {
	resp, err := c.do(http.MethodGet, "/notifications/"+url.PathEscape(id)+"/responses.csv", nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return body, filenameFromDisposition(resp.Header.Get("Content-Disposition")), nil
}

func (c *apiClient) Acknowledge(id, option, comment string) error {
	resp, err := c.do(http.MethodPost, "/notifications/"+url.PathEscape(id)+"/acknowledgements", map[string]string{
		"option":  option,
		"comment": comment,
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *apiClient) Employees(q url.Values) ([]directory.Employee, error) {
	var out struct {
		Employees []directory.Employee `json:"employees"`
	}
	path := "/employees"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	if err := c.getJSON(path, &out); err != nil {
		return nil, err
	}
	return out.Employees, nil
}

func (c *apiClient) Drafts() ([]draft.Draft, error) {
	var out struct {
		Drafts []draft.Draft `json:"drafts"`
	}
	if err := c.getJSON("/drafts", &out); err != nil {
		return nil, err
	}
	return out.Drafts, nil
}

func (c *apiClient) DeleteDraft(id string) error {
	resp, err := c.do(http.MethodDelete, "/drafts/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *apiClient) Ping() error {
	resp, err := c.do(http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
