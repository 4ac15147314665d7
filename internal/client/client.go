// Package client talks to a running saferoute server.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lazypower/saferoute/internal/ratings"
)

const (
	DefaultServerURL = "http://127.0.0.1:37780"
	httpTimeout      = 5 * time.Second
)

// Client talks to the saferoute server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty serverURL falls back to
// SAFEROUTE_URL, then to http://127.0.0.1:37780.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("SAFEROUTE_URL")
	}
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// URL returns the server base URL.
func (c *Client) URL() string {
	return c.serverURL
}

// NodeScore is the server's answer for a single node.
type NodeScore struct {
	NodeID    string  `json:"node_id"`
	Score     float64 `json:"score"`
	Ratings   int     `json:"ratings"`
	DecayDays float64 `json:"decay_days"`
}

// SaveRating submits a rating and returns the node's stored ratings.
// A zero ts lets the server stamp the current time.
func (c *Client) SaveRating(nodeID string, score float64, user string, ts time.Time) ([]ratings.Rating, error) {
	req := map[string]any{"user": user, "score": score}
	if !ts.IsZero() {
		req["timestamp"] = ratings.FormatTime(ts)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode rating: %w", err)
	}

	data, err := c.post(nodePath(nodeID, "ratings"), body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Ratings []ratings.Record `json:"ratings"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out := make([]ratings.Rating, 0, len(resp.Ratings))
	for _, rec := range resp.Ratings {
		r, err := ratings.ParseRecord(nodeID, rec)
		if err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Score asks the server for a node's current score.
func (c *Client) Score(nodeID string) (NodeScore, error) {
	data, err := c.get(nodePath(nodeID, "score"))
	if err != nil {
		return NodeScore{}, err
	}
	var ns NodeScore
	if err := json.Unmarshal(data, &ns); err != nil {
		return NodeScore{}, fmt.Errorf("decode response: %w", err)
	}
	return ns, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy() bool {
	resp, err := c.http.Get(c.serverURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func nodePath(nodeID, leaf string) string {
	return "/api/nodes/" + url.PathEscape(nodeID) + "/" + leaf
}

func (c *Client) post(path string, body []byte) ([]byte, error) {
	resp, err := c.http.Post(c.serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	return readResponse("POST", path, resp)
}

func (c *Client) get(path string) ([]byte, error) {
	resp, err := c.http.Get(c.serverURL + path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return readResponse("GET", path, resp)
}

func readResponse(method, path string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, nil
}
