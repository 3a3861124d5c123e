package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// RestStore talks to a REST-fronted key-value service (Upstash-style: one
// POST per command, JSON array body, bearer token). No connection is held
// between calls.
type RestStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type restResponse struct {
	Result interface{} `json:"result"`
	Error  string      `json:"error,omitempty"`
}

func NewRestStore(baseURL, token string, timeout time.Duration) *RestStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RestStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *RestStore) Kind() Kind { return KindRest }

func (s *RestStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	cmd := []interface{}{"SET", key, value}
	if ttl > 0 {
		cmd = append(cmd, "PX", ttl.Milliseconds())
	}
	_, err := s.do(ctx, cmd)
	return err
}

func (s *RestStore) Get(ctx context.Context, key string) (string, error) {
	result, err := s.do(ctx, []interface{}{"GET", key})
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", ErrNotFound
	}
	value, ok := result.(string)
	if !ok {
		return fmt.Sprint(result), nil
	}
	return value, nil
}

func (s *RestStore) Del(ctx context.Context, key string) error {
	_, err := s.do(ctx, []interface{}{"DEL", key})
	return err
}

func (s *RestStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func (s *RestStore) do(ctx context.Context, cmd []interface{}) (interface{}, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling rest command")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "creating rest request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "rest %v", cmd[0])
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading rest response")
	}

	var out restResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrapf(err, "decoding rest response (status %d)", resp.StatusCode)
	}
	if out.Error != "" {
		return nil, errors.Errorf("rest %v: %s", cmd[0], out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("rest %v: status %d", cmd[0], resp.StatusCode)
	}
	return out.Result, nil
}
