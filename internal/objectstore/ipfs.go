package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// IPFSStore talks to an IPFS HTTP API (the production object store: data
// URIs in manifests look like "ipfs://<cid>").
type IPFSStore struct {
	endpoint string
	client   *http.Client
}

func NewIPFSStore(endpoint string) *IPFSStore {
	return &IPFSStore{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 0}, // streaming uploads/downloads have no fixed deadline here
	}
}

func (s *IPFSStore) Upload(ctx context.Context, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", "blob")
		if err != nil {
			pw.CloseWithError(fmt.Errorf("objectstore: create multipart field: %w", err))
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(fmt.Errorf("objectstore: stream upload body: %w", err))
			return
		}
		if err := mw.Close(); err != nil {
			pw.CloseWithError(fmt.Errorf("objectstore: close multipart writer: %w", err))
			return
		}
		pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/api/v0/add", pr)
	if err != nil {
		return "", fmt.Errorf("objectstore: build ipfs add request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("objectstore: ipfs add: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("objectstore: ipfs add returned %s: %s", resp.Status, string(body))
	}

	var addResp struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&addResp); err != nil {
		return "", fmt.Errorf("objectstore: decode ipfs add response: %w", err)
	}
	return "ipfs://" + addResp.Hash, nil
}

func (s *IPFSStore) Fetch(ctx context.Context, cid string) (io.ReadCloser, error) {
	hash := strings.TrimPrefix(cid, "ipfs://")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/api/v0/cat?arg="+hash, nil)
	if err != nil {
		return nil, fmt.Errorf("objectstore: build ipfs cat request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("objectstore: ipfs cat: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("objectstore: ipfs cat returned %s: %s", resp.Status, string(body))
	}
	return resp.Body, nil
}
