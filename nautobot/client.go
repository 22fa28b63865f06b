// Package nautobot is a client for the inventory (Nautobot) REST API.
//
// All mutating calls go through Client.create and Client.update, which only log the
// intended change in dry-run mode. Lookups behave the same in both modes.
package nautobot

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/util"
)

// DryRunID - ID of objects that were only pretended to be created.
const DryRunID = "dry-run-id"

// Client - Inventory REST API client.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	pageLimit  int
	dryRun     bool
}

// NewClient - Create a client. The URL is the API root, e.g. https://ipam.example/api.
func NewClient(config common.InventoryConfig, dryRun bool) (*Client, error) {
	baseURL, err := url.Parse(strings.TrimRight(config.URL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("%w: malformed inventory URL: %v", common.ErrInvalidConfig, err)
	}
	if config.Token == "" {
		return nil, fmt.Errorf("%w: %v not set", common.ErrMissingCredential, common.EnvInventoryToken)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	pageLimit := config.PageLimit
	if pageLimit <= 0 {
		pageLimit = 100
	}
	return &Client{
		baseURL: baseURL,
		token:   config.Token,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   common.Seconds(config.TimeoutSeconds),
		},
		pageLimit: pageLimit,
		dryRun:    dryRun,
	}, nil
}

// DryRun - If mutating calls are skipped.
func (client *Client) DryRun() bool {
	return client.dryRun
}

// Ping - Check that the API is reachable and the token is accepted.
func (client *Client) Ping(ctx context.Context) error {
	var status map[string]interface{}
	if err := client.get(ctx, "status/", nil, &status); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"url":     client.baseURL.String(),
		"version": status["nautobot-version"],
	}).Info("Inventory API reachable")
	return nil
}

func (client *Client) endpointURL(endpoint string, query url.Values) string {
	target := client.baseURL.ResolveReference(&url.URL{Path: strings.TrimLeft(endpoint, "/")})
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}
	return target.String()
}

func (client *Client) get(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	return client.do(ctx, http.MethodGet, client.endpointURL(endpoint, query), nil, out)
}

func (client *Client) do(ctx context.Context, method string, target string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %v payload: %w", target, err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Token "+client.token)
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	log.WithFields(log.Fields{
		"method": method,
		"url":    target,
	}).Trace("Inventory request")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v %v: %v", ErrUnreachable, method, target, err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("read %v %v response: %w", method, target, err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &APIError{
			Method:     method,
			Endpoint:   target,
			StatusCode: response.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %v %v response: %w", method, target, err)
	}
	return nil
}

// create - POST a new object, or pretend to in dry-run mode by echoing the payload with DryRunID.
func (client *Client) create(ctx context.Context, endpoint string, payload map[string]interface{}, out interface{}) error {
	if client.dryRun {
		util.DryRunEntry(log.Fields{
			"endpoint": endpoint,
			"payload":  payload,
		}).Info("Would create")
		echo := make(map[string]interface{}, len(payload)+1)
		for key, value := range payload {
			echo[key] = value
		}
		echo["id"] = DryRunID
		encoded, err := json.Marshal(echo)
		if err != nil {
			return err
		}
		return json.Unmarshal(encoded, out)
	}
	return client.do(ctx, http.MethodPost, client.endpointURL(endpoint, nil), payload, out)
}

// update - PATCH an existing object, skipped in dry-run mode.
func (client *Client) update(ctx context.Context, endpoint string, id string, payload map[string]interface{}) error {
	if client.dryRun || id == DryRunID {
		util.DryRunEntry(log.Fields{
			"endpoint": endpoint,
			"id":       id,
			"payload":  payload,
		}).Info("Would update")
		return nil
	}
	target := client.endpointURL(strings.TrimRight(endpoint, "/")+"/"+id+"/", nil)
	return client.do(ctx, http.MethodPatch, target, payload, nil)
}
