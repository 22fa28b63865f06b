// Package dns imports address records into a Technitium DNS server.
package dns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/util"
)

// Errors of DNS API calls.
var (
	ErrZoneExists   = errors.New("zone already exists")
	ErrInvalidToken = errors.New("DNS API token rejected")
)

// Client - Technitium DNS HTTP API client.
type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
	dryRun     bool
	zones      map[string]bool // Existing zones, loaded on first use
}

// NewClient - Create a client. The URL is the API root, e.g. http://dns1:5380/api.
func NewClient(config common.DNSConfig, dryRun bool) (*Client, error) {
	if config.APIURL == "" {
		return nil, fmt.Errorf("%w: DNS API URL not configured", common.ErrInvalidConfig)
	}
	if _, err := url.Parse(config.APIURL); err != nil {
		return nil, fmt.Errorf("%w: malformed DNS API URL: %v", common.ErrInvalidConfig, err)
	}
	if config.Token == "" {
		return nil, fmt.Errorf("%w: %v not set", common.ErrMissingCredential, common.EnvTechnitiumToken)
	}
	return &Client{
		apiURL: strings.TrimRight(config.APIURL, "/"),
		token:  config.Token,
		httpClient: &http.Client{
			Timeout: common.Seconds(config.TimeoutSeconds),
		},
		dryRun: dryRun,
	}, nil
}

// DryRun - If calls are skipped.
func (client *Client) DryRun() bool {
	return client.dryRun
}

type apiResponse struct {
	Status       string          `json:"status"`
	Response     json.RawMessage `json:"response"`
	ErrorMessage string          `json:"errorMessage"`
	Error        struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (response apiResponse) message() string {
	if response.ErrorMessage != "" {
		return response.ErrorMessage
	}
	return response.Error.Message
}

// call - GET an API path with the token added. Non-ok statuses become errors.
func (client *Client) call(ctx context.Context, path string, params url.Values) error {
	return client.query(ctx, path, params, nil)
}

// query - Like call, decoding the "response" member into out if not nil.
func (client *Client) query(ctx context.Context, path string, params url.Values, out interface{}) error {
	query := url.Values{"token": {client.token}}
	for key, values := range params {
		query[key] = values
	}
	target := client.apiURL + "/" + strings.TrimLeft(path, "/")
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"url": target,
	}).Trace("DNS API request")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("GET %v: %w", target, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("read %v: %w", target, err)
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("GET %v: status %v: undecodable response: %w", target, response.StatusCode, err)
	}
	switch {
	case result.Status == "ok":
		if out == nil || len(result.Response) == 0 {
			return nil
		}
		if err := json.Unmarshal(result.Response, out); err != nil {
			return fmt.Errorf("GET %v: undecodable response: %w", target, err)
		}
		return nil
	case result.Status == "invalid-token":
		return fmt.Errorf("%w: %v", ErrInvalidToken, result.message())
	case strings.Contains(result.message(), "already exists"):
		return fmt.Errorf("%w: %v", ErrZoneExists, result.message())
	}
	return fmt.Errorf("GET %v: %v: %v", target, result.Status, result.message())
}

// Zones - Names of the zones on the server. Read-only, also called in dry-run.
func (client *Client) Zones(ctx context.Context) (map[string]bool, error) {
	var response struct {
		Zones []struct {
			Name string `json:"name"`
		} `json:"zones"`
	}
	if err := client.query(ctx, "zones/list", nil, &response); err != nil {
		return nil, err
	}
	zones := make(map[string]bool, len(response.Zones))
	for _, zone := range response.Zones {
		zones[strings.ToLower(zone.Name)] = true
	}
	return zones, nil
}

// EnsureZone - Create a primary zone that is a member of the catalog zone, or link an existing zone to it.
// Returns if the zone was created. Existing zones are looked up the same way in dry-run.
func (client *Client) EnsureZone(ctx context.Context, zone string, catalog string) (bool, error) {
	logger := log.WithFields(log.Fields{
		"zone":    zone,
		"catalog": catalog,
	})
	if client.zones == nil {
		zones, err := client.Zones(ctx)
		if err != nil {
			return false, fmt.Errorf("list zones: %w", err)
		}
		client.zones = zones
	}

	params := url.Values{"zone": {zone}}
	if catalog != "" {
		params.Set("catalog", catalog)
	}
	if !client.zones[strings.ToLower(zone)] {
		if client.dryRun {
			util.DryRunEntry(logger.Data).Info("Would create zone")
			client.zones[strings.ToLower(zone)] = true
			return true, nil
		}
		err := client.call(ctx, "zones/create", params)
		if err == nil {
			client.zones[strings.ToLower(zone)] = true
			util.LogSuccess(logger, "Created zone")
			return true, nil
		}
		if !errors.Is(err, ErrZoneExists) {
			return false, err
		}
	}

	logger.Debug("Zone already exists")
	if catalog == "" {
		return false, nil
	}
	if client.dryRun {
		util.DryRunEntry(logger.Data).Info("Would update catalog link")
		return false, nil
	}
	if err := client.call(ctx, "zones/options/set", params); err != nil {
		return false, fmt.Errorf("link zone %v to catalog: %w", zone, err)
	}
	util.LogSuccess(logger, "Updated catalog link")
	return false, nil
}

// AddRecord - Add or overwrite an A record. The label is relative to the zone, "@" for the apex.
func (client *Client) AddRecord(ctx context.Context, record Record) error {
	logger := log.WithFields(log.Fields{
		"zone":       record.Zone,
		"label":      record.Label,
		"ip_address": record.IP,
	})
	if client.dryRun {
		util.DryRunEntry(logger.Data).Info("Would add record")
		return nil
	}
	err := client.call(ctx, "zones/records/add", url.Values{
		"zone":      {record.Zone},
		"domain":    {record.Label},
		"type":      {"A"},
		"ipAddress": {record.IP},
		"overwrite": {"true"},
	})
	if err != nil {
		return err
	}
	util.LogSuccess(logger, "Added record")
	return nil
}
