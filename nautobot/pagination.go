package nautobot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// Page - One page of a list response.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// ListAll - Fetch every page of a filtered list by following the next links.
// A partial list is never returned: any failing page fails the whole call.
func ListAll[T any](ctx context.Context, client *Client, endpoint string, query url.Values) ([]T, error) {
	pageQuery := url.Values{}
	for key, values := range query {
		pageQuery[key] = values
	}
	if pageQuery.Get("limit") == "" {
		pageQuery.Set("limit", strconv.Itoa(client.pageLimit))
	}

	var results []T
	target := client.endpointURL(endpoint, pageQuery)
	visited := make(map[string]bool)
	for target != "" {
		if visited[target] {
			return nil, fmt.Errorf("pagination loop on %v", target)
		}
		visited[target] = true

		var page Page[T]
		if err := client.do(ctx, http.MethodGet, target, nil, &page); err != nil {
			return nil, err
		}
		results = append(results, page.Results...)
		log.WithFields(log.Fields{
			"endpoint": endpoint,
			"fetched":  len(results),
			"count":    page.Count,
		}).Trace("Fetched page")

		target = ""
		if page.Next != nil {
			target = *page.Next
		}
	}
	return results, nil
}
