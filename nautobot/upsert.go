package nautobot

import (
	"context"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/util"
)

// Upsert - Look up an object and create it through the client if the lookup found nothing.
// Returns the object and whether it was created. Lookup errors other than ErrNotFound are returned as they are.
// In dry-run mode the created object is the echo from the client and only the client logs it.
func Upsert[T any](ctx context.Context, client *Client, kind string, key string, find func(context.Context) (*T, error), create func(context.Context) (*T, error)) (*T, bool, error) {
	existing, err := find(ctx)
	if err == nil {
		log.WithFields(log.Fields{
			"kind": kind,
			"key":  key,
		}).Trace("Found existing object")
		return existing, false, nil
	}
	if !isNotFound(err) {
		return nil, false, err
	}

	created, err := create(ctx)
	if err != nil {
		return nil, false, err
	}
	if client.DryRun() {
		util.DryRunEntry(log.Fields{
			"kind": kind,
			"key":  key,
		}).Trace("Object would be created")
		return created, true, nil
	}
	util.LogSuccess(log.WithFields(log.Fields{
		"kind": kind,
		"key":  key,
	}), "Created object")
	return created, true, nil
}

// UpsertTag - Get or create a tag by name.
func (client *Client) UpsertTag(ctx context.Context, name string, color string) (*Tag, error) {
	tag, _, err := Upsert(ctx, client, "tag", name,
		func(ctx context.Context) (*Tag, error) { return client.FindTag(ctx, name) },
		func(ctx context.Context) (*Tag, error) { return client.CreateTag(ctx, name, color) },
	)
	return tag, err
}
