package core

import (
	"context"
	"time"
)

type (
	// EventPublisher broadcasts domain events to other processes.
	EventPublisher interface {
		Publish(ctx context.Context, subject string, payload interface{}) error
	}

	// Cache stores JSON-serializable values by key.
	Cache interface {
		// Get decodes the value stored at key into dest and reports whether it was found.
		Get(ctx context.Context, key string, dest interface{}) (bool, error)
		Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error
		Delete(ctx context.Context, keys ...string) error
	}
)

type noopPublisher struct{}

// NoopPublisher drops every event. Used when no broker is configured.
var NoopPublisher EventPublisher = noopPublisher{}

func (noopPublisher) Publish(context.Context, string, interface{}) error { return nil }

type noopCache struct{}

// NoopCache never finds anything. Used when no cache is configured.
var NoopCache Cache = noopCache{}

func (noopCache) Get(context.Context, string, interface{}) (bool, error)        { return false, nil }
func (noopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (noopCache) Delete(context.Context, ...string) error                       { return nil }
