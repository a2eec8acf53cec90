// Package firestore provides a Firestore implementation of the routequota.Storage interface.
// The whole state lives in a single document so a save is one write.
package firestore

import (
	"context"
	"fmt"
	"math"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/routequota/pkg/routequota"
)

// Storage implements routequota.Storage using Google Cloud Firestore
type Storage struct {
	client     *firestore.Client
	collection string
	document   string
	clock      *serverClock
}

// Config holds Firestore storage configuration
type Config struct {
	// Collection holds the quota documents
	// Default: "routequota"
	Collection string

	// Document is the ID of the state document
	// Default: "state"
	Document string

	// ClockSyncInterval is how long Now reuses the measured server clock
	// offset before writing the _clock document again. Negative measures on
	// every call.
	// Default: DefaultClockSyncInterval
	ClockSyncInterval time.Duration
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.Collection == "" {
		config.Collection = "routequota"
	}
	if config.Document == "" {
		config.Document = "state"
	}

	if config.ClockSyncInterval == 0 {
		config.ClockSyncInterval = DefaultClockSyncInterval
	}

	s := &Storage{
		client:     client,
		collection: config.Collection,
		document:   config.Document,
	}
	s.clock = newServerClock(config.ClockSyncInterval, s.serverTime)
	return s, nil
}

// LoadState implements routequota.Storage
func (s *Storage) LoadState(ctx context.Context) (*routequota.State, error) {
	snap, err := s.client.Collection(s.collection).Doc(s.document).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load quota state: %w", err)
	}
	if !snap.Exists() {
		return nil, nil
	}
	return stateFromData(snap.Data()), nil
}

// SaveState implements routequota.Storage
func (s *Storage) SaveState(ctx context.Context, state *routequota.State) error {
	if state == nil {
		return fmt.Errorf("state is required")
	}

	usage := make(map[string]interface{}, len(state.Usage))
	for api, n := range state.Usage {
		usage[api] = n
	}

	_, err := s.client.Collection(s.collection).Doc(s.document).Set(ctx, map[string]interface{}{
		"month":     state.Month,
		"usage":     usage,
		"updatedAt": firestore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to save quota state: %w", err)
	}
	return nil
}

// Now implements routequota.TimeSource. Firestore has no clock query, so a
// server timestamp is written to a scratch document and read back; the
// resulting offset from the local clock is reused for ClockSyncInterval.
func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	return s.clock.Now(ctx)
}

func (s *Storage) serverTime(ctx context.Context) (time.Time, error) {
	doc := s.client.Collection(s.collection).Doc("_clock")
	result, err := doc.Set(ctx, map[string]interface{}{"at": firestore.ServerTimestamp})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read firestore time: %w", err)
	}
	return result.UpdateTime, nil
}

func stateFromData(data map[string]interface{}) *routequota.State {
	state := routequota.NewState(getString(data, "month"))
	usage, _ := data["usage"].(map[string]interface{})
	for api := range usage {
		if n := getInt(usage, api); n > 0 {
			state.Usage[api] = n
		}
	}
	return state
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getInt(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(math.Round(v))
	default:
		return 0
	}
}
