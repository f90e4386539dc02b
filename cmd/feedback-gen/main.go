// Command feedback-gen publishes synthetic feedback events to the inbound
// stream for local testing and load exercises.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	defaultNumEvents = 100
	defaultDrivers   = 10
	defaultSubject   = "feedback.events"
	defaultTimeout   = 30 * time.Second
)

var categories = []string{"driver", "trip", "app", "other"}

var sampleTexts = []string{
	"driver was excellent and very friendly",
	"great ride, super clean car",
	"good experience overall",
	"the driver was okay",
	"fine, nothing special",
	"driver was a bit late",
	"not good, the car smelled bad",
	"terrible driver, very rude and aggressive",
	"awful experience, never again",
	"dangerous driving, I felt unsafe",
	"extremely helpful driver",
	"hardly any problems, decent trip",
}

func main() {
	var (
		url       = flag.String("url", nats.DefaultURL, "NATS server URL")
		subject   = flag.String("subject", defaultSubject, "Subject to publish feedback events to")
		numEvents = flag.Int("events", defaultNumEvents, "Number of events to publish")
		drivers   = flag.Int("drivers", defaultDrivers, "Number of distinct driver ids to spread events over")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	)
	flag.Parse()

	if err := run(*url, *subject, *numEvents, *drivers, *seed); err != nil {
		fmt.Fprintln(os.Stderr, "feedback-gen:", err)
		os.Exit(1)
	}
}

type feedbackEvent struct {
	EventID     string    `json:"event_id"`
	DriverID    int64     `json:"driver_id"`
	Category    string    `json:"category"`
	Text        string    `json:"text"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func run(url, subject string, numEvents, drivers int, seed int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	conn, err := nats.Connect(url)
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer conn.Drain()

	js, err := jetstream.New(conn)
	if err != nil {
		return fmt.Errorf("init jetstream: %w", err)
	}

	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < numEvents; i++ {
		event := feedbackEvent{
			EventID:     uuid.NewString(),
			DriverID:    int64(rng.Intn(drivers) + 1),
			Category:    categories[rng.Intn(len(categories))],
			Text:        sampleTexts[rng.Intn(len(sampleTexts))],
			SubmittedAt: time.Now().UTC(),
		}
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := js.Publish(ctx, subject, data); err != nil {
			return fmt.Errorf("publish event %d: %w", i, err)
		}
	}

	fmt.Printf("published %d events across %d drivers to %s\n", numEvents, drivers, subject)
	return nil
}
