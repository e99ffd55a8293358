package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"studiobook/internal/database"
	"studiobook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Drains the audit dead-letter list back into the sqlite audit trail.
// Records land in the dead letter only after the worker's retry budget is
// exhausted, usually because the db file was unavailable; run this once the
// storage is healthy again.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		redisAddr = flag.String("redis", "localhost:6379", "redis address")
		dbPath    = flag.String("db", "./data/studiobook.db", "path to sqlite db")
		key       = flag.String("key", "audit:deadletter", "dead-letter list key")
	)
	flag.Parse()

	client := redis.NewClient(&redis.Options{Addr: *redisAddr})
	defer client.Close()

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	drained := 0
	skipped := 0
	for {
		raw, err := client.RPop(ctx, *key).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return fmt.Errorf("pop dead letter: %w", err)
		}

		var rec models.AuditRecord
		if err = json.Unmarshal([]byte(raw), &rec); err != nil {
			logger.Warn().Err(err).Str("raw", raw).Msg("undecodable dead letter, dropping")
			skipped++
			continue
		}
		if err = db.Insert(ctx, rec); err != nil {
			// Put it back so a rerun can pick it up.
			if pushErr := client.LPush(ctx, *key, raw).Err(); pushErr != nil {
				logger.Error().Err(pushErr).Str("booking_ref", rec.BookingRef).Msg("requeue failed, record lost")
			}
			return fmt.Errorf("insert %s: %w", rec.BookingRef, err)
		}
		drained++
	}

	fmt.Printf("done: drained=%d skipped=%d\n", drained, skipped)
	return nil
}
