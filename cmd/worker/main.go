package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/schedule"
	"rollcall/internal/store"
)

// Worker consumes recorded-attendance events and logs per-attendee attendance
// rates against the expected occurrence count for the semester so far.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:events")
	}

	ledger := attendance.NewRepository(db.Client)
	entries := schedule.NewRepository(db.Client)
	resolver := schedule.NewResolver(cfg.SemesterStart)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeRecorded {
			continue
		}

		id := msg.Body
		rec, err := ledger.GetRecord(ctx, id)
		if err != nil {
			log.Printf("fetch record %s failed: %v", id, err)
			continue
		}
		entry, err := entries.GetEntry(ctx, rec.EntryID)
		if err != nil {
			log.Printf("fetch entry %d failed: %v", rec.EntryID, err)
			continue
		}

		expected := resolver.ExpectedOccurrenceCount(entry, cfg.SemesterStart, time.Now().UTC())
		attended, err := ledger.CountForAttendee(ctx, rec.AttendeeID, rec.EntryID)
		if err != nil {
			log.Printf("count for attendee %s failed: %v", rec.AttendeeID, err)
			continue
		}

		rate := 0.0
		if expected > 0 {
			rate = float64(attended) / float64(expected)
		}
		log.Printf("attendee %s: %s (%s) %d/%d sessions, rate %.2f",
			rec.AttendeeID, entry.Subject, entry.GroupName, attended, expected, rate)
	}

	log.Println("worker stopped")
}
