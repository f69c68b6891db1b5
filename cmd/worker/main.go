package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"campusattend/internal/config"
	"campusattend/internal/notify"
	"campusattend/internal/store"
)

// Worker consumes attendance events and writes notifications for the
// students concerned.
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

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q notify.Queue
	if cfg.QueueBackend == "memory" {
		q = notify.NewInMemory(64)
	} else {
		q = notify.NewRedisQueue(redisClient.Client, "campus:attendance-events")
	}

	writer := notify.NewWriter(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if err := writer.Process(ctx, msg); err != nil {
			log.Printf("process %s for student %d failed: %v", msg.Type, msg.StudentID, err)
			continue
		}
		if msg.Type == "attendance.recorded" {
			log.Printf("notified student %d for course %d (%s)", msg.StudentID, msg.CourseID, msg.SessionDate)
		}
	}

	log.Println("worker stopped")
}
