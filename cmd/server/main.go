package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/elena-risteska/parter-be/internal/config"
	"github.com/elena-risteska/parter-be/internal/database"
	"github.com/elena-risteska/parter-be/internal/handler"
	"github.com/elena-risteska/parter-be/internal/queue"
	"github.com/elena-risteska/parter-be/internal/repository"
	"github.com/elena-risteska/parter-be/internal/reservation"
	"github.com/elena-risteska/parter-be/internal/router"
)

func main() {
	// .env is for development; in production the variables are set by
	// the environment and the file is simply absent.
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	plays := repository.NewPlayRepo(db)
	store := repository.NewReservationStore(db)

	engine := reservation.NewEngine(store, reservation.SystemClock{}, cfg.ReservationTTL)

	h := router.Handlers{
		Auth:         handler.NewAuthHandler(cfg, users, tokens),
		Profile:      handler.NewProfileHandler(cfg, users, tokens, store),
		Plays:        handler.NewPlayHandler(plays),
		Reservations: handler.NewReservationHandler(engine, store),
	}

	go queue.StartConsumer()
	go sweepLoop(engine, cfg.SweepInterval)

	e := router.New(cfg, h, rdb)
	if err := e.Start(":" + cfg.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// sweepLoop periodically expires overdue reservations so seats free up
// even on plays nobody is currently booking.
func sweepLoop(engine *reservation.Engine, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := engine.SweepExpired(ctx)
		if err != nil {
			log.Printf("sweep: %v", err)
		} else if n > 0 {
			log.Printf("sweep: expired %d reservations", n)
			if err := queue.Publish(ctx, queue.ReservationEvent{
				Kind:  queue.KindReservationsExpired,
				Count: n,
			}); err != nil {
				log.Printf("sweep: event not published: %v", err)
			}
		}
		cancel()
	}
}
