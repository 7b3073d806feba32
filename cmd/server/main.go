package main // Entry point package

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/WebabyApps/RideMate/internal/config"
	"github.com/WebabyApps/RideMate/internal/database"
	"github.com/WebabyApps/RideMate/internal/feed"
	"github.com/WebabyApps/RideMate/internal/handler"
	"github.com/WebabyApps/RideMate/internal/queue"
	"github.com/WebabyApps/RideMate/internal/repository"
	"github.com/WebabyApps/RideMate/internal/router"
	"github.com/WebabyApps/RideMate/internal/service"
)

func main() {
	_ = godotenv.Load() // optional .env for local development
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ledger := repository.NewLedger(db)
	rides := repository.NewRideRepo(db)

	// Redis backs the rate limiter and the cross-instance change-feed
	// bridge; both degrade gracefully when it is absent.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting and feed bridging disabled")
	}

	changeFeed := feed.New(ledger.RideState, rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go changeFeed.Run(ctx)

	// Audit consumer for booking events; reconnects on broker loss.
	go func() {
		if err := queue.StartBookingConsumer(); err != nil {
			log.Printf("booking-consumer stopped: %v", err)
		}
	}()

	svc := service.NewReservationService(ledger, changeFeed, queue.NewPublisher())

	e := echo.New()
	router.RegisterRoutes(e)
	rideHandler := handler.NewRideHandler(rides)
	resHandler := handler.NewReservationHandler(svc)
	streamHandler := handler.NewStreamHandler(changeFeed)
	router.RegisterRides(e, rideHandler, resHandler, streamHandler, cfg.JWTSecret)
	router.RegisterBookings(e, resHandler, cfg.JWTSecret, rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
