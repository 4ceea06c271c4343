package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dispatch-backend/internal/config"
	"dispatch-backend/internal/database"
	"dispatch-backend/internal/events"
	"dispatch-backend/internal/handlers"
	"dispatch-backend/internal/middleware"
	"dispatch-backend/internal/models"
	"dispatch-backend/internal/services"
	"dispatch-backend/internal/services/routing"
	"dispatch-backend/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
)

func main() {
	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("🚀 DISPATCH BACKEND SERVER STARTING")
	log.Println("═══════════════════════════════════════════════════════════════════")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ FATAL ERROR: invalid configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ FATAL ERROR: %v", err)
	}

	log.Println("🔌 Connecting to database...")
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Database connection failed")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
	defer db.Close()

	log.Println("🔄 Running database migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("❌ FATAL ERROR: Database migrations failed: %v", err)
	}

	stopStore := database.NewStopStore(db)
	driverStore := database.NewDriverStore(db)
	locationStore := database.NewLocationStore(db)

	sessionStore, err := newSessionStore(cfg, db)
	if err != nil {
		log.Fatalf("❌ FATAL ERROR: tracking session store: %v", err)
	}

	// Event fan-out: websocket hub always, Kafka and FCM when configured
	wsHub := websocket.NewHub()
	go wsHub.Run()
	log.Println("✅ WebSocket hub started")

	notifiers := events.Multi{wsHub}

	var publisher *events.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := publisher.EnsureTopics(ctx); err != nil {
			log.Printf("⚠️  Kafka topic setup failed: %v (publishing anyway)", err)
		}
		cancel()

		notifiers = append(notifiers, publisher)
		log.Printf("✅ Kafka publisher enabled (%d brokers)", len(cfg.KafkaBrokers))
	}

	if fcm := newFCMService(cfg, driverStore); fcm != nil {
		notifiers = append(notifiers, fcm)
	}

	optimizer := services.NewRouteOptimizer(newProvider(cfg), notifiers, services.RouteOptimizerConfig{
		ServiceTime: cfg.StopServiceTime,
	})
	sessions := services.NewTrackingSessionManager(sessionStore, stopStore, services.TrackingConfig{
		TTL: cfg.TrackingSessionTTL,
	})
	deliveries := services.NewDeliveryService(stopStore, sessions, notifiers)
	locations := services.NewLocationService(locationStore, services.NewLocationThrottle(), notifiers)
	tracking := services.NewTrackingService(sessions, stopStore, locationStore, driverStore, optimizer)

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// WebSocket endpoints (driver/admin token via query param, customers via tracking code)
	r.Get("/ws", websocket.HandleWebSocket(wsHub, cfg.JWTSecret, locations))
	r.Get("/ws/track/{code}", websocket.HandleTrackingWebSocket(wsHub, sessions))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", handlers.Login(driverStore, cfg.JWTSecret))

		// Public tracking (no auth, the code is the credential)
		r.Get("/tracking/{code}", handlers.GetTracking(tracking))
		r.Get("/tracking/{code}/eta", handlers.GetTrackingETA(tracking))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.RequireRole(models.RoleDriver))

			r.Post("/driver/route/optimize", handlers.OptimizeRoute(stopStore, optimizer))
			r.Post("/driver/route/refresh", handlers.RefreshRoute(stopStore, locationStore, optimizer))

			r.Get("/driver/deliveries", handlers.GetMyDeliveries(deliveries))
			r.Get("/driver/deliveries/stats", handlers.GetDeliveryStats(deliveries))
			r.Put("/driver/deliveries/{id}/status", handlers.UpdateDeliveryStatus(deliveries))
			r.Post("/driver/deliveries/{id}/tracking-code", handlers.GenerateTrackingCode(deliveries))
			r.Post("/driver/deliveries/{id}/proof", handlers.UploadDeliveryProof(deliveries))

			// Location tracking fallback for clients without a socket
			r.Post("/driver/location", handlers.UpdateLocation(locations))
		})
	})

	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("✅ ALL INITIALIZATION COMPLETE")
	log.Printf("🚀 Server starting on http://localhost:%s", cfg.Port)
	log.Println("═══════════════════════════════════════════════════════════════════")

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			log.Println("❌ FATAL ERROR: Server failed to start")
			log.Printf("   Error: %v", err)
			log.Printf("   Port: %s", cfg.Port)
			log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("⚠️  HTTP shutdown: %v", err)
	}

	// Flush buffered Kafka batches once no handler can publish anymore
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Printf("⚠️  Kafka flush: %v", err)
		}
	}
	log.Println("✅ Shutdown complete")
}

func newSessionStore(cfg *config.Config, db *sqlx.DB) (services.SessionStore, error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		log.Println("✅ Tracking sessions stored in Postgres")
		return database.NewTrackingSessionStore(db), nil
	}

	rdb, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	log.Println("✅ Tracking sessions stored in Redis")
	return database.NewRedisTrackingSessionStore(rdb, cfg.TrackingCodeRetention), nil
}

// newProvider returns nil when no API key is set, which sends every request to nearest-neighbor
func newProvider(cfg *config.Config) routing.Provider {
	if cfg.GoogleMapsAPIKey == "" {
		log.Println("⚠️  GOOGLE_MAPS_API_KEY not set, routes use nearest-neighbor only")
		return nil
	}
	provider, err := routing.NewGoogleMapsProvider(routing.GoogleConfig{
		APIKey:  cfg.GoogleMapsAPIKey,
		BaseURL: cfg.GoogleMapsBaseURL,
		Timeout: cfg.ProviderTimeout,
	})
	if err != nil {
		log.Printf("⚠️  Route provider disabled: %v", err)
		return nil
	}
	log.Println("✅ Google Maps route provider initialized")
	return provider
}

// newFCMService supports both base64 credentials (cloud deployments) and a file path (local development)
func newFCMService(cfg *config.Config, drivers services.DriverLookup) *services.FCMService {
	if cfg.FirebaseCredentialsBase64 != "" {
		fcm, err := services.NewFCMServiceFromBase64(cfg.FirebaseCredentialsBase64, drivers)
		if err != nil {
			log.Printf("⚠️  Failed to initialize FCM from base64: %v (push notifications disabled)", err)
			return nil
		}
		log.Println("✅ Firebase Cloud Messaging initialized from base64 credentials")
		return fcm
	}

	file := cfg.FirebaseCredentialsFile
	if file == "" {
		file = "./firebase-service-account.json"
	}
	fcm, err := services.NewFCMService(file, drivers)
	if err != nil {
		log.Printf("⚠️  Failed to initialize FCM from file: %v (push notifications disabled)", err)
		return nil
	}
	log.Println("✅ Firebase Cloud Messaging initialized from file")
	return fcm
}
