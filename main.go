package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"treasure-match-engine/handlers"
	"treasure-match-engine/middleware"
	"treasure-match-engine/models"
	"treasure-match-engine/services"
	"treasure-match-engine/store"
	"treasure-match-engine/utils"
	"treasure-match-engine/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Session-Token, X-Service-Token, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Match{},
		&models.MatchTeam{},
		&models.MatchDiscovery{},
		&models.UserActiveMatch{},
		&models.MatchUser{},
		&models.UserLocation{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	matchStore := store.NewMatchStore(db)

	lifecycleService := services.NewLifecycleService(matchStore)
	matchmakingService := services.NewMatchmakingService(matchStore, lifecycleService)
	scoreService := services.NewScoreService(matchStore, lifecycleService)
	liveService := services.NewLiveService(matchStore)
	locationService := services.NewLocationService(db)

	// Settlement reports go to R2 once a match finishes
	lifecycleService.OnFinished = scoreService.ArchiveSettlement

	authServiceURL := os.Getenv("AUTH_SERVICE_URL")
	if authServiceURL == "" {
		log.Fatal("AUTH_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("MATCH_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("MATCH_SERVICE_TOKEN environment variable not set")
	}
	authClient := services.NewAuthServiceClient(authServiceURL, serviceToken)

	profileSyncURL := os.Getenv("PROFILE_SYNC_URL")
	if profileSyncURL == "" {
		log.Fatal("PROFILE_SYNC_URL environment variable not set")
	}
	profileSyncWorker := workers.NewProfileSyncWorker(db, profileSyncURL, "/api/v1/public/profiles", serviceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profileSyncWorker.Start(ctx)

	sweep := &services.ReconciliationSweep{Store: matchStore, Lifecycle: lifecycleService}
	services.StartReconciliationScheduler(sweep, locationService)

	handlers.SetupMatchRoutes(app, matchmakingService, scoreService, liveService, locationService, authClient)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Match engine running on http://localhost:5300")
	log.Println("✅ Profile Sync Worker running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
