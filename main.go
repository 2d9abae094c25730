package main

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/yeremiapane/pix-checkout/config"
	"github.com/yeremiapane/pix-checkout/controllers"
	"github.com/yeremiapane/pix-checkout/hub"
	"github.com/yeremiapane/pix-checkout/router"
	"github.com/yeremiapane/pix-checkout/services"
	"github.com/yeremiapane/pix-checkout/store"
	"github.com/yeremiapane/pix-checkout/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or error loading: %v", err)
	}

	utils.InitLogger()
	cfg := config.Load()

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	chargeStore := buildStore(cfg)

	gateway, err := services.NewEfiService(&services.EfiConfig{
		ClientID:        cfg.EfiClientID,
		ClientSecret:    cfg.EfiClientSecret,
		Sandbox:         cfg.EfiSandbox,
		CertificatePath: cfg.EfiCertificatePath,
		Timeout:         cfg.EfiTimeout,
	})
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to initialize EFI client: %v", err)
	}
	if err := gateway.ValidateConfig(); err != nil {
		utils.ErrorLogger.Printf("Warning: EFI configuration incomplete: %v", err)
	}

	chargeHub := hub.NewChargeHub()

	chargeService := services.NewChargeService(gateway, chargeStore, cfg.EfiPixKey,
		time.Duration(cfg.ExpirationSeconds)*time.Second)
	chargeService.AttachHub(chargeHub)
	if cfg.ReconcileWithGateway {
		chargeService.EnableGatewayReconciliation()
	}

	monitor := services.NewChargeMonitor(chargeService, cfg.MonitorInterval)
	monitor.Start()
	defer monitor.Stop()

	sessions := controllers.NewSessionStore()
	chargeCtrl := controllers.NewChargeController(chargeService, sessions, cfg.ProductPrice)
	webhookCtrl := controllers.NewWebhookController(chargeService)
	eventsCtrl := controllers.NewEventsController(chargeHub)

	r := router.SetupRouter(cfg, chargeCtrl, webhookCtrl, eventsCtrl)

	utils.InfoLogger.Printf("Listening on port %s (store=%s, sandbox=%v)", cfg.Port, cfg.StoreDriver, cfg.EfiSandbox)
	if err := r.Run(":" + cfg.Port); err != nil {
		utils.ErrorLogger.Fatal(err)
	}
}

func buildStore(cfg *config.Config) store.ChargeStore {
	switch cfg.StoreDriver {
	case "sqlite", "mysql":
		db, err := config.InitDB(cfg)
		if err != nil {
			utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
		}
		gormStore, err := store.NewGormStore(db)
		if err != nil {
			utils.ErrorLogger.Fatalf("Failed to migrate charge store: %v", err)
		}
		return gormStore
	default:
		return store.NewMemoryStore()
	}
}
