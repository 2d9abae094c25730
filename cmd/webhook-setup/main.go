// Command webhook-setup registers the service's webhook URL with EFI for the
// configured PIX key. One-shot setup utility, not part of the runtime.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/yeremiapane/pix-checkout/config"
	"github.com/yeremiapane/pix-checkout/services"
	"github.com/yeremiapane/pix-checkout/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or error loading: %v", err)
	}

	utils.InitLogger()
	cfg := config.Load()

	url := flag.String("url", cfg.WebhookURL, "webhook URL to register (must be HTTPS)")
	flag.Parse()

	if *url == "" {
		log.Fatal("webhook URL required: pass -url or set WEBHOOK_URL")
	}
	if cfg.EfiPixKey == "" {
		log.Fatal("EFI_PIX_KEY is required")
	}

	gateway, err := services.NewEfiService(&services.EfiConfig{
		ClientID:        cfg.EfiClientID,
		ClientSecret:    cfg.EfiClientSecret,
		Sandbox:         cfg.EfiSandbox,
		CertificatePath: cfg.EfiCertificatePath,
		Timeout:         cfg.EfiTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to initialize EFI client: %v", err)
	}
	if err := gateway.ValidateConfig(); err != nil {
		log.Fatalf("EFI configuration incomplete: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := gateway.RegisterWebhook(ctx, cfg.EfiPixKey, *url); err != nil {
		log.Fatalf("Failed to register webhook: %v", err)
	}

	log.Printf("Webhook %s registered for PIX key %s", *url, cfg.EfiPixKey)
}
