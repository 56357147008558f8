package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nestcheckout-service/internal/domain/entity"
	"nestcheckout-service/internal/infrastructure/config"
	"nestcheckout-service/internal/infrastructure/oauth"
	"nestcheckout-service/internal/interface/repository"
	"nestcheckout-service/internal/usecase"
	"nestcheckout-service/pkg/logger"
	"nestcheckout-service/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	// Create logger
	log := logger.NewLogger()
	log.Info("Starting Nest Checkout Automation Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	log.Info("Effective configuration",
		"pollInterval", cfg.PollInterval.String(),
		"checkoutBuffer", cfg.CheckoutBuffer.String(),
		"triggerKeyword", cfg.TriggerKeyword,
		"configuredDeviceIDs", len(cfg.NestDeviceIDs))

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up OAuth token manager
	tokenManager := oauth.NewTokenManager(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRefreshToken,
		log,
	)

	// Set up repositories
	feedRepo := repository.NewICalCalendarRepository(cfg.ICalURL, log)
	deviceRepo := repository.NewSDMDeviceRepository(cfg.NestProjectID, tokenManager, log)
	notifier := repository.NewSMTPNotifierRepository(repository.SMTPConfig{
		Enabled:   cfg.SMTPEnabled,
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		FromEmail: cfg.SMTPFromEmail,
		ToEmail:   cfg.SMTPToEmail,
	}, log)

	// Set up pipeline
	appMetrics := metrics.NewMetrics("nestcheckout")
	policy := usecase.NewCheckoutPolicy(cfg.TriggerKeyword, cfg.CheckoutBuffer, log)
	ledger := usecase.NewProcessedLedger(log)
	orchestrator := usecase.NewPollOrchestrator(
		feedRepo,
		deviceRepo,
		notifier,
		policy,
		ledger,
		tokenManager,
		usecase.OrchestratorConfig{
			PollInterval:    cfg.PollInterval,
			CheckoutBuffer:  cfg.CheckoutBuffer,
			ProcessedMaxAge: cfg.ProcessedMaxAge,
			TriggerKeyword:  cfg.TriggerKeyword,
			DeviceIDs:       cfg.NestDeviceIDs,
		},
		log,
		appMetrics,
	)

	// Discover thermostats on startup as a setup aid; failure is not fatal.
	if devices, err := deviceRepo.ListDevices(ctx, true); err != nil {
		log.Error("Failed to discover devices on startup", "error", err)
	} else {
		log.Info("Thermostat discovery complete", "count", len(devices))
		for _, d := range devices {
			kv := []interface{}{"name", d.DisplayName, "deviceID", d.DeviceID, "mode", d.CurrentMode}
			if d.AmbientTemperature != nil {
				kv = append(kv, "temperatureCelsius", *d.AmbientTemperature)
			}
			if d.HumidityPercent != nil {
				kv = append(kv, "humidityPercent", *d.HumidityPercent)
			}
			log.Info("Discovered thermostat", kv...)
		}
		if len(devices) == 0 {
			log.Warn("No thermostats found; check the Device Access configuration")
		}
	}

	// Schedule polling
	scheduler := cron.New()
	entryID, err := scheduler.AddFunc("@every "+cfg.PollInterval.String(), func() {
		if err := orchestrator.RunPollTick(ctx); err != nil {
			log.Error("Poll tick failed", "error", err)
		}
	})
	if err != nil {
		log.Fatal("Failed to schedule calendar poll", "error", err)
	}
	orchestrator.SetNextRunFunc(func() time.Time {
		return scheduler.Entry(entryID).Next
	})

	// Run initial poll in the background, then start the schedule.
	go func() {
		log.Info("Running initial calendar poll")
		if err := orchestrator.RunPollTick(ctx); err != nil {
			log.Error("Initial poll failed", "error", err)
		}
	}()
	scheduler.Start()

	// Set up HTTP server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, orchestrator.Status())
	})
	mux.HandleFunc("POST /poll", func(w http.ResponseWriter, r *http.Request) {
		log.Info("Manual poll triggered via API")
		if err := orchestrator.RunPollTick(r.Context()); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "Poll completed",
			"status":  orchestrator.Status(),
		})
	})
	mux.HandleFunc("GET /devices", func(w http.ResponseWriter, r *http.Request) {
		devices, err := orchestrator.ListDevices(r.Context(), true)
		if err != nil {
			log.Error("Failed to list devices", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"devices": devices})
	})
	mux.HandleFunc("POST /devices/{id}/off", func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.PathValue("id")
		if err := orchestrator.TurnOffDevice(r.Context(), deviceID); err != nil {
			log.Error("Failed to turn off device", "deviceID", deviceID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"device_id": deviceID,
			"success":   true,
			"mode":      entity.ModeOff,
		})
	})
	mux.HandleFunc("POST /test-notification", func(w http.ResponseWriter, r *http.Request) {
		if !notifier.IsConfigured() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "Email notifications not configured. Set SMTP_ENABLED=true and provide SMTP credentials.",
			})
			return
		}

		testResults := map[string]bool{"Test Thermostat": true}
		if devices, err := orchestrator.ListDevices(r.Context(), false); err == nil && len(devices) > 0 {
			testResults = make(map[string]bool, len(devices))
			for _, d := range devices {
				testResults[d.DisplayName] = true
			}
		}

		result := &entity.ActionResult{
			ReservationID:  "TEST-123",
			PropertyName:   "Test Property",
			GuestName:      "Test Guest",
			EventTime:      time.Now().UTC(),
			ThermostatsOff: len(testResults),
			NamedResults:   testResults,
		}
		if err := notifier.SendCheckoutNotification(r.Context(), result); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Test notification sent successfully"})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Received signal", "signal", sig)

	// Graceful shutdown: stop scheduling, wait for a running tick, then
	// shut down the HTTP server.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("Timed out waiting for running poll tick")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	cancel()
	log.Info("Nest Checkout Automation Service stopped")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
