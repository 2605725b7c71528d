package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/jwaldner/marlin/internal/config"
	"github.com/jwaldner/marlin/internal/handlers"
	"github.com/jwaldner/marlin/internal/logger"
	"github.com/jwaldner/marlin/internal/runlog"
	marlin "github.com/jwaldner/marlin/marlin_lib"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	if err := logger.InitWithConfig(cfg.Logging.LogLevel, cfg.Logging.LogFile); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logger.Always.Printf("🚀 Marlin implied vol server starting - Port: %s", cfg.Port)

	// Initialize engine
	var engine *marlin.MarlinEngine
	if cfg.Engine.Workers > 0 {
		engine = marlin.NewMarlinEngineWithWorkers(cfg.Engine.Workers)
		logger.Always.Printf("🔧 ENGINE: CPU with %d workers (configured)", engine.Workers())
	} else {
		engine = marlin.NewMarlinEngine()
		logger.Always.Printf("🔧 ENGINE: CPU with %d workers (NumCPU)", engine.Workers())
	}

	var runLogger *runlog.RunLogger
	if cfg.RunLog.Enabled {
		runLogger = runlog.NewRunLogger(cfg.RunLog.Dir)
		logger.Info.Printf("📝 Run logging enabled - dir: %s", cfg.RunLog.Dir)
	}

	calibrateHandler := handlers.NewCalibrateHandler(engine, cfg, runLogger)

	// Setup router
	r := mux.NewRouter()
	r.HandleFunc("/api/calibrate", calibrateHandler.CalibrateAPIHandler).Methods("POST")
	r.HandleFunc("/api/price", calibrateHandler.PriceAPIHandler).Methods("POST")
	r.HandleFunc("/api/health", calibrateHandler.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	fmt.Printf("🌐 Server starting on http://localhost:%s\n", cfg.Port)
	logger.Always.Printf("🌐 Server starting on http://localhost:%s", cfg.Port)

	if err := http.ListenAndServe("0.0.0.0:"+cfg.Port, r); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
