package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"peekraw/internal/handlers"
	"peekraw/internal/logging"
	"peekraw/internal/memory"
	"peekraw/internal/metrics"
	"peekraw/internal/middleware"
	"peekraw/internal/startup"
)

// statsInterval is how often sampled gauges are refreshed.
const statsInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve [path...]",
	Short: "Serve the gallery over HTTP",
	Long: `Serve starts the gallery API. Paths given on the command line are opened
at startup; otherwise the gallery starts empty and clients open a selection
through the API.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "listen port (env PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	startTime := time.Now()

	startup.PrintBanner()
	startup.LogSystemInfo()
	startup.LogMemoryConfig(memory.ConfigureFromEnv())
	startup.LogConfig(config)

	a, err := newApp(cmd.Context(), config, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if len(args) > 0 {
		listing, run, err := a.open(cmd.Context(), args)
		if err != nil {
			return err
		}
		logging.Info("Opened %d items (%d skipped) as run %d", len(listing.Refs), len(listing.Skipped), run)
	}

	collector := metrics.NewCollector(a.gallery, statsInterval)
	collector.Start()
	defer collector.Stop()

	h := handlers.New(a.gallery, a.source)
	router := setupRouter(h)
	startup.LogHTTPRoutes(router)

	loggedHandler := middleware.Logger(middleware.DefaultLoggingConfig())(router)
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(loggedHandler)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go handleShutdown(srv, a, shutdownDone)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	return nil
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET", "HEAD")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET", "HEAD")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")
	r.Handle("/metrics", h.MetricsHandler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Gallery
	api.HandleFunc("/gallery", h.GetGallery).Methods("GET")
	api.HandleFunc("/gallery/changes", h.GetChanges).Methods("GET")
	api.HandleFunc("/gallery/open", h.OpenSelection).Methods("POST")
	api.HandleFunc("/gallery/refresh", h.Refresh).Methods("POST")
	api.HandleFunc("/folder/last", h.GetLastFolder).Methods("GET")

	// Images
	api.HandleFunc("/thumbnail/{id}", h.GetThumbnail).Methods("GET", "HEAD")
	api.HandleFunc("/image/{id}", h.GetImage).Methods("GET", "HEAD")

	api.HandleFunc("/stats", h.GetStats).Methods("GET")

	return r
}

func handleShutdown(srv *http.Server, a *app, done chan<- struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	signal.Stop(sigChan)

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping thumbnail pipeline")
	a.gallery.Close()
	startup.LogShutdownStepComplete("Thumbnail pipeline stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Flushing thumbnail cache")
	a.cache.Flush()
	startup.LogShutdownStepComplete("Thumbnail cache flushed")

	startup.LogShutdownComplete()
}
