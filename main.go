package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	alertapp "classroom-sentinel/internal/alerts/application"
	alerts "classroom-sentinel/internal/alerts/domain"
	alertrepo "classroom-sentinel/internal/alerts/infrastructure/postgres"
	alerthttp "classroom-sentinel/internal/alerts/interfaces/http"
	alertnotify "classroom-sentinel/internal/alerts/notify"
	"classroom-sentinel/internal/audit"
	"classroom-sentinel/internal/auth"
	ingesthttp "classroom-sentinel/internal/ingest/interfaces/http"
	"classroom-sentinel/internal/observability/metrics"
	"classroom-sentinel/internal/reports"
	roomrepo "classroom-sentinel/internal/rooms/infrastructure/postgres"
	roomhttp "classroom-sentinel/internal/rooms/interfaces/http"
	"classroom-sentinel/internal/snapshots"
	"classroom-sentinel/internal/vision"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	roomRepo := roomrepo.NewRoomRepository(db)
	alertRepo := alertrepo.NewAlertRepository(db)

	ruleConfig, err := alerts.LoadConfigFile(cfg.RulesConfigPath)
	if err != nil {
		logger.Fatalf("rules config error: %v", err)
	}

	snapshotStore, err := snapshots.NewStore(cfg.SnapshotDir)
	if err != nil {
		logger.Fatalf("snapshot store error: %v", err)
	}

	broker := alerthttp.NewSSEBroker()
	notifiers := []alertapp.AlertNotifier{broker}

	var channels []alertnotify.Channel
	if cfg.WebhookURL != "" {
		channel, err := alertnotify.NewWebhookChannel(cfg.WebhookURL)
		if err != nil {
			logger.Fatalf("webhook channel error: %v", err)
		}
		channels = append(channels, channel)
	}
	if len(cfg.ShoutrrrURLs) > 0 {
		channel, err := alertnotify.NewShoutrrrChannel(cfg.ShoutrrrURLs...)
		if err != nil {
			logger.Fatalf("shoutrrr channel error: %v", err)
		}
		channels = append(channels, channel)
	}

	serviceOpts := []alertapp.ServiceOption{
		alertapp.WithSnapshots(snapshotStore),
		alertapp.WithNotifier(alertnotify.NewMultiNotifier(notifiers...)),
		alertapp.WithLogger(logger),
	}
	if len(channels) > 0 {
		sender, err := alertnotify.NewSender(nil, channels,
			alertnotify.WithBaseURL(cfg.PublicBaseURL),
			alertnotify.WithDedupeWindow(cfg.NotifyDedupeWindow),
		)
		if err != nil {
			logger.Fatalf("notification sender error: %v", err)
		}
		serviceOpts = append(serviceOpts, alertapp.WithSender(sender))
	}
	if cfg.VisionBaseURL != "" {
		var visionOpts []vision.Option
		if cfg.VisionToken != "" {
			visionOpts = append(visionOpts, vision.WithToken(cfg.VisionToken))
		}
		analyzer, err := vision.NewClient(cfg.VisionBaseURL, visionOpts...)
		if err != nil {
			logger.Fatalf("vision client error: %v", err)
		}
		serviceOpts = append(serviceOpts, alertapp.WithAnalyzer(analyzer))
	}

	service, err := alertapp.NewService(roomRepo, alertRepo, ruleConfig, serviceOpts...)
	if err != nil {
		logger.Fatalf("alert service error: %v", err)
	}
	service.StartSweep(cfg.SweepInterval)
	defer service.StopSweep()

	signalHandler, err := ingesthttp.NewHandler(service, logger)
	if err != nil {
		logger.Fatalf("signal handler error: %v", err)
	}
	roomHandler, err := roomhttp.NewHandler(roomRepo, roomhttp.WithAuditLogger(auditRepo))
	if err != nil {
		logger.Fatalf("room handler error: %v", err)
	}
	alertHandler, err := alerthttp.NewHandler(alertRepo)
	if err != nil {
		logger.Fatalf("alert handler error: %v", err)
	}
	snapshotHandler, err := snapshots.NewHandler(snapshotStore)
	if err != nil {
		logger.Fatalf("snapshot handler error: %v", err)
	}
	reportHandler, err := reports.NewHandler(alertRepo, logger, reports.WithAuditLogger(auditRepo))
	if err != nil {
		logger.Fatalf("report handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/api/v1/signals/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret), time.Duration(cfg.IngestSkewSeconds)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/signals/", ingestAuth.Wrap(signalHandler))
	mux.Handle("/api/v1/rooms", roomHandler)
	mux.Handle("/api/v1/rooms/", roomHandler)
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/alerts/stream", alerthttp.NewStreamHandler(broker))
	mux.Handle("/api/v1/snapshots/", snapshotHandler)
	mux.Handle("/api/v1/reports/", reportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL        string
	HTTPAddr           string
	RulesConfigPath    string
	SnapshotDir        string
	PublicBaseURL      string
	VisionBaseURL      string
	VisionToken        string
	WebhookURL         string
	ShoutrrrURLs       []string
	NotifyDedupeWindow time.Duration
	SweepInterval      time.Duration
	JWTSecret          string
	IngestSecret       string
	IngestSkewSeconds  int
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		RulesConfigPath:    getenvDefault("SENTINEL_RULES_CONFIG", ""),
		SnapshotDir:        getenvDefault("SNAPSHOT_DIR", "./snapshots"),
		PublicBaseURL:      getenvDefault("PUBLIC_BASE_URL", ""),
		VisionBaseURL:      getenvDefault("VISION_BASE_URL", ""),
		VisionToken:        getenvDefault("VISION_TOKEN", ""),
		WebhookURL:         getenvDefault("ALERT_WEBHOOK_URL", ""),
		ShoutrrrURLs:       splitList(getenvDefault("SHOUTRRR_URLS", "")),
		NotifyDedupeWindow: getenvDuration("ALERT_NOTIFY_DEDUP_WINDOW", 0),
		SweepInterval:      getenvDuration("DEBOUNCE_SWEEP_INTERVAL", 5*time.Second),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:       getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds:  getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working behind the logging wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
