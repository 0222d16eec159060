package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/harborpeak/calbridge-mcp/cmd/mcp-server/auth"
	"github.com/harborpeak/calbridge-mcp/cmd/mcp-server/handlers"
	oauthserver "github.com/harborpeak/calbridge-mcp/cmd/mcp-server/oauth"
	"github.com/harborpeak/calbridge-mcp/internal/broker"
	"github.com/harborpeak/calbridge-mcp/internal/cache"
	"github.com/harborpeak/calbridge-mcp/internal/config"
	"github.com/harborpeak/calbridge-mcp/internal/registry"
	"github.com/harborpeak/calbridge-mcp/internal/storage"
	"github.com/harborpeak/calbridge-mcp/internal/upstream"
	"github.com/harborpeak/calbridge-mcp/pkg/mcp"
)

const ServiceVersion = "v1.0.0"

func init() {
	// Load environment variables FIRST from project root or current dir
	config.LoadEnv("../../.env")
}

// brokerVerifier adapts the broker's token verification to the middleware.
type brokerVerifier struct {
	broker *broker.Broker
}

func (v *brokerVerifier) Verify(token string) (*auth.AuthContext, error) {
	info, err := v.broker.VerifyAccessToken(token)
	if err != nil {
		return nil, err
	}
	return &auth.AuthContext{
		Token:     info.Token,
		ClientID:  info.ClientID,
		AccountID: info.AccountID,
		ExpiresAt: info.ExpiresAt,
		Scopes:    info.Scopes,
	}, nil
}

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	clientRecords, err := storage.NewRecordStoreFromEnv("clients")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize client storage: %v", err))
	}
	defer clientRecords.Close()

	tokenRecords, err := storage.NewRecordStoreFromEnv("upstream_tokens")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize token storage: %v", err))
	}
	defer tokenRecords.Close()

	provider := upstream.NewProvider(upstream.ProviderConfig{
		ClientID:     cfg.Upstream.ClientID,
		ClientSecret: cfg.Upstream.ClientSecret,
		AuthURL:      cfg.Upstream.AuthURL,
		TokenURL:     cfg.Upstream.TokenURL,
		APIURL:       cfg.Upstream.APIURL,
		RedirectURL:  cfg.Server.BaseURL + "/oauth/callback",
		Scopes:       cfg.Upstream.Scopes,
	})

	manager, err := upstream.NewManager(tokenRecords, provider)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize token manager: %v", err))
	}

	clients, err := broker.NewClientStore(clientRecords)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize client store: %v", err))
	}

	b := broker.New(broker.Config{
		AccessTokenTTL: cfg.Broker.AccessTokenTTL.Std(),
		AuthCodeTTL:    cfg.Broker.AuthCodeTTL.Std(),
		SessionTTL:     cfg.Broker.SessionTTL.Std(),
		SweepInterval:  cfg.Broker.SweepInterval.Std(),
	}, clients, provider, manager)
	defer b.Stop()

	calendarClient := upstream.NewCalendarClient(cfg.Upstream.APIURL)
	calendarRegistry := registry.New(manager, calendarClient, cache.NewFromEnv("calbridge"))

	accountsHandler := handlers.NewAccountsHandler(manager, calendarRegistry)

	server := mcp.NewServer("calbridge-mcp-server", ServiceVersion)
	for _, tool := range accountsHandler.ListTools() {
		server.RegisterTool(tool)
	}

	handler := accountsHandler.HandleTool

	mux := http.NewServeMux()

	// OAuth broker endpoints (public)
	oauthSrv := oauthserver.NewServer(cfg.Server.BaseURL, b)
	oauthSrv.Routes(mux)

	// MCP endpoints behind broker-issued bearer tokens
	protected := http.NewServeMux()
	mcp.NewHTTPServer(server, handler).Routes(protected)
	mcp.NewSSEServer(server, handler).Routes(protected)
	guarded := auth.RequireAuth(&brokerVerifier{broker: b}).Handler(protected)
	for _, path := range []string{"/tools", "/tools/call", "/sse", "/message"} {
		mux.Handle(path, guarded)
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":             "ok",
			"version":            ServiceVersion,
			"registered_clients": clients.Count(),
			"pending_sessions":   b.PendingCount(),
			"accounts":           len(manager.ListAccounts()),
		})
	})

	fmt.Printf("CalBridge MCP Server %s listening on %s\n", ServiceVersion, cfg.Addr())
	fmt.Printf("OAuth issuer: %s\n", cfg.Server.BaseURL)

	if err := http.ListenAndServe(cfg.Addr(), corsMiddleware(mux)); err != nil {
		panic(fmt.Sprintf("Server failed: %v", err))
	}
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yaml"
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
