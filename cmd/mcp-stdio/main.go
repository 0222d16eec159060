package main

import (
	"fmt"
	"os"

	"github.com/harborpeak/calbridge-mcp/cmd/mcp-server/handlers"
	"github.com/harborpeak/calbridge-mcp/internal/cache"
	"github.com/harborpeak/calbridge-mcp/internal/config"
	"github.com/harborpeak/calbridge-mcp/internal/registry"
	"github.com/harborpeak/calbridge-mcp/internal/storage"
	"github.com/harborpeak/calbridge-mcp/internal/upstream"
	"github.com/harborpeak/calbridge-mcp/pkg/mcp"
)

// The stdio transport runs on the user's own machine and talks to a local
// MCP client over stdin/stdout, so it skips the broker and bearer tokens
// entirely and uses the stored upstream credentials directly.
func main() {
	config.LoadEnv("../../.env")

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	tokenRecords, err := storage.NewRecordStoreFromEnv("upstream_tokens")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize token storage: %v\n", err)
		os.Exit(1)
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
		fmt.Fprintf(os.Stderr, "Failed to initialize token manager: %v\n", err)
		os.Exit(1)
	}

	calendarClient := upstream.NewCalendarClient(cfg.Upstream.APIURL)
	calendarRegistry := registry.New(manager, calendarClient, cache.NewMemoryCache())

	accountsHandler := handlers.NewAccountsHandler(manager, calendarRegistry)

	server := mcp.NewServer("calbridge-mcp-stdio", "1.0.0")
	for _, tool := range accountsHandler.ListTools() {
		server.RegisterTool(tool)
	}

	if err := server.Start(accountsHandler.HandleTool); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
