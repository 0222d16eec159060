package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harborpeak/calbridge-mcp/cmd/mcp-server/auth"
	"github.com/harborpeak/calbridge-mcp/internal/registry"
	"github.com/harborpeak/calbridge-mcp/internal/upstream"
	"github.com/harborpeak/calbridge-mcp/pkg/mcp"
)

// AccountsHandler handles account and calendar management tools
type AccountsHandler struct {
	manager  *upstream.Manager
	registry *registry.Registry
}

// NewAccountsHandler creates a new accounts handler
func NewAccountsHandler(manager *upstream.Manager, reg *registry.Registry) *AccountsHandler {
	return &AccountsHandler{
		manager:  manager,
		registry: reg,
	}
}

// ListTools returns the list of account management tools
func (h *AccountsHandler) ListTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "list_accounts",
			Description: "List all connected calendar accounts. You can connect multiple accounts and switch between them in the same session.",
			InputType:   "object",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "account_status",
			Description: "Check authorization status of a calendar account",
			InputType:   "object",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"account_id": map[string]interface{}{
						"type":        "string",
						"description": "Account ID to check",
					},
				},
				"required": []string{"account_id"},
			},
		},
		{
			Name:        "list_calendars",
			Description: "List all calendars visible to a connected account",
			InputType:   "object",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"account_id": map[string]interface{}{
						"type":        "string",
						"description": "Account ID (defaults to the active account)",
					},
				},
			},
		},
	}
}

// HandleTool handles an account management tool call
func (h *AccountsHandler) HandleTool(ctx context.Context, call mcp.ToolCall) (mcp.ToolResult, error) {
	switch call.Name {
	case "list_accounts":
		return h.handleListAccounts()
	case "account_status":
		return h.handleAccountStatus(call)
	case "list_calendars":
		return h.handleListCalendars(ctx, call)
	default:
		return errorResult(fmt.Sprintf("Unknown tool: %s", call.Name)),
			fmt.Errorf("unknown tool: %s", call.Name)
	}
}

func (h *AccountsHandler) handleListAccounts() (mcp.ToolResult, error) {
	accounts := h.manager.ListAccounts()

	resultJSON, _ := json.MarshalIndent(accounts, "", "  ")
	return textResult(string(resultJSON)), nil
}

func (h *AccountsHandler) handleAccountStatus(call mcp.ToolCall) (mcp.ToolResult, error) {
	accountID, ok := call.Arguments["account_id"].(string)
	if !ok || accountID == "" {
		return errorResult("Error: account_id is required"), fmt.Errorf("account_id is required")
	}

	status := "not_authorized"
	if h.manager.HasTokens(accountID) {
		status = "authorized"
	}

	result := map[string]interface{}{
		"account_id": accountID,
		"status":     status,
		"active":     h.manager.GetAccountMode() == accountID,
	}

	resultJSON, _ := json.MarshalIndent(result, "", "  ")
	return textResult(string(resultJSON)), nil
}

func (h *AccountsHandler) handleListCalendars(ctx context.Context, call mcp.ToolCall) (mcp.ToolResult, error) {
	accountID := h.resolveAccount(ctx, call)

	calendars, err := h.registry.Calendars(ctx, accountID)
	if err != nil {
		return errorResult(fmt.Sprintf("Error: %v", err)), err
	}

	resultJSON, _ := json.MarshalIndent(calendars, "", "  ")
	return textResult(string(resultJSON)), nil
}

// resolveAccount picks the account for a call: an explicit argument wins,
// then the bearer token's bound account, then the active account.
func (h *AccountsHandler) resolveAccount(ctx context.Context, call mcp.ToolCall) string {
	if accountID, ok := call.Arguments["account_id"].(string); ok && accountID != "" {
		return accountID
	}
	if authCtx := auth.FromContext(ctx); authCtx != nil && authCtx.AccountID != "" {
		return authCtx.AccountID
	}
	return h.manager.GetAccountMode()
}

func textResult(text string) mcp.ToolResult {
	return mcp.ToolResult{
		Content: []mcp.ContentBlock{
			{Type: "text", Text: text},
		},
	}
}

func errorResult(text string) mcp.ToolResult {
	return mcp.ToolResult{
		Content: []mcp.ContentBlock{
			{Type: "text", Text: text},
		},
		IsError: true,
	}
}
