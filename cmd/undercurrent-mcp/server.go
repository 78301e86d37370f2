package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ameliahart/undercurrent"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// serverInstructions is returned in the MCP initialize response so
// clients know when to reach for these tools.
const serverInstructions = `Undercurrent is a private journal with an insight engine. Use these ` +
	`tools to: append journal entries on the owner's behalf (journal_append), ` +
	`read back recent entries (journal_recent), list the retained insight ` +
	`themes (themes_list), trigger a theme extraction run (insights_run), or ` +
	`check whether a run is currently allowed (insights_status). Every tool ` +
	`takes a "user" argument naming the journal owner.`

func newServer(engine *undercurrent.Engine) *server.MCPServer {
	srv := server.NewMCPServer(
		"undercurrent",
		"0.1.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(serverInstructions),
	)

	srv.AddTool(
		mcp.NewTool("journal_append",
			mcp.WithDescription("Append a journal entry for a user. Body text is stored verbatim; the entry is dated today unless a date is given."),
			mcp.WithTitleAnnotation("Append Journal Entry"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(false),
			mcp.WithOpenWorldHintAnnotation(false),
			mcp.WithString("user",
				mcp.Required(),
				mcp.Description("Journal owner's registered name"),
			),
			mcp.WithString("body",
				mcp.Required(),
				mcp.Description("Entry text"),
			),
			mcp.WithString("title",
				mcp.Description("Optional entry title"),
			),
			mcp.WithString("date",
				mcp.Description("Entry date as YYYY-MM-DD (default: today)"),
			),
		),
		handleJournalAppend(engine),
	)

	srv.AddTool(
		mcp.NewTool("journal_recent",
			mcp.WithDescription("List a user's most recent journal entries, newest first."),
			mcp.WithTitleAnnotation("Recent Entries"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
			mcp.WithString("user",
				mcp.Required(),
				mcp.Description("Journal owner's registered name"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Max entries to return (default: 10)"),
			),
		),
		handleJournalRecent(engine),
	)

	srv.AddTool(
		mcp.NewTool("themes_list",
			mcp.WithDescription("List a user's retained insight themes, strongest first. Each theme carries a summary, supporting quotes, and a prominence score."),
			mcp.WithTitleAnnotation("List Themes"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
			mcp.WithString("user",
				mcp.Required(),
				mcp.Description("Journal owner's registered name"),
			),
		),
		handleThemesList(engine),
	)

	srv.AddTool(
		mcp.NewTool("insights_run",
			mcp.WithDescription("Run theme extraction over a user's recent entries and merge the results into the retained set. Runs at most once per calendar week unless force is set; refuses when the user has too few entries."),
			mcp.WithTitleAnnotation("Run Insights"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(false),
			mcp.WithOpenWorldHintAnnotation(true),
			mcp.WithString("user",
				mcp.Required(),
				mcp.Description("Journal owner's registered name"),
			),
			mcp.WithBoolean("force",
				mcp.Description("Bypass the weekly gate (the minimum-entry gate still holds)"),
			),
		),
		handleInsightsRun(engine),
	)

	srv.AddTool(
		mcp.NewTool("insights_status",
			mcp.WithDescription("Check whether an insight run is currently allowed for a user, and when the last run happened."),
			mcp.WithTitleAnnotation("Insight Status"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
			mcp.WithString("user",
				mcp.Required(),
				mcp.Description("Journal owner's registered name"),
			),
		),
		handleInsightsStatus(engine),
	)

	return srv
}

func resolveUserArg(engine *undercurrent.Engine, req mcp.CallToolRequest) (*undercurrent.User, *mcp.CallToolResult) {
	name, _ := req.GetArguments()["user"].(string)
	if strings.TrimSpace(name) == "" {
		return nil, mcp.NewToolResultError("user is required")
	}
	user, err := engine.ResolveUser(name)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("unknown user %q", name))
	}
	return user, nil
}

func handleJournalAppend(engine *undercurrent.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, errResult := resolveUserArg(engine, req)
		if errResult != nil {
			return errResult, nil
		}

		body, _ := req.GetArguments()["body"].(string)
		title, _ := req.GetArguments()["title"].(string)
		dateStr, _ := req.GetArguments()["date"].(string)

		var date time.Time
		if dateStr != "" {
			var err error
			date, err = time.Parse("2006-01-02", dateStr)
			if err != nil {
				return mcp.NewToolResultError("invalid date, want YYYY-MM-DD"), nil
			}
		}

		entry, err := engine.AddEntry(user.ID, title, body, date)
		if err != nil {
			return mcp.NewToolResultError("Failed to save entry: " + err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Entry #%d saved for %s (%s)",
			entry.ID, user.Name, entry.EntryDate.Format("2006-01-02"))), nil
	}
}

func handleJournalRecent(engine *undercurrent.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, errResult := resolveUserArg(engine, req)
		if errResult != nil {
			return errResult, nil
		}
		limit := intArg(req, "limit", 10)

		entries, err := engine.ListEntries(user.ID, limit, 0)
		if err != nil {
			return mcp.NewToolResultError("Failed to list entries: " + err.Error()), nil
		}
		if len(entries) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No entries yet for %s.", user.Name)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d most recent entries for %s:\n\n", len(entries), user.Name)
		for _, e := range entries {
			title := e.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(&b, "#%d [%s] %s\n    %s\n\n",
				e.ID, e.EntryDate.Format("2006-01-02"), title, truncate(e.Body, 200))
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func handleThemesList(engine *undercurrent.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, errResult := resolveUserArg(engine, req)
		if errResult != nil {
			return errResult, nil
		}

		themes, err := engine.Themes(user.ID)
		if err != nil {
			return mcp.NewToolResultError("Failed to list themes: " + err.Error()), nil
		}
		if len(themes) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No themes yet for %s. Run insights_run once enough entries exist.", user.Name)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d retained themes for %s:\n\n", len(themes), user.Name)
		for i, th := range themes {
			fmt.Fprintf(&b, "[%d] %s (prominence %d)\n    %s\n", i+1, th.Title, th.Prominence, th.Summary)
			for _, q := range th.Quotes {
				fmt.Fprintf(&b, "    > %s\n", truncate(q, 150))
			}
			fmt.Fprintf(&b, "    since %s, last seen %s\n\n",
				th.CreatedAt.Format("2006-01-02"), th.LastUpdated.Format("2006-01-02"))
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func handleInsightsRun(engine *undercurrent.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, errResult := resolveUserArg(engine, req)
		if errResult != nil {
			return errResult, nil
		}
		force := boolArg(req, "force", false)

		report, err := engine.GenerateInsights(ctx, user.ID, force)
		switch {
		case err == nil:
			return mcp.NewToolResultText(fmt.Sprintf(
				"Insight run complete for %s: updated=%d created=%d skipped=%d failed=%d",
				user.Name, report.Updated, report.Created, report.Skipped, report.Failed)), nil
		case errors.Is(err, undercurrent.ErrAlreadyRanThisWeek):
			return mcp.NewToolResultError("Insights already ran this week. Pass force=true to rerun."), nil
		case errors.Is(err, undercurrent.ErrInsufficientData):
			return mcp.NewToolResultError(err.Error()), nil
		case errors.Is(err, undercurrent.ErrRunInProgress):
			return mcp.NewToolResultError("An insight run is already in progress for this user."), nil
		default:
			return mcp.NewToolResultError("Insight run failed: " + err.Error()), nil
		}
	}
}

func handleInsightsStatus(engine *undercurrent.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, errResult := resolveUserArg(engine, req)
		if errResult != nil {
			return errResult, nil
		}

		status, err := engine.InsightStatus(user.ID)
		if err != nil {
			return mcp.NewToolResultError("Failed to get status: " + err.Error()), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Insight status for %s:\n", user.Name)
		fmt.Fprintf(&b, "- Entries: %d (minimum %d)\n", status.EntryCount, status.MinEntries)
		if status.LastRun != nil {
			fmt.Fprintf(&b, "- Last run: %s (updated %d, created %d)\n",
				status.LastRun.RanAt.Format("2006-01-02 15:04"), status.LastRun.Updated, status.LastRun.Created)
		} else {
			b.WriteString("- Last run: never\n")
		}
		if status.Eligible {
			b.WriteString("- Eligible: yes")
		} else {
			fmt.Fprintf(&b, "- Eligible: no (%s)", status.Reason)
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
