package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/neilberkman/rentcheck/internal/core/analysis"
	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/models"
	"github.com/neilberkman/rentcheck/internal/core/report"
)

// DraftStore persists the pending draft so the CLI and the MCP server share it.
type DraftStore interface {
	SaveDraft(data models.ExtractedData) error
	SaveDraftChatID(chatID string) error
	ClearDraft() error
}

// Deps is what the tools operate on.
type Deps struct {
	Orchestrator   *analysis.Orchestrator
	Drafts         DraftStore
	ReportTemplate string
	Version        string
}

// ExtractListingArgs defines arguments for the extract_listing tool
type ExtractListingArgs struct {
	Text string `json:"text" jsonschema:"description=Raw text of the rental listing,required"`
}

// UpdateDraftArgs defines arguments for the update_draft tool
type UpdateDraftArgs struct {
	Field       string `json:"field,omitempty" jsonschema:"description=Dotted field path such as address or price_details.cleaning_fee"`
	Value       any    `json:"value,omitempty" jsonschema:"description=New value; null clears the field"`
	AddImage    string `json:"add_image,omitempty" jsonschema:"description=Image URL to attach"`
	RemoveImage string `json:"remove_image,omitempty" jsonschema:"description=Image URL to remove"`
}

// AnalysisArgs identifies one analysis
type AnalysisArgs struct {
	AnalysisID string `json:"analysis_id" jsonschema:"description=Analysis id returned by submit_analysis,required"`
	Refresh    bool   `json:"refresh,omitempty" jsonschema:"description=Check the service for a newer status first"`
}

// ListHistoryArgs defines arguments for the list_history tool
type ListHistoryArgs struct {
	Limit   int    `json:"limit,omitempty" jsonschema:"description=Max analyses to return (default: 20)"`
	Status  string `json:"status,omitempty" jsonschema:"description=Only analyses in this status"`
	Refresh bool   `json:"refresh,omitempty" jsonschema:"description=Merge in the service's history first"`
}

// ChatArgs defines arguments for the ask_about_report tool
type ChatArgs struct {
	AnalysisID string `json:"analysis_id" jsonschema:"description=Completed analysis to ask about,required"`
	Message    string `json:"message" jsonschema:"description=Question about the report,required"`
}

// AnalysisSummary represents an analysis in the history list
type AnalysisSummary struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CreatedAt         string `json:"created_at,omitempty"`
	Address           string `json:"address,omitempty"`
	AuthenticityScore *int   `json:"authenticity_score,omitempty"`
	QualityScore      *int   `json:"quality_score,omitempty"`
	ErrorDetail       string `json:"error_detail,omitempty"`
}

type handler = func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// NewServer registers the rental check tools.
func NewServer(deps Deps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer("RentCheck", version)

	s.AddTool(mcp.NewTool("extract_listing",
		mcp.WithDescription("Extract structured details (address, price, host, images...) from the raw text of a rental listing. The result becomes the pending draft."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Raw text of the rental listing")),
	), makeExtractHandler(deps))

	s.AddTool(mcp.NewTool("update_draft",
		mcp.WithDescription("Edit the pending draft before submitting: set a field by dotted path, or attach/remove an image URL."),
		mcp.WithString("field", mcp.Description("Dotted field path such as address or price_details.cleaning_fee")),
		mcp.WithString("value", mcp.Description("New value; empty clears the field")),
		mcp.WithString("add_image", mcp.Description("Image URL to attach")),
		mcp.WithString("remove_image", mcp.Description("Image URL to remove")),
	), makeUpdateDraftHandler(deps))

	s.AddTool(mcp.NewTool("submit_analysis",
		mcp.WithDescription("Submit the pending draft for a fraud check. Returns the analysis id; poll it with get_analysis."),
	), makeSubmitHandler(deps))

	s.AddTool(mcp.NewTool("get_analysis",
		mcp.WithDescription("Get the status of an analysis, and its report once completed."),
		mcp.WithString("analysis_id", mcp.Required(), mcp.Description("Analysis id")),
		mcp.WithBoolean("refresh", mcp.Description("Check the service for a newer status first (default: true)")),
	), makeGetAnalysisHandler(deps))

	s.AddTool(mcp.NewTool("list_history",
		mcp.WithDescription("List past analyses of this session, most recent first."),
		mcp.WithNumber("limit", mcp.Description("Max analyses to return (default: 20)")),
		mcp.WithString("status", mcp.Description("Only analyses in this status: pending, in_progress, completed, failed")),
		mcp.WithBoolean("refresh", mcp.Description("Merge in the service's history first")),
	), makeListHistoryHandler(deps))

	s.AddTool(mcp.NewTool("ask_about_report",
		mcp.WithDescription("Ask a follow-up question about a completed report."),
		mcp.WithString("analysis_id", mcp.Required(), mcp.Description("Completed analysis to ask about")),
		mcp.WithString("message", mcp.Required(), mcp.Description("Question about the report")),
	), makeChatHandler(deps))

	return s
}

// StartServer serves the tools over stdio until the client disconnects.
func StartServer(deps Deps) error {
	return server.ServeStdio(NewServer(deps))
}

func decodeArgs(request mcp.CallToolRequest, dst any) error {
	argsBytes, _ := json.Marshal(request.Params.Arguments)
	if err := json.Unmarshal(argsBytes, dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func saveDraft(deps Deps) error {
	if deps.Drafts == nil {
		return nil
	}
	draft := deps.Orchestrator.Draft()
	if draft == nil {
		return deps.Drafts.ClearDraft()
	}
	if err := deps.Drafts.SaveDraft(*draft); err != nil {
		return err
	}
	return deps.Drafts.SaveDraftChatID(deps.Orchestrator.DraftChatID())
}

func makeExtractHandler(deps Deps) handler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ExtractListingArgs
		if err := decodeArgs(request, &args); err != nil {
			return toolError(err), nil
		}
		data, err := deps.Orchestrator.Extract(ctx, args.Text)
		if err != nil {
			return toolError(err), nil
		}
		if err := saveDraft(deps); err != nil {
			return toolError(err), nil
		}
		return jsonResult(map[string]any{
			"draft":   data,
			"missing": data.MissingEssentials(),
		})
	}
}

func makeUpdateDraftHandler(deps Deps) handler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args UpdateDraftArgs
		if err := decodeArgs(request, &args); err != nil {
			return toolError(err), nil
		}
		o := deps.Orchestrator
		if args.Field == "" && args.AddImage == "" && args.RemoveImage == "" {
			return toolError(apperr.Validation("update_draft", "nothing to change")), nil
		}
		if args.Field != "" {
			if err := o.UpdateDraft(args.Field, args.Value); err != nil {
				return toolError(err), nil
			}
		}
		if args.RemoveImage != "" {
			if err := o.RemoveImageURL(args.RemoveImage); err != nil {
				return toolError(err), nil
			}
		}
		if args.AddImage != "" {
			if err := o.AddImageURL(args.AddImage); err != nil {
				return toolError(err), nil
			}
		}
		if err := saveDraft(deps); err != nil {
			return toolError(err), nil
		}
		return jsonResult(map[string]any{"draft": o.Draft()})
	}
}

func makeSubmitHandler(deps Deps) handler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		a, err := deps.Orchestrator.Submit(ctx)
		if err != nil {
			return toolError(err), nil
		}
		if err := saveDraft(deps); err != nil {
			return toolError(err), nil
		}
		return jsonResult(map[string]any{
			"analysis_id":       a.ID,
			"status":            a.Status,
			"incomplete_fields": a.IncompleteFields,
		})
	}
}

func makeGetAnalysisHandler(deps Deps) handler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := AnalysisArgs{Refresh: true}
		if err := decodeArgs(request, &args); err != nil {
			return toolError(err), nil
		}
		o := deps.Orchestrator

		a, known := o.Get(args.AnalysisID)
		switch {
		case !known:
			opened, err := o.Open(ctx, args.AnalysisID)
			if err != nil {
				return toolError(err), nil
			}
			a = opened
		case args.Refresh && a.Status.IsActive():
			// A failed check is recorded on the analysis itself
			if polled, _ := o.PollOnce(ctx, args.AnalysisID); polled != nil {
				a = polled
			}
		}

		text, err := report.Render(*a, deps.ReportTemplate)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

func makeListHistoryHandler(deps Deps) handler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListHistoryArgs
		if err := decodeArgs(request, &args); err != nil {
			return toolError(err), nil
		}
		limit := args.Limit
		if limit <= 0 {
			limit = 20
		}
		var status models.Status
		if args.Status != "" {
			st, ok := models.ParseStatus(args.Status)
			if !ok {
				return toolError(apperr.Validation("list_history", "unknown status %q", args.Status)), nil
			}
			status = st
		}

		list := deps.Orchestrator.History()
		if args.Refresh {
			// On failure the cached list is still returned
			list, _ = deps.Orchestrator.LoadHistory(ctx)
		}

		analyses := []AnalysisSummary{}
		for _, a := range list {
			if status != "" && a.Status != status {
				continue
			}
			analyses = append(analyses, summarize(a))
			if len(analyses) >= limit {
				break
			}
		}
		return jsonResult(map[string]any{"analyses": analyses})
	}
}

func summarize(a models.Analysis) AnalysisSummary {
	s := AnalysisSummary{
		ID:          a.ID,
		Status:      string(a.Status),
		Address:     a.InputData.Address,
		ErrorDetail: a.ErrorDetail,
	}
	if !a.CreatedAt.IsZero() {
		s.CreatedAt = a.CreatedAt.Format("2006-01-02 15:04:05")
	}
	if r := a.FinalReport; r != nil {
		auth, quality := r.AuthenticityScore, r.QualityScore
		s.AuthenticityScore = &auth
		s.QualityScore = &quality
	}
	return s
}

func makeChatHandler(deps Deps) handler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ChatArgs
		if err := decodeArgs(request, &args); err != nil {
			return toolError(err), nil
		}
		if strings.TrimSpace(args.AnalysisID) == "" {
			return toolError(apperr.Validation("ask_about_report", "analysis_id is required")), nil
		}
		o := deps.Orchestrator
		if _, err := o.Open(ctx, args.AnalysisID); err != nil {
			return toolError(err), nil
		}
		reply, err := o.SendChatMessage(ctx, args.AnalysisID, "", args.Message)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(reply.Content), nil
	}
}
