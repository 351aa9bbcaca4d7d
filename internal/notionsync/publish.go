package notionsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/finance-report-agent/internal/artifact"
	"github.com/dvloznov/finance-report-agent/internal/domain"
	"github.com/dvloznov/finance-report-agent/internal/logger"
)

// Report is what gets published: the KPI report and the prose outputs.
type Report struct {
	Name        string
	KPIs        domain.KPIReport
	Summary     string
	Reflection  string
	GeneratedAt time.Time
}

// LoadReport assembles a Report from stored artifacts. The kpis and summary
// slots are required; reflection is optional.
func LoadReport(ctx context.Context, store artifact.Store, name string, now time.Time) (Report, error) {
	kpis, err := artifact.ReadJSON[domain.KPIReport](ctx, store, artifact.SlotKPIs)
	if err != nil {
		return Report{}, fmt.Errorf("LoadReport: %w", err)
	}

	summary, err := store.Read(ctx, artifact.SlotSummary)
	if err != nil {
		return Report{}, fmt.Errorf("LoadReport: %s: %w", artifact.SlotSummary, err)
	}

	reflection, err := store.Read(ctx, artifact.SlotReflection)
	if err != nil && !errors.Is(err, artifact.ErrMissingArtifact) {
		return Report{}, fmt.Errorf("LoadReport: %s: %w", artifact.SlotReflection, err)
	}

	return Report{
		Name:        name,
		KPIs:        kpis,
		Summary:     strings.TrimSpace(string(summary)),
		Reflection:  strings.TrimSpace(string(reflection)),
		GeneratedAt: now,
	}, nil
}

// Publish creates or updates the page titled report.Name in the database and
// returns its page ID. In dry-run mode nothing is written and the ID of the
// existing page (if any) is returned.
func Publish(ctx context.Context, notionClient NotionService, databaseID string, report Report, dryRun bool) (string, error) {
	log := logger.FromContext(ctx)

	if report.Name == "" {
		return "", fmt.Errorf("Publish: report name is required")
	}

	existing, err := findReportPage(ctx, notionClient, databaseID, report.Name)
	if err != nil {
		return "", err
	}

	props := ReportToNotionProperties(report)

	if dryRun {
		log.Info().
			Str("report", report.Name).
			Str("page_id", existing).
			Bool("exists", existing != "").
			Msg("[DRY RUN] Would publish report to Notion")
		return existing, nil
	}

	if existing != "" {
		if _, err := notionClient.UpdatePage(ctx, existing, props); err != nil {
			return "", fmt.Errorf("Publish: update %s: %w", existing, err)
		}
		log.Info().Str("report", report.Name).Str("page_id", existing).Msg("Updated Notion report page")
		return existing, nil
	}

	page, err := notionClient.CreatePage(ctx, databaseID, props)
	if err != nil {
		return "", fmt.Errorf("Publish: create: %w", err)
	}
	log.Info().Str("report", report.Name).Str("page_id", string(page.ID)).Msg("Created Notion report page")
	return string(page.ID), nil
}

// findReportPage returns the ID of the page titled name, or "".
func findReportPage(ctx context.Context, notionClient NotionService, databaseID, name string) (string, error) {
	var cursor notionapi.Cursor
	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter: notionapi.PropertyFilter{
				Property: PropReport,
				RichText: &notionapi.TextFilterCondition{Equals: name},
			},
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return "", fmt.Errorf("findReportPage: %w", err)
		}

		for _, page := range resp.Results {
			if extractReportName(page) == name {
				return string(page.ID), nil
			}
		}

		if !resp.HasMore {
			return "", nil
		}
		cursor = resp.NextCursor
	}
}
