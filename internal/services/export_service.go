package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/internal/repositories"
	"github.com/xuri/excelize/v2"
)

// ExportFormat is an export file type
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
	ExportJSON ExportFormat = "json"
)

// ParseExportFormat accepts csv, xlsx (or excel) and json
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(s) {
	case "csv":
		return ExportCSV, nil
	case "xlsx", "excel":
		return ExportXLSX, nil
	case "json":
		return ExportJSON, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f ExportFormat) ContentType() string {
	switch f {
	case ExportCSV:
		return "text/csv"
	case ExportXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

var exportHeader = []string{
	"username", "name", "location", "bio", "followers", "following", "public_repos", "public_gists",
	"companies", "main_languages", "total_stars", "total_forks", "contact_email", "profile_url",
	"heuristic_score", "model_probability", "annotation", "last_checked_at",
}

const exportPageSize = 500

// ExportService writes the candidate table in a downloadable format
type ExportService struct {
	repo *repositories.CandidateRepository
}

func NewExportService(repo *repositories.CandidateRepository) *ExportService {
	return &ExportService{repo: repo}
}

// Export writes every stored candidate to w in format
func (s *ExportService) Export(ctx context.Context, format ExportFormat, w io.Writer) error {
	candidates, err := s.all(ctx)
	if err != nil {
		return err
	}

	switch format {
	case ExportCSV:
		return writeCSV(w, candidates)
	case ExportXLSX:
		return writeXLSX(w, candidates)
	case ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(candidates)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

func (s *ExportService) all(ctx context.Context) ([]*models.Candidate, error) {
	var out []*models.Candidate
	for offset := 0; ; offset += exportPageSize {
		page, err := s.repo.ListAll(ctx, offset, exportPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to load candidates for export: %w", err)
		}
		out = append(out, page...)
		if len(page) < exportPageSize {
			return out, nil
		}
	}
}

func exportRow(c *models.Candidate) []string {
	name := ""
	if c.Name != nil {
		name = *c.Name
	}
	email := ""
	if c.ContactEmail != nil {
		email = *c.ContactEmail
	}
	prob := ""
	if c.ModelProbability != nil {
		prob = strconv.FormatFloat(*c.ModelProbability, 'f', 3, 64)
	}
	annotation := ""
	if c.Annotation != nil {
		annotation = strconv.Itoa(int(*c.Annotation))
	}
	return []string{
		c.ID, name, c.LocationText(), c.BioText(),
		strconv.Itoa(c.FollowerCount), strconv.Itoa(c.FollowingCount),
		strconv.Itoa(c.PublicRepoCount), strconv.Itoa(c.PublicGistCount),
		strings.Join(c.Companies, ";"), strings.Join(c.MainLanguages, ";"),
		strconv.Itoa(c.TotalStars), strconv.Itoa(c.TotalForks),
		email, c.ProfileURL, strconv.Itoa(c.HeuristicScore), prob, annotation,
		c.LastCheckedAt.Format("2006-01-02 15:04:05"),
	}
}

func writeCSV(w io.Writer, candidates []*models.Candidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, c := range candidates {
		if err := cw.Write(exportRow(c)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, candidates []*models.Candidate) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Candidates"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	write := func(rowNum int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = v
		}
		return f.SetSheetRow(sheet, cell, &row)
	}

	if err := write(1, exportHeader); err != nil {
		return err
	}
	for i, c := range candidates {
		if err := write(i+2, exportRow(c)); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}
