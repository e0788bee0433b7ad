package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xylemhq/xylem/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import chat transcripts",
	Long: `Import chat transcript exports into the episodic log and the
semantic index. Every message becomes an episode; substantive user
messages also become searchable documents.

The path can be a single JSON/JSONL file or a directory of them.

Examples:
  xylem import ~/Downloads/transcripts.jsonl
  xylem import ~/Downloads/chat-export/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error { return runImport(args[0]) },
}

var exportCmd = &cobra.Command{
	Use:   "export [format] [output]",
	Short: "Export facts and memories",
	Long: `Export all canonical facts and semantic documents to a file.

Supported formats:
  json      - JSON format (default)
  markdown  - Markdown format

If no output path is given, a default filename is generated.

Examples:
  xylem export
  xylem export json memory.json
  xylem export markdown memory.md`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, output := "json", ""
		if len(args) >= 1 {
			format = args[0]
		}
		if len(args) >= 2 {
			output = args[1]
		}
		return runExport(format, output)
	},
}

func runImport(path string) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access path: %w", err)
	}

	imp := importer.NewTranscriptImporter(s)

	var result *importer.ImportResult
	if info.IsDir() {
		fmt.Printf("Importing transcripts from directory: %s\n", path)
		result, err = imp.ImportFromDirectory(ctx, path)
	} else {
		fmt.Printf("Importing transcripts from file: %s\n", path)
		result, err = imp.ImportFromFile(ctx, path)
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("\n✅ Import Complete!\n")
	fmt.Printf("   Transcripts processed: %d\n", result.TranscriptsProcessed)
	fmt.Printf("   Episodes created: %d\n", result.EpisodesCreated)
	fmt.Printf("   Documents created: %d\n", result.DocumentsCreated)
	fmt.Printf("   Duration: %s\n", result.Duration.Round(time.Millisecond))

	if len(result.Errors) > 0 {
		fmt.Printf("\n⚠️  Errors (%d):\n", len(result.Errors))
		for i, e := range result.Errors {
			if i >= 5 {
				fmt.Printf("   ... and %d more\n", len(result.Errors)-5)
				break
			}
			fmt.Printf("   - %s\n", e)
		}
	}

	return nil
}

// runExport exports facts and documents to a file
func runExport(format, output string) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()

	facts, err := s.ListFacts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list facts: %w", err)
	}
	docs, err := s.ListDocuments(ctx, 100000)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(facts) == 0 && len(docs) == 0 {
		fmt.Println("Nothing to export.")
		return nil
	}

	var data []byte

	switch format {
	case "json":
		type exportDocument struct {
			ID        string    `json:"id"`
			Content   string    `json:"content"`
			Key       string    `json:"key,omitempty"`
			Tags      []string  `json:"tags,omitempty"`
			CreatedAt time.Time `json:"created_at"`
		}
		exportDocs := make([]exportDocument, len(docs))
		for i, d := range docs {
			exportDocs[i] = exportDocument{
				ID:        d.ID,
				Content:   d.Content,
				Key:       d.Key,
				Tags:      d.Tags,
				CreatedAt: d.CreatedAt,
			}
		}
		data, err = json.MarshalIndent(map[string]interface{}{
			"facts":     facts,
			"documents": exportDocs,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}

	case "markdown", "md":
		var sb strings.Builder
		sb.WriteString("# Xylem Memory Export\n\n")
		sb.WriteString(fmt.Sprintf("Exported: %s\n\n", time.Now().Format("2006-01-02 15:04:05")))

		sb.WriteString(fmt.Sprintf("## Canonical Facts (%d)\n\n", len(facts)))
		for _, f := range facts {
			sb.WriteString(fmt.Sprintf("- **%s**: %s (confidence %.0f%%, updated %s)\n",
				f.Key, displayValue(f.Value, f.Sensitive), f.Confidence*100,
				f.UpdatedAt.Format("2006-01-02")))
		}

		sb.WriteString(fmt.Sprintf("\n## Semantic Documents (%d)\n\n", len(docs)))
		for _, d := range docs {
			title := d.Content
			if idx := strings.Index(title, "\n"); idx > 0 {
				title = title[:idx]
			}
			if len(title) > 80 {
				title = title[:80] + "..."
			}
			sb.WriteString(fmt.Sprintf("### %s\n\n", title))
			sb.WriteString(fmt.Sprintf("*%s*", d.CreatedAt.Format("2006-01-02 15:04")))
			if d.Key != "" {
				sb.WriteString(fmt.Sprintf(" | Key: %s", d.Key))
			}
			if len(d.Tags) > 0 {
				sb.WriteString(fmt.Sprintf(" | Tags: %s", strings.Join(d.Tags, ", ")))
			}
			sb.WriteString("\n\n")
			sb.WriteString(d.Content)
			sb.WriteString("\n\n---\n\n")
		}
		data = []byte(sb.String())

	default:
		return fmt.Errorf("unknown format: %s (supported: json, markdown)", format)
	}

	if output == "" {
		timestamp := time.Now().Format("2006-01-02")
		ext := format
		if format == "markdown" {
			ext = "md"
		}
		output = fmt.Sprintf("xylem-export-%s.%s", timestamp, ext)
	}

	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	fmt.Printf("✅ Exported %d fact(s) and %d document(s) to %s\n", len(facts), len(docs), output)
	return nil
}
