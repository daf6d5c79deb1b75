package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/franksops/vmshift/store"
)

var jobsOutput string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the transfer journal",
	Long: `List every export and import recorded in the journal under --state-dir
(or state_dir in the config file), oldest first.

Examples:
  vmshift jobs --state-dir ~/.vmshift-state
  vmshift jobs -o json`,
	Args: cobra.NoArgs,
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().StringVarP(&jobsOutput, "output", "o", "table", "output format (table, json, yaml)")
}

func runJobs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StateDir == "" {
		return errors.New("no journal configured: pass --state-dir or set state_dir")
	}

	path := filepath.Join(cfg.StateDir, JournalFile)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no journal at %s", path)
	}
	journal, err := store.NewBoltStore(path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer journal.Close()

	jobs, err := journal.ListJobs()
	if err != nil {
		return err
	}
	return printJobs(cmd.OutOrStdout(), jobs, jobsOutput)
}

func printJobs(w io.Writer, jobs []*store.JobRecord, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	case "yaml", "yml":
		return yaml.NewEncoder(w).Encode(jobs)
	case "table", "":
	default:
		return fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", format)
	}

	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "No jobs recorded.")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "KIND", "JOB", "REMOTE", "STATE", "PROGRESS", "RESULT", "UPDATED"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, j := range jobs {
		result := j.Result
		if j.Error != "" {
			result = j.Error
		}
		table.Append([]string{
			shortID(j.ID),
			j.Kind,
			j.Descriptor,
			j.RemoteID,
			string(j.State),
			progress(j.BytesTransferred, j.TotalBytes),
			result,
			j.UpdatedAt.Format(time.RFC3339),
		})
	}
	table.Render()
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func progress(done, total int64) string {
	if total <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(done)/float64(total))
}
