package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sumanthpn07/lazyApply/internal/config"
	"github.com/sumanthpn07/lazyApply/internal/jobstore"
	"github.com/sumanthpn07/lazyApply/internal/server"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

func buildImportCommand(opts *rootOptions) *cobra.Command {
	var (
		file    string
		enqueue bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import job records from a YAML or JSON file",
		Long: `Upsert job records into the job store. The file holds either a list of
jobs or a document with a "jobs" list; JSON is accepted as well:

  - ref: acme-42
    target: greenhouse
    url: https://boards.greenhouse.io/acme/jobs/42
    title: Backend Engineer
    company: Acme`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := readJobs(file)
			if err != nil {
				return err
			}
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			store, err := jobstore.Open(cmd.Context(), cfg.Store.Driver, cfg.Store.DSN, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			refs, err := importJobs(cmd.Context(), store, jobs)
			if err != nil {
				return err
			}
			printLine(cmd.OutOrStdout(), pterm.Success.Sprintf("Imported %d job(s) from %s", len(refs), file))

			if !enqueue {
				return nil
			}
			return opts.withClient(cmd.Context(), func(ctx context.Context, c *server.Client) error {
				return enqueueRemote(ctx, cmd.OutOrStdout(), c, refs)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON file with job records")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue the imported jobs on the running daemon")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readJobs decodes a job list, bare or under a "jobs" key.
func readJobs(path string) ([]types.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read job file")
	}
	return decodeJobs(bytes.NewReader(data))
}

func decodeJobs(r io.Reader) ([]types.Job, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "parse job file")
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	var jobs []types.Job
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&jobs); err != nil {
			return nil, errors.Wrap(err, "parse job file")
		}
	case yaml.MappingNode:
		var wrapped struct {
			Jobs []types.Job `yaml:"jobs"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, errors.Wrap(err, "parse job file")
		}
		jobs = wrapped.Jobs
	default:
		return nil, errors.New("parse job file: expected a list of jobs")
	}
	return jobs, nil
}

// importJobs upserts jobs in order and returns their refs, without repeats.
func importJobs(ctx context.Context, store jobstore.Store, jobs []types.Job) ([]types.JobRef, error) {
	seen := make(map[types.JobRef]bool, len(jobs))
	refs := make([]types.JobRef, 0, len(jobs))
	for i, job := range jobs {
		job.Ref = types.JobRef(strings.TrimSpace(string(job.Ref)))
		if err := store.Upsert(ctx, job); err != nil {
			return refs, errors.Wrapf(err, "job #%d", i+1)
		}
		if !seen[job.Ref] {
			seen[job.Ref] = true
			refs = append(refs, job.Ref)
		}
	}
	return refs, nil
}

func buildJobsCommand(opts *rootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List job records and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := types.JobStatus(status)
			if st != "" && !st.Valid() {
				return errors.WithHint(errors.Newf("unknown status %q", status),
					"use queued, submitting, submitted, needs-input, failed or skipped")
			}
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			store, err := jobstore.Open(cmd.Context(), cfg.Store.Driver, cfg.Store.DSN, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			jobs, err := store.List(cmd.Context(), st)
			if err != nil {
				return err
			}
			return renderJobs(cmd.OutOrStdout(), jobs)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only jobs with this status")
	return cmd
}

func renderJobs(w io.Writer, jobs []types.Job) error {
	if len(jobs) == 0 {
		printLine(w, pterm.Info.Sprint("No jobs"))
		return nil
	}
	rows := [][]string{{"Job", "Target", "Status", "Detail"}}
	for _, j := range jobs {
		rows = append(rows, []string{string(j.Ref), j.Target, string(j.Status), jobDetail(j)})
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	printLine(w, out)
	return nil
}

// jobDetail is the reason, or the missing field keys of a parked job.
func jobDetail(j types.Job) string {
	if len(j.Fields) == 0 {
		return j.Reason
	}
	keys := make([]string, 0, len(j.Fields))
	for _, f := range j.Fields {
		k := f.Key
		if f.Required {
			k += "*"
		}
		keys = append(keys, k)
	}
	return "needs " + strings.Join(keys, ", ")
}
