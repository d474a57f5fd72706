package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clinicalconnectome/phiup/internal/pipeline"
)

var (
	runEmail       string
	runPassword    string
	runBaseURL     string
	runSkipBuild   bool
	runRetryFailed bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build collections (optionally) and upload them",
	Long:  "Authenticate with the registry and upload the persisted collections, partitioning each batch into uploaded and not-uploaded stores. With input tables given and --skip-build absent, the collections are rebuilt first.",
	RunE:  runRun,
}

func init() {
	addBuildFlags(runCmd)
	runCmd.Flags().StringVar(&runEmail, "email", "",
		"Registry login email (or PHIUP_EMAIL)")
	runCmd.Flags().StringVar(&runPassword, "password", "",
		"Registry password (or PHIUP_PASSWORD)")
	runCmd.Flags().StringVar(&runBaseURL, "base-url", "",
		"Registry base URL (overrides config)")
	runCmd.Flags().BoolVar(&runSkipBuild, "skip-build", false,
		"Assume the collections already exist under {root}/API")
	runCmd.Flags().BoolVar(&runRetryFailed, "retry-failed", false,
		"(Re)upload only the collections stored in API/not_uploaded")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if buildRoot != "" {
		cfg.Output.Root = buildRoot
	}
	if buildTemplate != "" {
		cfg.Output.Template = buildTemplate
	}
	if runBaseURL != "" {
		cfg.Registry.BaseURL = runBaseURL
	}
	if runEmail != "" {
		cfg.Registry.Email = runEmail
	}
	if runPassword != "" {
		cfg.Registry.Password = runPassword
	}
	if cfg.Registry.Email == "" || cfg.Registry.Password == "" {
		return errors.New("registry credentials required: set --email/--password or PHIUP_EMAIL/PHIUP_PASSWORD")
	}

	opts := pipeline.RunOptions{
		BuildOptions: buildOptions(),
		SkipBuild:    runSkipBuild,
		RetryFailed:  runRetryFailed,
	}

	summaries, err := pipeline.Run(cmd.Context(), cfg, opts, log)
	if err != nil {
		return err
	}

	for _, s := range summaries {
		if s.Skipped {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped (no collection)\n", s.Kind)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d uploaded ok\n",
			s.Kind, s.Succeeded, s.Total)
	}
	return nil
}
