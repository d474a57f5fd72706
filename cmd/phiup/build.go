package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clinicalconnectome/phiup/internal/pipeline"
	"github.com/clinicalconnectome/phiup/internal/schema"
)

var (
	buildPatientTable     string
	buildAcquisitionTable string
	buildFeatureTable     string
	buildDataset          string
	buildRoot             string
	buildTemplate         string
	buildNTest            int
	buildBehavioral       bool
	buildClinical         bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Generate request collections only",
	Long:  "Read the given CSV/TSV tables, normalize each row, and write one request collection per entity kind under {root}/API without uploading anything.",
	RunE:  runBuild,
}

func init() {
	addBuildFlags(buildCmd)
}

// addBuildFlags registers the flags shared by build and run.
func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&buildPatientTable, "patient", "",
		"CSV/TSV with participant data")
	cmd.Flags().StringVar(&buildAcquisitionTable, "acquisition", "",
		"CSV/TSV with acquisitions data")
	cmd.Flags().StringVar(&buildFeatureTable, "feature", "",
		"CSV/TSV with features data")
	cmd.Flags().StringVar(&buildDataset, "dataset", "WashU",
		"Dataset name (used in output file names)")
	cmd.Flags().StringVar(&buildRoot, "root", "",
		"Root directory for generated files (overrides config)")
	cmd.Flags().StringVar(&buildTemplate, "template", "",
		"Path to the request template document (overrides config)")
	cmd.Flags().IntVar(&buildNTest, "n-test", 0,
		"Only generate the first N rows (debug)")
	cmd.Flags().BoolVar(&buildBehavioral, "behavioral", false,
		"Force the behavioral flag to true for every patient row")
	cmd.Flags().BoolVar(&buildClinical, "clinical", false,
		"Force the clinical flag to true for every patient row")
}

func buildOptions() pipeline.BuildOptions {
	return pipeline.BuildOptions{
		Dataset:          buildDataset,
		PatientTable:     buildPatientTable,
		AcquisitionTable: buildAcquisitionTable,
		FeatureTable:     buildFeatureTable,
		NTest:            buildNTest,
		Behavioral:       buildBehavioral,
		Clinical:         buildClinical,
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
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

	result, err := pipeline.Build(cmd.Context(), cfg, buildOptions(), log)
	if err != nil {
		return err
	}

	for _, kind := range result.Built {
		fmt.Fprintf(cmd.OutOrStdout(), "Built %s collection\n", kind)
	}
	if len(result.Failed) > 0 {
		var kinds []string
		for _, kind := range schema.Kinds() {
			if _, ok := result.Failed[kind]; ok {
				kinds = append(kinds, string(kind))
			}
		}
		return fmt.Errorf("build failed for: %s", strings.Join(kinds, ", "))
	}
	return nil
}
