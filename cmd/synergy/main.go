package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"synergy/adapters/excel"
	"synergy/adapters/stats/bootstrap"
	"synergy/adapters/stats/variance"
	"synergy/adapters/tabular"
	"synergy/app"
	"synergy/domain/dose"
	"synergy/internal"
	"synergy/internal/config"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "synergy",
		Short: "Synergy evaluates drug combination effects against additivity null models",
	}
	rootCmd.AddCommand(newAnalyzeCmd(), newFitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newAnalyzeCmd() *cobra.Command {
	var (
		method     string
		nullModel  string
		statKind   string
		varMethod  string
		varXform   string
		cpCount    int
		statCount  int
		cutoff     float64
		seed       int64
		workers    int
		shared     bool
		wild       bool
		names      []string
		reportPath string
	)
	defaults := config.Load().Analysis

	cmd := &cobra.Command{
		Use:   "analyze [observations.csv]",
		Short: "Fit marginals, build the null-model surface and run the deviation tests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := tabular.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := buildConfig(method, nullModel, statKind, varMethod, varXform)
			if err != nil {
				return err
			}
			cfg.BootstrapCovarianceCount = cpCount
			cfg.BootstrapStatisticCount = statCount
			cfg.Cutoff = cutoff
			cfg.Seed = seed
			cfg.Workers = workers
			if wild {
				cfg.ResamplingPolicy = bootstrap.PolicyWild
			}
			if len(names) == 2 {
				cfg.CompoundNames = [2]string{names[0], names[1]}
			}
			if shared {
				cfg.Constraints = dose.ConstraintSpec{
					A: [][]float64{sharedAsymptoteRow()},
					C: []float64{0},
				}
			}

			svc := app.NewAnalysisService(bootstrap.NewSeedAdapter(), internal.DefaultLogger)
			result, err := svc.Run(context.Background(), data, cfg)
			if err != nil {
				return err
			}
			if reportPath != "" {
				if err := excel.NewReportWriter().Write(result, reportPath); err != nil {
					return err
				}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&method, "method", string(dose.SolverLevenbergMarquardt), "solver: levenberg_marquardt, gauss_newton, nelder_mead")
	cmd.Flags().StringVar(&nullModel, "null-model", string(dose.GeneralizedLoewe), "null model: generalized_loewe, classical_loewe, hsa, bliss, alternative_loewe")
	cmd.Flags().StringVar(&statKind, "statistic", string(dose.StatisticBoth), "statistic: none, meanR, maxR, both")
	cmd.Flags().StringVar(&varMethod, "variance", string(dose.VarianceEqual), "variance method: equal, unequal, model")
	cmd.Flags().StringVar(&varXform, "variance-transform", "identity", "variance regression scale: identity, log")
	cmd.Flags().IntVar(&cpCount, "cp-resamples", defaults.BootstrapCovarianceCount, "bootstrap resamples for CP covariance (0 disables)")
	cmd.Flags().IntVar(&statCount, "stat-resamples", defaults.BootstrapStatisticCount, "bootstrap resamples for the statistic null (0 = normal approximation)")
	cmd.Flags().Float64Var(&cutoff, "cutoff", defaults.Cutoff, "significance cutoff for the synergy calls")
	cmd.Flags().Int64Var(&seed, "seed", defaults.Seed, "master random seed")
	cmd.Flags().IntVar(&workers, "workers", defaults.Workers, "concurrent bootstrap workers")
	cmd.Flags().BoolVar(&shared, "shared-asymptote", false, "constrain m1 == m2")
	cmd.Flags().BoolVar(&wild, "wild", false, "use the wild residual bootstrap")
	cmd.Flags().StringSliceVar(&names, "compounds", nil, "display names, e.g. --compounds drugA,drugB")
	cmd.Flags().StringVar(&reportPath, "report", "", "write an xlsx report to this path")
	return cmd
}

func newFitCmd() *cobra.Command {
	var method string
	var shared bool

	cmd := &cobra.Command{
		Use:   "fit [observations.csv]",
		Short: "Fit the joint marginal curves only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := tabular.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := buildConfig(method, "", "", "", "")
			if err != nil {
				return err
			}
			if shared {
				cfg.Constraints = dose.ConstraintSpec{
					A: [][]float64{sharedAsymptoteRow()},
					C: []float64{0},
				}
			}
			svc := app.NewAnalysisService(bootstrap.NewSeedAdapter(), internal.DefaultLogger)
			model, err := svc.FitMarginals(data, cfg)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(model)
		},
	}
	cmd.Flags().StringVar(&method, "method", string(dose.SolverLevenbergMarquardt), "solver method")
	cmd.Flags().BoolVar(&shared, "shared-asymptote", false, "constrain m1 == m2")
	return cmd
}

func buildConfig(method, nullModel, statKind, varMethod, varXform string) (app.AnalysisConfig, error) {
	cfg := app.AnalysisConfig{}
	var err error
	if method != "" {
		if cfg.Method, err = dose.ParseSolverMethod(method); err != nil {
			return cfg, err
		}
	}
	if nullModel != "" {
		if cfg.NullModel, err = dose.ParseNullModel(nullModel); err != nil {
			return cfg, err
		}
	}
	if statKind != "" {
		if cfg.Statistic, err = dose.ParseStatistic(statKind); err != nil {
			return cfg, err
		}
	}
	if varMethod != "" {
		if cfg.VarianceMethod, err = dose.ParseVarianceMode(varMethod); err != nil {
			return cfg, err
		}
	}
	if varXform != "" {
		if cfg.VarianceTransform, err = variance.ParseTransform(varXform); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func sharedAsymptoteRow() []float64 {
	row := make([]float64, dose.NumCoef)
	row[dose.CoefM1] = 1
	row[dose.CoefM2] = -1
	return row
}
