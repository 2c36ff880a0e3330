package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendaim/epifit/internal/calib"
	"github.com/tendaim/epifit/internal/config"
	"github.com/tendaim/epifit/internal/epi"
	"github.com/tendaim/epifit/internal/export"
	"github.com/tendaim/epifit/internal/msim"
	"github.com/tendaim/epifit/internal/scenario"
	"github.com/tendaim/epifit/internal/storage"
	"github.com/tendaim/epifit/internal/study"
	"github.com/tendaim/epifit/internal/viz"
)

var (
	dataDir    string
	configFile string

	// sim flags
	popSize      int
	popInfected  int
	startDay     string
	endDay       string
	beta         float64
	relDeathProb float64
	seed         int64
	verbose      bool
	dailyTests   int
	dataFile     string

	// calibration flags
	studyName  string
	numWorkers int
	numTrials  int
	betaLow    float64
	betaHigh   float64
	rdpLow     float64
	rdpHigh    float64

	// scenario flags
	numRuns      int
	peoplePerDay int
	xlsxPath     string

	// plot flags
	plotSeries []string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "epifit",
		Short: "epidemic model calibration and scenario lab",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".epifit", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")

	runCmd := &cobra.Command{
		Use:   "run [label]",
		Short: "run a single simulation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSim,
	}
	addSimFlags(runCmd)
	runCmd.Flags().StringVar(&dataFile, "datafile", "", "observed data csv (enables data-driven testing and fit)")

	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "calibrate beta and rel_death_prob against observed data",
		RunE:  runCalibrate,
	}
	addSimFlags(calibrateCmd)
	calibrateCmd.Flags().StringVar(&dataFile, "datafile", "", "observed data csv (required)")
	calibrateCmd.Flags().StringVar(&studyName, "name", "epifit-calibration", "study name; database is <name>.db")
	calibrateCmd.Flags().IntVar(&numWorkers, "workers", 4, "parallel workers")
	calibrateCmd.Flags().IntVar(&numTrials, "trials", 25, "trials per worker")
	calibrateCmd.Flags().Float64Var(&betaLow, "beta-low", 0.005, "beta lower bound")
	calibrateCmd.Flags().Float64Var(&betaHigh, "beta-high", 0.020, "beta upper bound")
	calibrateCmd.Flags().Float64Var(&rdpLow, "rdp-low", 0.5, "rel_death_prob lower bound")
	calibrateCmd.Flags().Float64Var(&rdpHigh, "rdp-high", 3.0, "rel_death_prob upper bound")

	scenariosCmd := &cobra.Command{
		Use:   "scenarios",
		Short: "compare vaccine rollout strategies",
		RunE:  runScenarios,
	}
	addSimFlags(scenariosCmd)
	scenariosCmd.Flags().IntVar(&numRuns, "runs", 2, "seeded runs per scenario")
	scenariosCmd.Flags().IntVar(&peoplePerDay, "doses-per-day", 10000, "vaccine doses per day")
	scenariosCmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write per-scenario median summaries to this xlsx file")

	bestCmd := &cobra.Command{
		Use:   "best",
		Short: "show best parameters of a study",
		RunE:  showBest,
	}
	bestCmd.Flags().StringVar(&studyName, "name", "epifit-calibration", "study name")

	trialsCmd := &cobra.Command{
		Use:   "trials",
		Short: "list trials of a study",
		RunE:  listTrials,
	}
	trialsCmd.Flags().StringVar(&studyName, "name", "epifit-calibration", "study name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&plotSeries, "series", []string{"new_infections", "cum_deaths"}, "series to plot")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id] [path]",
		Short: "export a saved run to csv",
		Args:  cobra.ExactArgs(2),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	liveCmd := &cobra.Command{
		Use:   "live [label]",
		Short: "run a simulation with live visualization",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addSimFlags(liveCmd)

	rootCmd.AddCommand(runCmd, calibrateCmd, scenariosCmd, bestCmd, trialsCmd,
		listCmd, plotCmd, exportCSVCmd, exportJSONCmd, liveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSimFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&popSize, "pop-size", epi.DefaultPopSize, "population size")
	cmd.Flags().IntVar(&popInfected, "pop-infected", epi.DefaultPopInfected, "initial infections")
	cmd.Flags().StringVar(&startDay, "start-day", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDay, "end-day", "", "end date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&beta, "beta", epi.DefaultBeta, "transmission probability per contact")
	cmd.Flags().Float64Var(&relDeathProb, "rel-death-prob", epi.DefaultRelDeathProb, "relative death probability")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "per-day progress output")
	cmd.Flags().IntVar(&dailyTests, "daily-tests", 0, "fixed daily tests (0 disables testing)")
}

// loadConfig merges the optional config file with defaults; CLI flags
// that were set explicitly override it.
func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.Load(configFile)
}

func simParams(cmd *cobra.Command) (epi.Params, error) {
	cfg, err := loadConfig()
	if err != nil {
		return epi.Params{}, err
	}
	pars, err := cfg.Params()
	if err != nil {
		return epi.Params{}, err
	}

	if cmd.Flags().Changed("pop-size") {
		pars.PopSize = popSize
	}
	if cmd.Flags().Changed("pop-infected") {
		pars.PopInfected = popInfected
	}
	if cmd.Flags().Changed("beta") {
		pars.Beta = beta
	}
	if cmd.Flags().Changed("rel-death-prob") {
		pars.RelDeathProb = relDeathProb
	}
	if cmd.Flags().Changed("seed") {
		pars.Seed = seed
	}
	if cmd.Flags().Changed("verbose") {
		pars.Verbose = verbose
	}
	if startDay != "" {
		pars.StartDay, err = time.Parse(epi.DateLayout, startDay)
		if err != nil {
			return pars, fmt.Errorf("start-day: %w", err)
		}
	}
	if endDay != "" {
		pars.EndDay, err = time.Parse(epi.DateLayout, endDay)
		if err != nil {
			return pars, fmt.Errorf("end-day: %w", err)
		}
	}
	return pars, nil
}

func runSim(cmd *cobra.Command, args []string) error {
	pars, err := simParams(cmd)
	if err != nil {
		return err
	}
	label := "run"
	if len(args) > 0 {
		label = args[0]
	}

	if dailyTests > 0 {
		pars.Interventions = append(pars.Interventions, &epi.TestNum{DailyTests: dailyTests})
	} else if dataFile != "" {
		pars.Interventions = append(pars.Interventions, &epi.TestNum{FromData: true})
	}

	sim, err := epi.NewSim(pars, label)
	if err != nil {
		return err
	}
	if dataFile != "" {
		if err := sim.LoadData(dataFile); err != nil {
			return err
		}
	}

	fmt.Printf("running sim for beta=%.5f, rel_death_prob=%.3f\n", pars.Beta, pars.RelDeathProb)
	start := time.Now()
	result, err := sim.Run(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n", time.Since(start))

	var mismatch *float64
	if dataFile != "" {
		fit, err := sim.ComputeFit()
		if err != nil {
			return err
		}
		mismatch = &fit.Mismatch
		fmt.Printf("fit mismatch: %.4f\n", fit.Mismatch)
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(pars, result, mismatch)
	if err != nil {
		return err
	}

	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("cum infections: %.0f\n", result.Final("cum_infections"))
	fmt.Printf("cum diagnoses:  %.0f\n", result.Final("cum_diagnoses"))
	fmt.Printf("cum deaths:     %.0f\n", result.Final("cum_deaths"))
	return nil
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg, err := fileCfg.CalibrationConfig()
	if err != nil {
		return err
	}

	base, err := simParams(cmd)
	if err != nil {
		return err
	}
	cfg.Base = base
	cfg.Seed = base.Seed

	if cmd.Flags().Changed("name") || cfg.Name == "" {
		cfg.Name = studyName
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = numWorkers
	}
	if cmd.Flags().Changed("trials") {
		cfg.TrialsPerWorker = numTrials
	}
	if dataFile != "" {
		cfg.DataFile = dataFile
	}
	if cmd.Flags().Changed("beta-low") || cmd.Flags().Changed("beta-high") ||
		cmd.Flags().Changed("rdp-low") || cmd.Flags().Changed("rdp-high") {
		cfg.Bounds = []study.Bounds{
			{Name: "beta", Low: betaLow, High: betaHigh},
			{Name: "rel_death_prob", Low: rdpLow, High: rdpHigh},
		}
	}

	ctx := context.Background()
	outcome, err := calib.Calibrate(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("\noutput: %v, time: %v (%d trials)\n",
		outcome.BestParams, outcome.Elapsed.Round(time.Millisecond), outcome.Trials)

	// Before/after comparison against the uncalibrated defaults.
	initial := map[string]float64{"beta": cfg.Base.Beta, "rel_death_prob": cfg.Base.RelDeathProb}
	before, err := calib.RunSim(ctx, cfg, initial, "before calibration")
	if err != nil {
		return err
	}
	after, err := calib.RunSim(ctx, cfg, outcome.BestParams, "after calibration")
	if err != nil {
		return err
	}

	m := msim.New("calibration", before.Result, after.Result)
	return viz.PlotComparison(m, viz.DefaultCalibrationSeries)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg, err := fileCfg.ScenarioSettings()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("pop-size") {
		cfg.PopSize = popSize
	}
	if cmd.Flags().Changed("pop-infected") {
		cfg.PopInfected = popInfected
	}
	if cmd.Flags().Changed("beta") {
		cfg.Beta = beta
	}
	if cmd.Flags().Changed("rel-death-prob") {
		cfg.RelDeathProb = relDeathProb
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	if cmd.Flags().Changed("runs") {
		cfg.Runs = numRuns
	}
	if cmd.Flags().Changed("doses-per-day") {
		cfg.PeoplePerDay = peoplePerDay
	}
	if cmd.Flags().Changed("daily-tests") {
		cfg.DailyTests = dailyTests
	}
	if endDay != "" {
		cfg.EndDay, err = time.Parse(epi.DateLayout, endDay)
		if err != nil {
			return fmt.Errorf("end-day: %w", err)
		}
	}
	if startDay != "" {
		cfg.StartDay, err = time.Parse(epi.DateLayout, startDay)
		if err != nil {
			return fmt.Errorf("start-day: %w", err)
		}
	}

	fmt.Printf("running %d scenarios x %d runs...\n", len(scenario.Strategies), cfg.Runs)
	start := time.Now()
	msims, err := scenario.Run(context.Background(), cfg)
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n\n", time.Since(start))

	merged, err := msim.Merge(true, msims...)
	if err != nil {
		return err
	}
	if err := viz.PlotComparison(merged, viz.DefaultScenarioSeries); err != nil {
		return err
	}

	if err := printCoverage(msims); err != nil {
		return err
	}

	if xlsxPath != "" {
		if err := export.WriteXLSX(xlsxPath, msims); err != nil {
			return err
		}
		fmt.Printf("\nwrote %s\n", xlsxPath)
	}
	return nil
}

func printCoverage(msims []*msim.MultiSim) error {
	rows, err := scenario.Coverage(msims)
	if err != nil {
		return err
	}

	fmt.Println("vaccine coverage by age band:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, "AGE\tPOP")
	for _, m := range msims {
		fmt.Fprintf(w, "\t%s", m.Label)
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%d", row.Band, row.Population)
		for _, m := range msims {
			fmt.Fprintf(w, "\t%d", row.Vaccinated[m.Label])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func showBest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := study.Load(ctx, studyName+".db", studyName)
	if err != nil {
		return err
	}
	defer st.Close()

	best, err := st.BestTrial(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("best trial: %d (mismatch %.4f)\n", best.Number, best.Value)
	for name, value := range best.Params {
		fmt.Printf("  %s: %.6f\n", name, value)
	}
	return nil
}

func listTrials(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := study.Load(ctx, studyName+".db", studyName)
	if err != nil {
		return err
	}
	defer st.Close()

	trials, err := st.Trials(ctx)
	if err != nil {
		return err
	}
	if len(trials) == 0 {
		fmt.Println("no trials found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tSTATE\tVALUE\tBETA\tREL_DEATH_PROB")
	for _, t := range trials {
		fmt.Fprintf(w, "%d\t%s\t%.4f\t%.5f\t%.3f\n",
			t.Number, t.State, t.Value, t.Params["beta"], t.Params["rel_death_prob"])
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tTIME\tPOP\tBETA\tRDP")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.5f\t%.3f\n",
			run.ID,
			run.Label,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.PopSize,
			run.Beta,
			run.RelDeathProb,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	result, err := st.LoadResult(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("run: %s\n\n", args[0])
	return viz.PlotResult(result, plotSeries)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	result, err := st.LoadResult(args[0])
	if err != nil {
		return err
	}
	if err := export.WriteCSV(args[1], result); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", args[1])
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func runLive(cmd *cobra.Command, args []string) error {
	pars, err := simParams(cmd)
	if err != nil {
		return err
	}
	label := "live"
	if len(args) > 0 {
		label = args[0]
	}
	if dailyTests > 0 {
		pars.Interventions = append(pars.Interventions, &epi.TestNum{DailyTests: dailyTests})
	}

	sim, err := epi.NewSim(pars, label)
	if err != nil {
		return err
	}
	return viz.RunLive(sim)
}
