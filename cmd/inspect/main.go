package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/reach-controller/internal/machine"
	"github.com/danielpatrickdp/reach-controller/internal/triallog"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to trial_log.db")
	last := flag.Int("last", 20, "show N most recent trials")
	trialID := flag.String("trial", "", "show a single trial's transition trace")
	jsonOut := flag.Bool("json", false, "output as JSON instead of text")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/trial_log.db [--last N] [--trial id] [--json]")
		os.Exit(2)
	}

	store, err := triallog.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *trialID != "" {
		err = runTrialMode(store, *trialID, *jsonOut)
	} else {
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listOutput struct {
	Trials  []triallog.TrialRow     `json:"trials"`
	Summary triallog.SessionSummary `json:"summary"`
}

func runListMode(store *triallog.Store, last int, jsonOut bool) error {
	trials, err := store.RecentTrials(last)
	if err != nil {
		return err
	}
	sum, err := store.Summary()
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(listOutput{Trials: trials, Summary: sum})
	}

	if len(trials) == 0 {
		fmt.Println("no trials logged")
		return nil
	}
	for _, t := range trials {
		outcome := t.Outcome
		if outcome == "" {
			outcome = "open"
		}
		fmt.Printf("%s  %s  %-8s overshoots=%d\n",
			t.TrialID, t.StartedAt.Format(time.RFC3339), outcome, t.NOvershoots)
	}
	fmt.Printf("\ntrials=%d successes=%d failures=%d success_rate=%.2f mean_trial=%.2fs transitions=%d\n",
		sum.Trials, sum.Successes, sum.Failures, sum.SuccessRate, sum.MeanTrialSeconds, sum.Transitions)
	return nil
}

// #endregion list-mode

// #region trial-mode

func runTrialMode(store *triallog.Store, trialID string, jsonOut bool) error {
	t, err := store.Trial(trialID)
	if err != nil {
		return err
	}
	recs, err := store.Transitions(trialID)
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Trial       triallog.TrialRow          `json:"trial"`
			Transitions []machine.TransitionRecord `json:"transitions"`
		}{Trial: t, Transitions: recs})
	}

	outcome := t.Outcome
	if outcome == "" {
		outcome = "open"
	}
	fmt.Printf("trial %s  started=%s  outcome=%s  overshoots=%d\n",
		t.TrialID, t.StartedAt.Format(time.RFC3339), outcome, t.NOvershoots)
	for _, rec := range recs {
		fmt.Printf("  %s  %s\n", rec.At.Format("15:04:05.000"), rec)
	}
	return nil
}

// #endregion trial-mode
