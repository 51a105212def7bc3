package cli

import (
	"os"

	"github.com/spf13/cobra"

	"savings-rate-service/internal/app"
	"savings-rate-service/internal/config"
	"savings-rate-service/internal/domain/ports"
	"savings-rate-service/pkg/logger"
)

var (
	Version = "dev"

	jsonOutput bool
	verbose    bool
)

// acquirerFactory builds the acquirer for one command invocation. Tests swap it.
var acquirerFactory = func() (ports.RateAcquirer, func() error, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	log := logger.Discard()
	if verbose {
		log = logger.New(os.Stderr, "debug", "text")
	}

	deps, err := app.Setup(cfg, log, nil)
	if err != nil {
		return nil, nil, err
	}
	return deps.Acquirer, deps.Close, nil
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "ratectl",
	Version: Version,
	Short:   "Inspect and drive the USD to INR rate acquirer",
	Long: `ratectl talks to the same store the savings tracker uses.
It can fetch a rate the way the tracker does, force a refresh,
show remaining remote quota and cache health, or reset both.`,
	SilenceUsage: true,
}

func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log acquirer decisions to stderr")
}

// withAcquirer runs fn against a freshly wired acquirer and releases it afterwards.
func withAcquirer(fn func(acq ports.RateAcquirer) error) error {
	acq, closeFn, err := acquirerFactory()
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(acq)
}
