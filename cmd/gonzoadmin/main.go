package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/adminserver"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagAPIBaseURL      = "api-base-url"
	flagAPITimeout      = "api-timeout"
	flagTokenSigningKey = "token-signing-key"
	flagTokenIssuer     = "token-issuer"
	flagTokenSubject    = "token-subject"
	flagTokenTTL        = "token-ttl"
	flagLogFormat       = "log-format"
	envPrefix           = "GONZOADMIN"
	envFile             = ".env.local"
	logFormatJSON       = "json"
	logFormatConsole    = "console"
)

func main() {
	_ = godotenv.Load(envFile)
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gonzoadmin: %v\n", err)
		os.Exit(1)
	}
}

// app carries state shared by every subcommand once the root flags are
// resolved.
type app struct {
	v      *viper.Viper
	cfg    adminserver.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	state := &app{v: newViper()}
	cmd := &cobra.Command{
		Use:           "gonzoadmin",
		Short:         "GonzoFleet back-office console",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if state.logger != nil {
				_ = state.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagAPIBaseURL, "http://localhost:8000", "base URL of the fleet REST API")
	flags.Duration(flagAPITimeout, 0, "timeout for a single API request (e.g. 10s)")
	flags.String(flagTokenSigningKey, "", "HS256 key used to sign service tokens; empty disables auth")
	flags.String(flagTokenIssuer, "", "issuer claim of service tokens")
	flags.String(flagTokenSubject, "", "subject claim of service tokens")
	flags.Duration(flagTokenTTL, 0, "lifetime of service tokens (e.g. 15m)")
	flags.String(flagLogFormat, logFormatJSON, "log encoding: json or console")

	cmd.AddCommand(
		newServeCommand(state),
		newApplicationsCommand(state),
		newDriverCommand(state),
		newPaymentsCommand(state),
		newMessageCommand(state),
		newDigestCommand(state),
	)
	return cmd
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func (state *app) load(cmd *cobra.Command) error {
	if err := bindFlags(state.v, cmd.Flags()); err != nil {
		return err
	}
	logger, err := newLogger(state.v.GetString(flagLogFormat))
	if err != nil {
		return err
	}
	state.logger = logger
	state.cfg = adminserver.Config{
		APIBaseURL:      strings.TrimSpace(state.v.GetString(flagAPIBaseURL)),
		APITimeout:      state.v.GetDuration(flagAPITimeout),
		TokenSigningKey: state.v.GetString(flagTokenSigningKey),
		TokenIssuer:     strings.TrimSpace(state.v.GetString(flagTokenIssuer)),
		TokenSubject:    strings.TrimSpace(state.v.GetString(flagTokenSubject)),
		TokenTTL:        state.v.GetDuration(flagTokenTTL),
	}
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(flag *pflag.Flag) {
		if bindErr == nil {
			bindErr = v.BindPFlag(flag.Name, flag)
		}
	})
	return bindErr
}

func newLogger(format string) (*zap.Logger, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", logFormatJSON:
		return zap.NewProduction()
	case logFormatConsole:
		return zap.NewDevelopment()
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
