// Package commands is the ddb command line interface.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/acksell/ddbcli/dynamodb/ddbsdk"
	"github.com/acksell/ddbcli/dynamodb/ddbstore"
	"github.com/acksell/ddbcli/internal/cli"
	"github.com/acksell/ddbcli/internal/constants"
	"github.com/acksell/ddbcli/internal/output"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrNotConfigured is returned when no AWS region can be resolved.
var ErrNotConfigured = errors.New("AWS is not configured")

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Table       string `mapstructure:"table"`
	Region      string `mapstructure:"region"`
	Profile     string `mapstructure:"profile"`
	EndpointURL string `mapstructure:"endpoint-url" validate:"omitempty,url,excluded_with=Local"`
	Local       string `mapstructure:"local"`
	Output      string `mapstructure:"output" validate:"oneof=json yaml"`

	Verbosity int  `mapstructure:"verbose" validate:"gte=0"`
	JSONLogs  bool `mapstructure:"json-logs"`
}

// New registers commands and returns a new App.
func New() (*App, error) {
	a := App{}
	a.cmd = &cobra.Command{
		Use:   constants.CmdName,
		Short: "DynamoDB command line client",
		Long: `Get, put, update and scan DynamoDB items as JSON.

The table is the first argument of every item command, unless it is set with
--table, in the ` + constants.TableEnv + ` environment variable or in the configuration file.
Credentials and region are resolved like the AWS CLI does. Failed commands are
logged to error.log in the user configuration directory.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config

			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			// The table name is also read from the environment variable used by other DynamoDB tools.
			if err := a.viper.BindEnv("table", constants.TableEnv, "DDB_TABLE"); err != nil {
				return fmt.Errorf("could not bind environment variable: %w", err)
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			if err := validator.New().Struct(a.config); err != nil {
				a.cmd.SilenceUsage = false
				return fmt.Errorf("invalid configuration: %w", err)
			}
			slog.Debug("Got app config", "config", a.config)

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			return nil
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootFlags(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.installGet()
	a.installPut()
	a.installUpdate()
	a.installScan()
	a.installCreateTable()
	a.installWhoami()
	a.installVersion()

	return &a, nil
}

func installRootFlags(a *App) {
	flags := a.cmd.PersistentFlags()

	flags.StringVarP(&a.config.Table, "table", "t", "", "table name, instead of the first argument")
	flags.StringVar(&a.config.Region, "region", "", "AWS region")
	flags.StringVar(&a.config.Profile, "profile", "", "AWS shared configuration profile")
	flags.StringVar(&a.config.EndpointURL, "endpoint-url", "", "DynamoDB endpoint, such as http://localhost:8000 for DynamoDB Local")
	flags.StringVar(&a.config.Local, "local", "", "use a local store in this directory instead of AWS")
	flags.StringVarP(&a.config.Output, "output", "o", output.FormatJSON, "output format: json or yaml")

	flags.CountVarP(&a.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	flags.BoolVar(&a.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	if err := a.cmd.MarkPersistentFlagDirname("local"); err != nil {
		panic(fmt.Errorf("failed to mark local flag as directory: %w", err))
	}
}

// Run executes the command and associated process, returning an error if any.
// SIGINT and SIGTERM cancel the running command.
func (a App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.cmd.ExecuteContext(ctx)
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// usageErrorf reports an invalid command line once flag parsing has succeeded.
func (a *App) usageErrorf(format string, args ...any) error {
	a.cmd.SilenceUsage = false
	return fmt.Errorf(format, args...)
}

// tableArgs splits the positional arguments of an item command into the table
// name and the remaining arguments. A configured table is not part of args.
func (a *App) tableArgs(args []string) (string, []string, error) {
	if a.config.Table != "" {
		return a.config.Table, args, nil
	}
	if len(args) == 0 {
		return "", nil, a.usageErrorf("missing table name: pass it as the first argument, with --table or in %s", constants.TableEnv)
	}
	return args[0], args[1:], nil
}

// withClient runs fn with a client for the configured backend and releases it afterwards.
func (a *App) withClient(ctx context.Context, fn func(*ddbsdk.Client) error, opts ...ddbsdk.Option) (err error) {
	if a.config.Local != "" {
		return a.withLocalClient(fn, opts...)
	}

	awsddb, scope, err := a.newDynamoDBClient(ctx)
	if err != nil {
		return err
	}
	if cache := openSchemaCache(); cache != nil {
		opts = append(opts, ddbsdk.WithSchemaCache(cache, scope))
	}
	return fn(ddbsdk.New(awsddb, opts...))
}

// withLocalClient opens the local store. Key schemas are read from the store
// itself, so the schema cache is not used.
func (a *App) withLocalClient(fn func(*ddbsdk.Client) error, opts ...ddbsdk.Option) (err error) {
	dir, err := filepath.Abs(a.config.Local)
	if err != nil {
		return fmt.Errorf("invalid local store directory: %w", err)
	}
	slog.Debug("Opening local store", "dir", dir)
	store, err := ddbstore.New(ddbstore.StoreOptions{Path: dir, Logger: ddbstore.SlogLogger{}})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("could not close local store: %w", cerr)
		}
	}()
	return fn(ddbsdk.New(store, opts...))
}

// loadAWSConfig resolves credentials and region from the flags and the default chain.
func (a *App) loadAWSConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if a.config.Region != "" {
		opts = append(opts, config.WithRegion(a.config.Region))
	}
	if a.config.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(a.config.Profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("could not load AWS configuration: %w", err)
	}
	if cfg.Region == "" {
		return aws.Config{}, fmt.Errorf("%w: set a region with --region or AWS_REGION, or follow %s", ErrNotConfigured, constants.AWSSetupURL)
	}
	return cfg, nil
}

// newDynamoDBClient returns a DynamoDB client and the scope its key schemas are cached under.
func (a *App) newDynamoDBClient(ctx context.Context) (*dynamodb.Client, string, error) {
	cfg, err := a.loadAWSConfig(ctx)
	if err != nil {
		return nil, "", err
	}
	scope := cfg.Region
	if a.config.EndpointURL != "" {
		scope = a.config.EndpointURL
	}
	if a.config.Profile != "" {
		scope = a.config.Profile + "@" + scope
	}

	slog.Debug("Using DynamoDB", "region", cfg.Region, "endpoint", a.config.EndpointURL, "profile", a.config.Profile)
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if a.config.EndpointURL != "" {
			o.BaseEndpoint = aws.String(a.config.EndpointURL)
		}
	})
	return client, scope, nil
}

// openSchemaCache returns nil when the cache cannot be used.
func openSchemaCache() *ddbsdk.SchemaCache {
	path := constants.GetDefaultSchemaCachePath()
	if path == "" {
		return nil
	}
	cache, err := ddbsdk.OpenSchemaCache(path)
	if err != nil {
		slog.Warn("Ignoring key schema cache", "path", path, "error", err)
		return nil
	}
	return cache
}

// print writes v to the command output in the configured format.
func (a *App) print(cmd *cobra.Command, v any) error {
	return output.Printer{Format: a.config.Output, Out: cmd.OutOrStdout()}.Print(v)
}
