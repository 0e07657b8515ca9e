// Command objectcore-demo drives the m.partner example model end to
// end: create a handful of records, optionally load a supplier
// extension module, flush to a persistence collaborator, and print
// the resulting display names. It exists to give embedders a runnable
// walkthrough of create/write/flush rather than requiring them to read
// the package tests.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/objectcore/objectcore"
	"github.com/objectcore/objectcore/examples/partner"
	"github.com/objectcore/objectcore/persistence"

	_ "github.com/objectcore/objectcore/persistence/sql"
	_ "github.com/objectcore/objectcore/persistence/sqlite"
)

var (
	dsn          string
	configPath   string
	withSupplier bool
	actor        string
	jsonOutput   bool
	traceEnabled bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "persistence DSN (sqlite://path.db, mysql DSN); empty means in-memory only")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to an engine options YAML file")
	rootCmd.PersistentFlags().BoolVar(&withSupplier, "with-supplier-extension", false, "load the supplier display-name override alongside the base module")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "demo", "acting user recorded on the environment")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print records as JSON instead of a table")
	rootCmd.PersistentFlags().BoolVar(&traceEnabled, "trace", false, "print pipeline/flush spans to stdout as they complete")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to bind flags to viper: %v\n", err)
	}
	viper.SetEnvPrefix("OBJECTCORE")
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(createCmd)
}

var traceShutdown func(context.Context) error

var rootCmd = &cobra.Command{
	Use:   "objectcore-demo",
	Short: "objectcore-demo - runnable walkthrough of the objectcore runtime",
	Long:  `Builds an m.partner application, exercises create/write/flush, and prints the result.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !viper.GetBool("trace") {
			return nil
		}
		shutdown, err := installStdoutTracing(cmd.Context())
		if err != nil {
			return err
		}
		traceShutdown = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if traceShutdown == nil {
			return nil
		}
		return traceShutdown(cmd.Context())
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a handful of partner records and flush them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScenario(cmd.Context())
	},
}

var createCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a single partner record, flush it, and print it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreate(cmd.Context(), args[0])
	},
}

func buildApplication(ctx context.Context) (*objectcore.Application, error) {
	opts := objectcore.DefaultEngineOptions()
	if configPath != "" {
		loaded, err := objectcore.LoadEngineOptions(configPath)
		if err != nil {
			return nil, fmt.Errorf("load engine options: %w", err)
		}
		opts = loaded
	}

	reg := objectcore.NewRegistry()
	engine := objectcore.NewEngine()
	partner.RegisterBase(reg, engine)
	if viper.GetBool("with-supplier-extension") {
		partner.RegisterSupplierExtension(engine)
	}

	var persister objectcore.Persister
	if d := viper.GetString("dsn"); d != "" {
		p, err := persistence.Open(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("open persistence collaborator: %w", err)
		}
		persister = p
	}

	return objectcore.NewApplication(reg, engine, opts, persister), nil
}

func runScenario(ctx context.Context) error {
	app, err := buildApplication(ctx)
	if err != nil {
		return err
	}
	e := objectcore.NewEnvironment(app, viper.GetString("actor"))

	seed := []struct {
		name       string
		isCompany  bool
		isSupplier bool
	}{
		{"Alice", false, false},
		{"Acme", true, false},
		{"Big Co", true, true},
	}

	var partners []*partner.Partner
	for _, s := range seed {
		rec, err := e.Create(ctx, partner.Model, objectcore.NewValues().
			Set(partner.NameField, s.name).
			Set(partner.IsCompanyField, s.isCompany).
			Set(partner.IsSupplierField, s.isSupplier))
		if err != nil {
			return fmt.Errorf("create %q: %w", s.name, err)
		}
		partners = append(partners, rec.(*partner.Partner))
	}

	if err := e.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	printPartners(partners)
	return nil
}

func runCreate(ctx context.Context, name string) error {
	app, err := buildApplication(ctx)
	if err != nil {
		return err
	}
	e := objectcore.NewEnvironment(app, viper.GetString("actor"))

	rec, err := e.Create(ctx, partner.Model, objectcore.NewValues().Set(partner.NameField, name))
	if err != nil {
		return fmt.Errorf("create %q: %w", name, err)
	}
	if err := e.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	printPartners([]*partner.Partner{rec.(*partner.Partner)})
	return nil
}

func printPartners(partners []*partner.Partner) {
	if jsonOutput || viper.GetBool("json") {
		fmt.Println("[")
		for i, p := range partners {
			comma := ","
			if i == len(partners)-1 {
				comma = ""
			}
			fmt.Printf("  {\"id\": %d, \"name\": %q, \"display_name\": %q}%s\n", p.ID, p.Name(), p.DisplayName(), comma)
		}
		fmt.Println("]")
		return
	}

	for _, p := range partners {
		fmt.Printf("%-6d %-20s %s\n", p.ID, p.Name(), p.DisplayName())
	}
}

// installStdoutTracing points the pipeline and flush packages' global
// tracer at a real exporter for the lifetime of one CLI invocation,
// since internal/pipeline and internal/flush both dispatch against
// otel's global provider, a no-op until something installs one.
func installStdoutTracing(ctx context.Context) (shutdown func(context.Context) error, err error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func main() {
	rootCmd.SetContext(context.Background())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
