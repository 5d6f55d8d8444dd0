// Command vectorio inspects, converts and serves vector datasets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tingold/vectorio/internal/s3"

	_ "github.com/tingold/vectorio/flatgeobuf"
	_ "github.com/tingold/vectorio/memory"
	_ "github.com/tingold/vectorio/shapefile"
	_ "github.com/tingold/vectorio/sqlite"
)

// Version is the version reported by the version command.
var Version = "0.1.0"

// Cfg holds the configuration from flags, the environment and the config
// file.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	Cfg = viper.New()
	Cfg.SetEnvPrefix("VECTORIO")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	Cfg.AutomaticEnv()

	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "log-level",
			usage: `
              log-level is the logrus level to log at: panic, fatal, error, warn,
              info, debug or trace.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "s3-region",
			usage: `
              s3-region is the AWS region used for s3:// locations. Empty uses
              the environment.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "s3-endpoint",
			usage: `
              s3-endpoint is a custom endpoint URL for S3 compatible services.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "s3-path-style",
			usage: `
              s3-path-style selects path-style addressing, as MinIO needs.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "s3-access-key",
			usage: `
              s3-access-key and s3-secret-key set static credentials. The
              default credential chain is used when they are empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name:       "s3-secret-key",
			usage:      "s3-secret-key is the secret matching s3-access-key.",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "input-format",
			usage: `
              input-format is the driver used to open the input. Empty picks the
              driver from the location's scheme or extension.`,
			shorthand:  "f",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{infoCmd.Flags(), translateCmd.Flags(), dumpCmd.Flags(), serveCmd.Flags()},
		},
		{
			name:       "layer",
			usage:      "layer is the index of the input layer.",
			shorthand:  "l",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{translateCmd.Flags(), dumpCmd.Flags(), serveCmd.Flags()},
		},
		{
			name: "base-elevation",
			usage: `
              base-elevation is added to every z coordinate read from the input.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{translateCmd.Flags()},
		},
		{
			name:       "output-format",
			usage:      "output-format is the driver used to write the output.",
			shorthand:  "F",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{translateCmd.Flags()},
		},
		{
			name:       "layer-name",
			usage:      "layer-name is the name of the output layer.",
			shorthand:  "n",
			defaultVal: "layer",
			flagsets:   []*pflag.FlagSet{translateCmd.Flags()},
		},
		{
			name: "srs",
			usage: `
              srs is the spatial reference of the output layer, for example
              EPSG:7415. Empty keeps the spatial reference of the input.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{translateCmd.Flags()},
		},
		{
			name:       "overwrite-layer",
			usage:      "overwrite-layer replaces an existing output layer of the same name.",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{translateCmd.Flags()},
		},
		{
			name:       "overwrite-file",
			usage:      "overwrite-file removes the output dataset before writing.",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{translateCmd.Flags()},
		},
		{
			name:       "create-directories",
			usage:      "create-directories creates the parent directory of the output.",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{translateCmd.Flags()},
		},
		{
			name:       "require-attributes",
			usage:      "require-attributes fails when the input has no attribute fields.",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{translateCmd.Flags()},
		},
		{
			name: "rename",
			usage: `
              rename maps input field names to output field names. Mapping a
              field to "" drops it. It is given as JSON on the command line.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{translateCmd.Flags()},
		},
		{
			name: "rename-file",
			usage: `
              rename-file is a TOML file holding a [rename] table. Entries given
              with rename take precedence.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{translateCmd.Flags()},
		},
		{
			name:       "only-mapped",
			usage:      "only-mapped writes only the fields listed in the rename map.",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{translateCmd.Flags()},
		},
		{
			name:       "batch-size",
			usage:      "batch-size is the number of input rows per transaction.",
			defaultVal: 1000,
			flagsets:   []*pflag.FlagSet{translateCmd.Flags()},
		},
		{
			name: "layer-options",
			usage: `
              layer-options is a comma separated KEY=VALUE list passed to the
              output driver, for example SPATIAL_INDEX=YES.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{translateCmd.Flags()},
		},
		{
			name: "bbox",
			usage: `
              bbox limits the output to features intersecting minx,miny,maxx,maxy.
              FlatGeobuf inputs with a spatial index are searched through it.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{dumpCmd.Flags()},
		},
		{
			name:       "addr",
			usage:      "addr is the address the server listens on.",
			defaultVal: ":8080",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "client-dir",
			usage: `
              client-dir is a directory of static files served next to the data
              endpoints. Nothing else is served when it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
	}

	// Create the flags on the first flag set, share them with the others
	// and bind them to the configuration.
	for _, option := range options {
		set := option.flagsets[0]
		switch option.defaultVal.(type) {
		case string:
			set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
		case bool:
			set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
		case int:
			set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
		case float64:
			set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
		case map[string]string:
			s, err := json.MarshalToString(option.defaultVal)
			if err != nil {
				panic(err)
			}
			set.StringP(option.name, option.shorthand, s, option.usage)
		default:
			panic("invalid argument type")
		}
		flag := set.Lookup(option.name)
		for _, other := range option.flagsets[1:] {
			other.AddFlag(flag)
		}
		Cfg.BindPFlag(option.name, flag)
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(infoCmd)
	Root.AddCommand(translateCmd)
	Root.AddCommand(dumpCmd)
	Root.AddCommand(serveCmd)
}

// setConfig reads the configuration file, if there is one, and applies the
// logging and object storage settings.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("vectorio: problem reading configuration file: %v", err)
		}
	}

	level, err := logrus.ParseLevel(Cfg.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("vectorio: %v", err)
	}
	logrus.SetLevel(level)

	s3.Configure(s3.ClientConfig{
		Region:       Cfg.GetString("s3-region"),
		Endpoint:     Cfg.GetString("s3-endpoint"),
		UsePathStyle: Cfg.GetBool("s3-path-style"),
		Credentials:  s3.StaticCredentials(Cfg.GetString("s3-access-key"), Cfg.GetString("s3-secret-key")),
	})
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "vectorio",
	Short: "Read, convert and serve vector datasets.",
	Long: `vectorio moves vector features between FlatGeobuf files, shapefiles,
SQLite databases and S3 objects.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'VECTORIO_VAR' where 'VAR'
is the flag name in upper case with dashes replaced by underscores.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vectorio v%s\n", Version)
	},
	DisableAutoGenTag: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := Root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
