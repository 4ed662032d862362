package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fuse-netcdf/ncfs"
	"github.com/fuse-netcdf/ncfs/netcdf"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// command holds the parsed flags of one invocation.
type command struct {
	configFile string
	verbosity  int
	options    []string
	list       bool
}

func newRootCmd() *cobra.Command {
	c := &command{}

	cmd := &cobra.Command{
		Use:   "ncfs <source-file> <mount-directory>",
		Short: "Mount a netCDF file as a read-only filesystem.",
		Long: `ncfs exposes the dimensions, variables and attributes of a netCDF file
as a read-only directory tree:

  <mount>/.attributes/<name>         global attributes
  <mount>/<var>/.attributes/<name>   variable attributes
  <mount>/<var>/data                 the variable's array, row-major

The filesystem is served until the process receives SIGINT or SIGTERM, or
the mount is removed with "fusermount -u <mount-directory>".

Options are given with -o key=value[,key=value...], in a configuration
file (--config), or as environment variables in the format 'NCFS_KEY'.
-o takes precedence over the environment, which takes precedence over the
configuration file. Known keys: ` + strings.Join(ncfs.OptionKeys(), ", ") + `.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.run,
	}

	c.addFlags(cmd.Flags())
	return cmd
}

func (c *command) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.configFile, "config", "", "configuration file location")
	flags.CountVarP(&c.verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug)")
	flags.StringArrayVarP(&c.options, "options", "o", nil, "mount options, key=value[,key=value...]")
	flags.BoolVar(&c.list, "list", false, "print the virtual tree and exit without mounting")
}

func (c *command) run(cmd *cobra.Command, args []string) error {
	source := args[0]
	var mountpoint string
	if len(args) > 1 {
		mountpoint = args[1]
	}
	if mountpoint == "" && !c.list {
		return fmt.Errorf("missing mount directory")
	}

	opts, err := loadOptions(mountpoint, c.configFile, c.options)
	if err != nil {
		return err
	}
	log := newLogger(cmd.ErrOrStderr(), c.verbosity)
	opts.Logger = log

	if c.list {
		return list(cmd.OutOrStdout(), source, opts)
	}

	log.WithField("options", strings.Join(c.options, ",")).Debug("starting")
	return ncfs.Run(cmd.Context(), source, opts)
}

// list prints every entry of the virtual tree with its size.
func list(out io.Writer, source string, opts *ncfs.MountOptions) error {
	f, err := netcdf.Open(source)
	if err != nil {
		return err
	}
	defer f.Close()

	m := ncfs.NewMapper(f, opts)
	err = m.Walk(func(n *ncfs.Node) error {
		if n.IsDir() {
			_, err := fmt.Fprintf(out, "%10s  %s/\n", "-", strings.TrimSuffix(n.Path, "/"))
			return err
		}
		_, err := fmt.Fprintf(out, "%10s  %s\n", humanize.IBytes(uint64(n.Size)), n.Path)
		return err
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "%d entries, %s\n", m.NodeCount(), humanize.IBytes(uint64(m.TotalSize())))
	return err
}
