// pkgctl inspects and edits one package directory from the command line.
//
//	pkgctl create <landing-dir> <name>
//	pkgctl put <package-dir> <entry> "SCA R 3.5"
//	pkgctl ls <package-dir>
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/common/expfmt"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"PackageDB/config"
	"PackageDB/errdefs"
	packagemanager "PackageDB/storage_engine/package_manager"
	"PackageDB/storage_engine/pager"
	"PackageDB/types"
)

type app struct {
	cfg config.Config
	log *logrus.Logger
	out io.Writer
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := newApp(os.Stdout, logrus.StandardLogger()).Run(os.Args); err != nil {
		logrus.Errorf("pkgctl: %v", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer, log *logrus.Logger) *cli.App {
	a := &app{cfg: config.Default(), log: log, out: out}

	return &cli.App{
		Name:      "pkgctl",
		Usage:     "Inspect and edit a value package",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Engine configuration file (TOML)", EnvVars: []string{"PKGCTL_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Usage: "Set log level (panic, fatal, error, warn, info, debug, trace), overrides the config file", EnvVars: []string{"LOG_LEVEL"}},
			&cli.Uint64Flag{Name: "package-id", Value: 1, Usage: "Package ID the package is opened under"},
		},
		Before: a.setup,
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a package, or open it if it already exists",
				ArgsUsage: "<landing-dir> <name>",
				Action:    a.create,
			},
			{
				Name:      "ls",
				Usage:     "List every entry with its value",
				ArgsUsage: "<package-dir>",
				Action:    a.list,
			},
			{
				Name:      "get",
				Usage:     "Print one entry",
				ArgsUsage: "<package-dir> <entry-name>",
				Action:    a.get,
			},
			{
				Name:      "put",
				Usage:     "Store a value (sterilized text such as \"VEC 2 1 2\") under a name",
				ArgsUsage: "<package-dir> <entry-name> <value>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "temporary", Usage: "Store as a temporary entry"},
					&cli.BoolFlag{Name: "load-immediate", Usage: "Load the entry as soon as the package opens"},
					&cli.BoolFlag{Name: "read-only", Usage: "Refuse further changes to the entry"},
				},
				Action: a.put,
			},
			{
				Name:      "rm",
				Usage:     "Remove an entry by ID",
				ArgsUsage: "<package-dir> <entry-id>",
				Action:    a.remove,
			},
			{
				Name:      "stat",
				Usage:     "Show page usage of the payload file",
				ArgsUsage: "<package-dir>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "metrics", Usage: "Also dump the pager metrics of this run"},
				},
				Action: a.stat,
			},
			{
				Name:      "wipe",
				Usage:     "Remove every entry and truncate the payload file",
				ArgsUsage: "<package-dir>",
				Action:    a.wipe,
			},
		},
	}
}

func (a *app) setup(c *cli.Context) error {
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if lvl := c.String("log-level"); lvl != "" {
		a.cfg.LogLevel = lvl
	}
	level, err := a.cfg.Level()
	if err != nil {
		return err
	}
	a.log.SetLevel(level)
	pager.Register()
	return nil
}

func (a *app) options() []packagemanager.Option {
	return []packagemanager.Option{
		packagemanager.WithConfig(a.cfg),
		packagemanager.WithLogger(logrus.NewEntry(a.log)),
	}
}

func requireArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return errors.Wrapf(errdefs.ErrValidation, "%s expects %d arguments (%s), got %d",
			c.Command.Name, n, c.Command.ArgsUsage, c.NArg())
	}
	return nil
}

// withPackage opens the package at dir, runs fn and closes it.
func (a *app) withPackage(c *cli.Context, dir string, fn func(*packagemanager.Package) error) error {
	p, err := packagemanager.OpenFromDirectory(dir, c.Uint64("package-id"), a.options()...)
	if err != nil {
		return errors.Wrapf(err, "open package %s", dir)
	}
	err = fn(p)
	if cerr := p.Close(); err == nil {
		err = cerr
	}
	return err
}

func (a *app) create(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	p, err := packagemanager.NewPackage(c.Args().Get(1), c.Args().Get(0), c.Uint64("package-id"), a.options()...)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (%d entries)\n", p.Location(), len(p.Entries()))
	return p.Close()
}

func (a *app) list(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	return a.withPackage(c, c.Args().Get(0), func(p *packagemanager.Package) error {
		if err := p.LoadAllEntries(); err != nil {
			a.log.WithError(err).Warn("some entries could not be loaded")
		}
		return p.DisplayContents(a.out)
	})
}

func (a *app) get(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	return a.withPackage(c, c.Args().Get(0), func(p *packagemanager.Package) error {
		e, err := p.ResolveEntry(c.Args().Get(1))
		if err != nil {
			return err
		}
		if err := e.Load(); err != nil {
			return err
		}
		return e.Display(a.out)
	})
}

func (a *app) put(c *cli.Context) error {
	if err := requireArgs(c, 3); err != nil {
		return err
	}
	name := c.Args().Get(1)
	value, err := types.ParseValue(c.Args().Get(2))
	if err != nil {
		return err
	}

	return a.withPackage(c, c.Args().Get(0), func(p *packagemanager.Package) error {
		e, err := p.ResolveEntry(name)
		switch {
		case errdefs.IsNotFound(err):
			kind := types.EntryPersistent
			if c.Bool("temporary") {
				kind = types.EntryTemporary
			}
			key, err := p.AddEntry(name, kind, value)
			if err != nil {
				return err
			}
			e, _ = p.Entry(key.EntryID)
		case err != nil:
			return err
		default:
			if err := e.SetData(value); err != nil {
				return err
			}
		}

		if c.IsSet("load-immediate") {
			e.SetLoadImmediate(c.Bool("load-immediate"))
		}
		if c.IsSet("read-only") {
			e.SetReadOnly(c.Bool("read-only"))
		}
		if err := p.Save(); err != nil {
			if errdefs.IsCapacity(err) {
				return errors.Wrapf(err, "%s no longer fits its pages; rm it and put it again", name)
			}
			return err
		}
		return e.Display(a.out)
	})
}

func (a *app) remove(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	id, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
	if err != nil {
		return errors.Wrapf(errdefs.ErrValidation, "bad entry id %q", c.Args().Get(1))
	}
	return a.withPackage(c, c.Args().Get(0), func(p *packagemanager.Package) error {
		if err := p.RemoveEntry(id); err != nil {
			return err
		}
		return p.Save()
	})
}

func (a *app) stat(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	return a.withPackage(c, c.Args().Get(0), func(p *packagemanager.Package) error {
		s := p.Pager().Stats()
		pageBytes := uint64(s.UnitSize * s.PageSize)

		fmt.Fprintf(a.out, "package:    %s (P%d)\n", p.Name(), p.ID())
		fmt.Fprintf(a.out, "entries:    %d\n", len(p.Entries()))
		fmt.Fprintf(a.out, "geometry:   %d-byte units, %d units per page (%s)\n", s.UnitSize, s.PageSize, humanize.IBytes(pageBytes))
		fmt.Fprintf(a.out, "pages:      %d total, %d used, %d free\n", s.TotalPages, s.UsedPages, s.FreePages)
		fmt.Fprintf(a.out, "file:       %s\n", humanize.IBytes(uint64(s.FileBytes)))
		fmt.Fprintf(a.out, "free space: %s\n", humanize.IBytes(uint64(s.FreePages)*pageBytes))
		fmt.Fprintf(a.out, "cache:      %s hits, %s misses\n", humanize.Comma(int64(s.CacheHits)), humanize.Comma(int64(s.CacheMisses)))

		if c.Bool("metrics") {
			return writeMetrics(a.out)
		}
		return nil
	})
}

func writeMetrics(w io.Writer) error {
	families, err := pager.Register().Gather()
	if err != nil {
		return errors.Wrap(err, "gather pager metrics")
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.Wrap(err, "write pager metrics")
		}
	}
	return nil
}

func (a *app) wipe(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	return a.withPackage(c, c.Args().Get(0), func(p *packagemanager.Package) error {
		return p.RemoveAllEntries()
	})
}
