package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/thavlik/tsmeta/broadcast"
	"github.com/thavlik/tsmeta/config"
	"github.com/thavlik/tsmeta/directory"
	"github.com/thavlik/tsmeta/display"
	"github.com/thavlik/tsmeta/logging"
	"github.com/thavlik/tsmeta/session"
	"github.com/thavlik/tsmeta/source"
	"github.com/thavlik/tsmeta/structure"
)

// app is what every command needs: configuration, a logger and a session.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	session *session.Session
	closers []func()
}

func newApp(configPath string, withSession bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %v", err)
	}
	a := &app{cfg: cfg, log: log}
	if !withSession {
		return a, nil
	}
	loader := source.NewLoader(cfg.Parse.Concurrency, log)
	a.closers = append(a.closers, loader.Close)
	a.session = &session.Session{
		Directory:  directory.New(),
		Workspace:  structure.NewWorkspace(),
		Renderer:   display.NewRenderer(os.Stdout),
		Loader:     loader,
		SearchDirs: cfg.Parse.SearchDirs,
		Log:        log,
	}
	if cfg.Redis.Enabled {
		client, err := broadcast.Connect(cfg.Redis.URI)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { client.Close() })
		a.session.Publisher = broadcast.NewPublisher(client, cfg.Redis.Channel, cfg.Redis.TTL)
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.log.Sync()
}

// openObjects declares objects that a viewer already has open.
func (a *app) openObjects(names []string) {
	for _, n := range names {
		a.session.Workspace.Open(n)
	}
}

func (a *app) loadConfigMap(ctx context.Context) error {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return fmt.Errorf("in-cluster config: %v", err)
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("clientset: %v", err)
	}
	src := &source.ConfigMapSource{Client: clientset, Namespace: a.cfg.Kubernetes.Namespace}
	results, err := src.Load(ctx, a.cfg.Kubernetes.ConfigMap)
	if err != nil {
		return err
	}
	parsed := a.session.RegisterResults(results)
	a.log.Info("loaded TS files from configmap",
		zap.String("configmap", a.cfg.Kubernetes.ConfigMap),
		zap.Int("parsed", len(parsed)),
		zap.Int("entries", len(results)))
	return nil
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		objects    []string
	)
	rootCmd := &cobra.Command{
		Use:   "tsmeta",
		Short: "Read metadata from CASP TS prediction files",
		Long: `tsmeta parses the header of CASP tertiary structure (TS) prediction files
and keeps the metadata available by TS name or by the name of the structural
model it was attached to.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to tsmeta.yaml")
	rootCmd.PersistentFlags().StringSliceVar(&objects, "open", nil, "names of objects already open in the viewer")

	run := func(withSession bool, f func(a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, withSession)
			if err != nil {
				return err
			}
			defer a.close()
			if withSession {
				a.openObjects(objects)
			}
			return f(a, args)
		}
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the metadata directory over HTTP",
		Args:  cobra.NoArgs,
		RunE: run(true, func(a *app, args []string) error {
			if a.cfg.Kubernetes.Enabled {
				if err := a.loadConfigMap(context.Background()); err != nil {
					return err
				}
			}
			return newServer(a.session, a.log).listen(a.cfg.Server.Port)
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "parse <pattern>...",
		Short: "Parse TS files matching one or more patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: run(true, func(a *app, args []string) error {
			for _, pattern := range args {
				if _, err := a.session.ParseTS(pattern); err != nil {
					return err
				}
			}
			return nil
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "load <pdb|object> [ts]",
		Short: "Load a PDB file or use an open object, and attach its TS metadata",
		Args:  cobra.RangeArgs(1, 2),
		RunE: run(true, func(a *app, args []string) error {
			_, err := a.session.LoadModelWithTS(args[0], optionalArg(args, 1))
			return err
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "attach <ts> <object>",
		Short: "Attach TS metadata to an open object",
		Args:  cobra.ExactArgs(2),
		RunE: run(true, func(a *app, args []string) error {
			_, _, err := a.session.AttachTS(args[0], args[1])
			return err
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "show [key] [ts]",
		Short: "Show TS metadata for a key, or for the only open object",
		Args:  cobra.MaximumNArgs(2),
		RunE: run(true, func(a *app, args []string) error {
			_, _, err := a.session.ShowTSInfo(optionalArg(args, 0), optionalArg(args, 1))
			return err
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "configmap",
		Short: "Parse the TS files stored in the configured ConfigMap",
		Args:  cobra.NoArgs,
		RunE: run(true, func(a *app, args []string) error {
			return a.loadConfigMap(context.Background())
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print records as they are published by other tsmeta processes",
		Args:  cobra.NoArgs,
		RunE: run(false, func(a *app, args []string) error {
			client, err := broadcast.Connect(a.cfg.Redis.URI)
			if err != nil {
				return err
			}
			defer client.Close()
			w, err := broadcast.Subscribe(client, a.cfg.Redis.Channel, a.log)
			if err != nil {
				return err
			}
			defer w.Close()
			stop := make(chan struct{})
			go func() {
				sig := make(chan os.Signal, 1)
				signal.Notify(sig, os.Interrupt)
				<-sig
				close(stop)
			}()
			renderer := display.NewRenderer(os.Stdout)
			w.Run(stop, func(p *broadcast.Payload) {
				renderer.Render(p.Key, p.Record)
			})
			return nil
		}),
	})

	return rootCmd
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
