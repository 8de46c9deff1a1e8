package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rahul/autopilot/internal/browser"
	"github.com/rahul/autopilot/internal/catalog"
	"github.com/rahul/autopilot/internal/desktop"
	"github.com/rahul/autopilot/internal/engine"
	"github.com/rahul/autopilot/internal/matcher"
	"github.com/rahul/autopilot/internal/observability"
	"github.com/rahul/autopilot/internal/store"
	"github.com/rahul/autopilot/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what PersistentPreRunE loaded to the subcommands.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "autopilot",
		Short:         "Turn plain-language commands into browser automation runs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			observability.InitializeLogger(cfg.Logger)
			a.logger = observability.GetLogger()
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./autopilot.yaml)")

	root.AddCommand(
		newRunCmd(a),
		newMatchCmd(a),
		newPlanCmd(a),
		newCatalogCmd(a),
		newHistoryCmd(a),
		newScheduleCmd(a),
		newServeCmd(a),
	)
	return root
}

// catalogStore loads the configured catalog, or the built-in one when no path
// is set.
func (a *app) catalogStore() (*catalog.Store, error) {
	s := catalog.NewStore(a.logger)
	if a.cfg.Catalog.Path == "" {
		s.Replace(catalog.Default())
		return s, nil
	}
	src, err := catalog.FileSource(a.cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if err := s.Load(src); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *app) matcher(s *catalog.Store) *matcher.Matcher {
	mc := a.cfg.Matcher
	m := matcher.New(matcher.Options{
		Threshold:        mc.Threshold,
		SuggestThreshold: mc.SuggestThreshold,
		TopK:             mc.TopK,
		NGramMax:         mc.NGramMax,
		ExpandSynonyms:   mc.ExpandSynonyms,
	}, a.logger)
	m.Attach(s)
	return m
}

func (a *app) history() (*store.HistoryStore, error) {
	return store.NewHistoryStore(a.cfg.Memory.Path, a.logger)
}

// engine drives a chromedp browser, with xdotool as the desktop fallback when
// enabled.
func (a *app) engine(resolver engine.Resolver, observers ...engine.Observer) *engine.Engine {
	bc := a.cfg.Browser
	b := browser.New(browser.Options{
		Headless:          bc.Headless,
		ExecPath:          bc.ExecPath,
		ActionTimeout:     bc.ActionTimeout,
		NavigationTimeout: bc.NavigationTimeout,
		FindTimeout:       bc.FindTimeout,
	}, a.logger)

	ec := a.cfg.Engine
	options := []engine.Option{engine.WithLogger(a.logger)}
	if ec.DesktopFallback {
		options = append(options, engine.WithDesktop(desktop.New(ec.Display, a.logger)))
	}
	for _, o := range observers {
		options = append(options, engine.WithObserver(o))
	}
	return engine.New(b, resolver, engine.Options{
		StepTimeout:         ec.StepTimeout,
		DefaultWait:         ec.DefaultWait,
		MaxWait:             ec.MaxWait,
		ScreenshotDir:       ec.ScreenshotDir,
		ScreenshotOnFailure: ec.ScreenshotOnFailure,
	}, options...)
}
