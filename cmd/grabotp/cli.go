package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jefe-johann/grab-otp/internal/config"
	apperrors "github.com/jefe-johann/grab-otp/internal/errors"
	"github.com/jefe-johann/grab-otp/internal/gmail"
	"github.com/jefe-johann/grab-otp/internal/logger"
	"github.com/jefe-johann/grab-otp/internal/model"
	"github.com/jefe-johann/grab-otp/internal/platform"
	"github.com/jefe-johann/grab-otp/internal/tui"
	"github.com/jefe-johann/grab-otp/internal/util"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const pageFetchTimeout = 10 * time.Second

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "grabotp",
		Usage:   "Fetch the latest one-time code for a site from Gmail",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Usage: "Configuration directory (default ~/.config/grabotp)", EnvVars: []string{"GRABOTP_CONFIG_DIR"}},
			&cli.BoolFlag{Name: "debug", Usage: "Verbose logging"},
		},
		Commands: []*cli.Command{
			popupCmd(),
			fetchCmd(),
			prefCmd(),
			logoutCmd(),
		},
		Action: func(c *cli.Context) error {
			return runPopup(c, nil, "")
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func configDir(c *cli.Context) (string, error) {
	if dir := c.String("config-dir"); dir != "" {
		return dir, nil
	}
	return config.DefaultDir()
}

func loadConfig(c *cli.Context) (string, *config.Config, error) {
	dir, err := configDir(c)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return "", nil, err
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}
	return dir, cfg, nil
}

func popupCmd() *cli.Command {
	return &cli.Command{
		Name:  "popup",
		Usage: "Open the interactive popup (default)",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "url", Aliases: []string{"u"}, Usage: "Open a tab for this URL (repeatable; the last one is active)"},
			&cli.StringFlag{Name: "page", Usage: "HTML file to use as the last tab's document instead of fetching it"},
		},
		Action: func(c *cli.Context) error {
			return runPopup(c, c.StringSlice("url"), c.String("page"))
		},
	}
}

func runPopup(c *cli.Context, urls []string, pageFile string) error {
	dir, cfg, err := loadConfig(c)
	if err != nil {
		return outputError(err)
	}
	// The terminal belongs to the popup, so logs go to a file.
	log, err := logger.NewFile(filepath.Join(dir, "grabotp.log"), cfg.Debug)
	if err != nil {
		return outputError(err)
	}
	defer log.Sync()

	desktop, caps, err := platform.NewDesktop(dir, cfg, os.Stdout, log)
	if err != nil {
		return outputError(err)
	}
	defer desktop.Close()

	stopMetrics := serveMetrics(cfg.MetricsAddr, log)
	defer stopMetrics()

	for i, u := range urls {
		file := ""
		if i == len(urls)-1 {
			file = pageFile
		}
		if err := openTab(c.Context, desktop, u, file, log); err != nil {
			return outputError(err)
		}
	}

	rt := platform.Assemble(caps, platform.MailClient(cfg, log), cfg, true, log)
	app := tui.NewAppModel(rt.Coordinator, desktop.Host, desktop.Store, log.Named("popup"))
	p := tea.NewProgram(app, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return outputError(err)
	}
	// Closing the popup does not cancel a run in flight.
	rt.Coordinator.Wait()
	if m, ok := finalModel.(*tui.AppModel); ok && m.Err != nil {
		return outputError(m.Err)
	}
	return nil
}

func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Retrieve a code once and print the outcome as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "domain", Aliases: []string{"d"}, Usage: "Sender domain to search for"},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Page URL; its host is the domain when --domain is not set"},
			&cli.StringFlag{Name: "page", Usage: "HTML file to use as the page document"},
			&cli.BoolFlag{Name: "auto-fill", Usage: "Fill the code into the page as well as copying it"},
			&cli.BoolFlag{Name: "print-page", Usage: "Print the page HTML after filling"},
		},
		Action: func(c *cli.Context) error {
			dir, cfg, err := loadConfig(c)
			if err != nil {
				return outputError(err)
			}
			log, err := logger.New(cfg.Debug)
			if err != nil {
				return outputError(err)
			}
			defer log.Sync()

			domain := util.NormalizeDomain(c.String("domain"))
			if domain == "" {
				domain = util.NormalizeDomain(c.String("url"))
			}
			if domain == "" {
				return outputError(errors.New("--domain or --url is required"))
			}

			desktop, caps, err := platform.NewDesktop(dir, cfg, os.Stderr, log)
			if err != nil {
				return outputError(err)
			}
			defer desktop.Close()

			stopMetrics := serveMetrics(cfg.MetricsAddr, log)
			defer stopMetrics()

			tab := model.NoTab
			if u := c.String("url"); u != "" {
				if err := openTab(c.Context, desktop, u, c.String("page"), log); err != nil {
					return outputError(err)
				}
				if t, ok := desktop.Host.ActiveTab(); ok {
					tab = t.ID
				}
			}

			rt := platform.Assemble(caps, platform.MailClient(cfg, log), cfg, true, log)
			autoFill := c.Bool("auto-fill")
			if autoFill && tab != model.NoTab {
				resp := rt.Coordinator.HandleMessage(c.Context, model.Message{Action: model.ActionInjectionBridge, Tab: tab})
				if !resp.OK {
					log.Info("auto-fill unavailable", zap.String("reason", resp.Error))
				} else {
					waitForBridge(rt, tab)
				}
			}

			resp := rt.Coordinator.HandleMessage(c.Context, model.Message{
				Action:   model.ActionFetchRequest,
				Domain:   domain,
				AutoFill: autoFill,
				Tab:      tab,
			})
			if !resp.OK {
				return outputError(errors.New(resp.Error))
			}
			rt.Coordinator.Wait()

			out, ok, err := desktop.Store.LoadOutcome(c.Context)
			if err != nil {
				return outputError(err)
			}
			if !ok {
				return outputError(errors.New("no outcome recorded"))
			}
			if c.Bool("print-page") && tab != model.NoTab {
				// Let the agent apply the fill before the page is rendered.
				time.Sleep(100 * time.Millisecond)
				if err := printPage(desktop, tab, c.App.Writer); err != nil {
					return outputError(err)
				}
			}
			if err := outputJSON(c.App.Writer, out); err != nil {
				return err
			}
			if !out.Success {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func prefCmd() *cli.Command {
	return &cli.Command{
		Name:  "pref",
		Usage: "Show or change preferences",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "auto-fill", Usage: "Fill codes into the page when possible"},
		},
		Action: func(c *cli.Context) error {
			dir, err := configDir(c)
			if err != nil {
				return outputError(err)
			}
			st, err := platform.OpenStore(dir)
			if err != nil {
				return outputError(err)
			}
			defer st.Close()

			if c.IsSet("auto-fill") {
				if err := st.SetAutoFill(c.Context, c.Bool("auto-fill")); err != nil {
					return outputError(err)
				}
			}
			on, err := st.AutoFill(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]bool{"auto_fill": on})
		},
	}
}

func logoutCmd() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the cached credential and the stored refresh token",
		Action: func(c *cli.Context) error {
			dir, err := configDir(c)
			if err != nil {
				return outputError(err)
			}
			st, err := platform.OpenStore(dir)
			if err != nil {
				return outputError(err)
			}
			defer st.Close()

			if err := st.PurgeCredential(c.Context); err != nil {
				return outputError(err)
			}
			if err := gmail.ForgetToken(dir); err != nil {
				return outputError(err)
			}
			fmt.Fprintln(c.App.Writer, "Signed out.")
			return nil
		},
	}
}

// openTab opens rawURL in the desktop tab host. The document comes from file
// when given, otherwise from the network; an unreachable page opens empty.
func openTab(ctx context.Context, d *platform.Desktop, rawURL, file string, log *zap.Logger) error {
	var body io.Reader = strings.NewReader("")
	switch {
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("open page %s: %w", file, err)
		}
		defer f.Close()
		body = f
	case strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://"):
		ctx, cancel := context.WithTimeout(ctx, pageFetchTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("build request for %s: %w", rawURL, err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Warn("fetch page", zap.String("url", rawURL), zap.Error(err))
			break
		}
		defer resp.Body.Close()
		body = resp.Body
	}
	_, err := d.Host.Open(rawURL, body)
	return err
}

func waitForBridge(rt *platform.Runtime, tab model.TabID) {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !rt.Coordinator.Live(tab) {
		time.Sleep(10 * time.Millisecond)
	}
}

func printPage(d *platform.Desktop, tab model.TabID, w io.Writer) error {
	t, ok := d.Host.Tab(tab)
	if !ok {
		return fmt.Errorf("tab %d is gone", tab)
	}
	return t.Render(w)
}

// serveMetrics serves Prometheus metrics on addr until the returned func is called.
func serveMetrics(addr string, log *zap.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// outputJSON marshals v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
