// Command meridian is a terminal client for the Meridian agency platform.
// It signs in against the platform API, reads blogs, services, contacts, and
// service requests through the shared resource cache, and performs writes
// through the mutation coordinator.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meridianhq/meridian-go/internal/api"
	"github.com/meridianhq/meridian-go/internal/cache"
	"github.com/meridianhq/meridian-go/internal/config"
	"github.com/meridianhq/meridian-go/internal/logging"
	"github.com/meridianhq/meridian-go/internal/metrics"
	"github.com/meridianhq/meridian-go/internal/model"
	"github.com/meridianhq/meridian-go/internal/mutate"
	"github.com/meridianhq/meridian-go/internal/session"
)

const usage = `usage: meridian [flags] <command> [args]

commands:
  login <email>                      sign in as an admin (password on stdin)
  logout                             revoke and discard the current session
  whoami                             show the authenticated profile
  blogs list [search]                list blogs
  blogs feed [max-pages]             walk all blog pages, deduplicated
  blogs get <id>                     show one blog
  blogs create <title> <content>     create a blog
  blogs like <id>                    toggle a like on a blog
  blogs delete <id>                  delete a blog (asks for confirmation)
  services list                      list catalog services
  services get <id>                  show one service
  services toggle <id>               flip a service active/inactive
  requests list                      list service requests
  requests status <id> <status>      transition a request (admin)
  contact <name> <email> <subject> <message>
                                     submit the public contact form
  stats                              show cache size and freshness windows
`

func main() {
	var (
		configFile    = flag.String("config", "", "path to client configuration file")
		envPrefix     = flag.String("env-prefix", "MERIDIAN", "environment variable prefix")
		metricsListen = flag.String("metrics-listen", "", "optional address to serve /metrics on")
		watchConfig   = flag.Bool("watch", false, "reload configuration on file change")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("client setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := app.close(shutdownCtx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	if *metricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", app.metrics.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsListen, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", slog.Any("error", err))
			}
		}()
	}

	if *watchConfig && *configFile != "" {
		watcher, err := loader.Watch(ctx, func(next config.Config) {
			logger.Info("configuration reloaded, dropping cached entries")
			for _, namespace := range []string{
				mutate.NamespaceBlogs, mutate.NamespaceServices,
				mutate.NamespaceContacts, mutate.NamespaceRequests,
			} {
				if err := app.cache.Invalidate(ctx, cache.NamespacePrefix(namespace)); err != nil {
					logger.Warn("cache invalidation failed", slog.String("namespace", namespace), slog.Any("error", err))
				}
			}
		}, func(err error) {
			logger.Error("config watcher error", slog.Any("error", err))
		})
		if err != nil {
			logger.Error("config watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	if err := app.run(ctx, flag.Args(), os.Stdout, os.Stdin); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		logger.Error("command failed", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

// app bundles the wired client stack behind the command dispatch.
type app struct {
	cfg         config.Config
	log         *slog.Logger
	metrics     *metrics.Recorder
	cache       *cache.ResourceCache
	session     *session.Manager
	dispatcher  *session.Dispatcher
	coordinator *mutate.Coordinator

	admins   *api.AdminClient
	blogs    *api.BlogClient
	services *api.ServiceClient
	requests *api.ServiceRequestClient
	contacts *api.ContactClient
}

func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	recorder := metrics.NewRecorder(prometheus.NewRegistry())

	client, err := api.New(cfg.API.BaseURL, api.Options{
		HTTPClient:     &http.Client{Timeout: cfg.API.Timeout()},
		Logger:         logger,
		Metrics:        recorder,
		ThrottleLimit:  cfg.API.Throttle.Requests,
		ThrottleWindow: cfg.API.Throttle.Window(),
		OnThrottleWait: func(domain string, wait time.Duration) {
			fmt.Fprintf(os.Stderr, "please slow down: waiting %s before the next %s call\n", wait.Round(time.Millisecond), domain)
		},
	})
	if err != nil {
		return nil, err
	}

	store := buildEntryStore(logger, cfg.Cache)
	resources := cache.NewResource(store, cache.Options{
		ListFreshness:   cfg.Cache.ListFreshness(),
		DetailFreshness: cfg.Cache.DetailFreshness(),
		EntryTTL:        cfg.Cache.EntryTTL(),
		RetryAttempts:   cfg.API.Retry.Attempts,
		Logger:          logger,
		Metrics:         recorder,
	})

	admins := api.NewAdmin(client)
	blogs := api.NewBlog(client)
	services := api.NewService(client)
	requests := api.NewServiceRequest(client)
	contacts := api.NewContact(client)

	credentials := session.NewStore(cfg.Session.CredentialsFile)
	manager := session.NewManager(session.KindAdmin, credentials, admins, session.ManagerOptions{
		Logger:        logger,
		RefreshLeeway: cfg.Session.RefreshLeeway(),
	})

	coordinator := mutate.New(mutate.Options{
		Blogs:    blogs,
		Services: services,
		Requests: requests,
		Contacts: contacts,
		Cache:    resources,
		Logger:   logger,
		Metrics:  recorder,
	})

	return &app{
		cfg:         cfg,
		log:         logger,
		metrics:     recorder,
		cache:       resources,
		session:     manager,
		dispatcher:  session.NewDispatcher(manager),
		coordinator: coordinator,
		admins:      admins,
		blogs:       blogs,
		services:    services,
		requests:    requests,
		contacts:    contacts,
	}, nil
}

func (a *app) close(ctx context.Context) error {
	a.session.WaitIdle()
	return a.cache.Close(ctx)
}

// run dispatches one command. Every command bootstraps the session first so
// stored credentials are restored and near-expiry tokens refreshed before
// any request goes out.
func (a *app) run(ctx context.Context, args []string, out io.Writer, in io.Reader) error {
	if len(args) == 0 {
		return errUsage
	}
	if err := a.session.Bootstrap(ctx); err != nil {
		return err
	}

	switch args[0] {
	case "login":
		if len(args) != 2 {
			return errUsage
		}
		return a.login(ctx, args[1], in, out)
	case "logout":
		return a.logout(ctx, out)
	case "whoami":
		return a.whoami(out)
	case "blogs":
		return a.runBlogs(ctx, args[1:], out, in)
	case "services":
		return a.runServices(ctx, args[1:], out)
	case "requests":
		return a.runRequests(ctx, args[1:], out)
	case "contact":
		if len(args) != 5 {
			return errUsage
		}
		contact, err := a.coordinator.SubmitContact(ctx, api.ContactForm{
			Name: args[1], Email: args[2], Subject: args[3], Message: args[4],
		})
		if err != nil {
			return err
		}
		return printJSON(out, contact)
	case "stats":
		size, err := a.cache.Size(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{
			"entries":         size,
			"listFreshness":   a.cache.ListFreshness().String(),
			"detailFreshness": a.cache.DetailFreshness().String(),
		})
	default:
		return errUsage
	}
}

func (a *app) login(ctx context.Context, email string, in io.Reader, out io.Writer) error {
	fmt.Fprint(os.Stderr, "password: ")
	password, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}
	password = strings.TrimRight(password, "\r\n")

	result, err := a.admins.Login(ctx, email, password)
	if err != nil {
		return describeFailure(err)
	}
	if err := a.session.Establish(result); err != nil {
		return err
	}
	fmt.Fprintf(out, "signed in as %s (%s)\n", result.Profile.Name, result.Profile.Role)
	return nil
}

func (a *app) logout(ctx context.Context, out io.Writer) error {
	// Revoke server-side while the token is still at hand, then drop local
	// state regardless of the revocation outcome.
	err := a.dispatcher.Do(ctx, func(ctx context.Context, token string) error {
		if token == "" {
			return nil
		}
		return a.admins.Logout(ctx, token)
	})
	if err != nil {
		a.log.Warn("server-side logout failed", slog.Any("error", err))
	}
	if err := a.session.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(out, "signed out")
	return nil
}

func (a *app) whoami(out io.Writer) error {
	actor, ok := a.session.Actor()
	if !ok {
		fmt.Fprintln(out, "not signed in")
		return nil
	}
	return printJSON(out, actor)
}

func (a *app) runBlogs(ctx context.Context, args []string, out io.Writer, in io.Reader) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "list":
		params := api.ListParams{}
		if len(args) > 1 {
			params.Search = args[1]
		}
		payload, err := a.cache.QueryList(ctx, mutate.NamespaceBlogs, params.Map(), func(ctx context.Context) (any, error) {
			return a.blogs.List(ctx, params)
		})
		if err != nil {
			return describeFailure(err)
		}
		return printRaw(out, payload)
	case "feed":
		maxPages := 10
		if len(args) > 1 {
			parsed, err := strconv.Atoi(args[1])
			if err != nil || parsed < 1 {
				return errUsage
			}
			maxPages = parsed
		}
		return a.blogFeed(ctx, maxPages, out)
	case "get":
		if len(args) != 2 {
			return errUsage
		}
		payload, err := a.cache.QueryDetail(ctx, mutate.NamespaceBlogs, args[1], func(ctx context.Context) (any, error) {
			return a.blogs.Get(ctx, args[1])
		})
		if err != nil {
			return describeFailure(err)
		}
		return printRaw(out, payload)
	case "create":
		if len(args) != 3 {
			return errUsage
		}
		result, err := session.Call(ctx, a.dispatcher, func(ctx context.Context, token string) (mutate.CreateBlogResult, error) {
			return a.coordinator.CreateBlog(ctx, token, api.BlogDraft{Title: args[1], Content: args[2]}, nil)
		})
		if err != nil {
			return describeFailure(err)
		}
		return printJSON(out, result.Blog)
	case "like":
		if len(args) != 2 {
			return errUsage
		}
		actor, ok := a.session.Actor()
		if !ok {
			return errors.New("sign in before liking a blog")
		}
		blog, err := session.Call(ctx, a.dispatcher, func(ctx context.Context, token string) (any, error) {
			return a.coordinator.ToggleBlogLike(ctx, token, args[1], actor.ID)
		})
		if err != nil {
			return describeFailure(err)
		}
		return printJSON(out, blog)
	case "delete":
		if len(args) != 2 {
			return errUsage
		}
		if !confirm(in, fmt.Sprintf("delete blog %s? [y/N] ", args[1])) {
			fmt.Fprintln(out, "aborted")
			return nil
		}
		result, err := session.Call(ctx, a.dispatcher, func(ctx context.Context, token string) (api.DeleteResult, error) {
			return a.coordinator.DeleteBlog(ctx, token, args[1], true)
		})
		if err != nil {
			return describeFailure(err)
		}
		fmt.Fprintln(out, result.Message)
		return nil
	default:
		return errUsage
	}
}

// blogFeed walks the paged blog listing into a deduplicated feed. Entities
// drifting between pages while paging appear exactly once.
func (a *app) blogFeed(ctx context.Context, maxPages int, out io.Writer) error {
	feed := cache.NewFeed(func(b model.Blog) string { return b.ID })
	for page := 1; page <= maxPages; page++ {
		list, err := a.blogs.List(ctx, api.ListParams{Page: page})
		if err != nil {
			return describeFailure(err)
		}
		feed.Append(list.Items, list.Page.Page, list.Page.Pages)
		if !feed.HasMore() {
			break
		}
	}
	return printJSON(out, feed.Items())
}

func (a *app) runServices(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "list":
		params := api.ListParams{}
		payload, err := a.cache.QueryList(ctx, mutate.NamespaceServices, params.Map(), func(ctx context.Context) (any, error) {
			return a.services.List(ctx, params)
		})
		if err != nil {
			return describeFailure(err)
		}
		return printRaw(out, payload)
	case "get":
		if len(args) != 2 {
			return errUsage
		}
		payload, err := a.cache.QueryDetail(ctx, mutate.NamespaceServices, args[1], func(ctx context.Context) (any, error) {
			return a.services.Get(ctx, args[1])
		})
		if err != nil {
			return describeFailure(err)
		}
		return printRaw(out, payload)
	case "toggle":
		if len(args) != 2 {
			return errUsage
		}
		service, err := session.Call(ctx, a.dispatcher, func(ctx context.Context, token string) (any, error) {
			return a.coordinator.ToggleServiceStatus(ctx, token, args[1])
		})
		if err != nil {
			return describeFailure(err)
		}
		return printJSON(out, service)
	default:
		return errUsage
	}
}

func (a *app) runRequests(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "list":
		list, err := session.Call(ctx, a.dispatcher, func(ctx context.Context, token string) (api.ServiceRequestList, error) {
			return a.requests.AdminAll(ctx, token, api.ListParams{})
		})
		if err != nil {
			return describeFailure(err)
		}
		return printJSON(out, list)
	case "status":
		if len(args) != 3 {
			return errUsage
		}
		request, err := session.Call(ctx, a.dispatcher, func(ctx context.Context, token string) (any, error) {
			return a.coordinator.SetRequestStatus(ctx, token, args[1], args[2])
		})
		if err != nil {
			return describeFailure(err)
		}
		return printJSON(out, request)
	default:
		return errUsage
	}
}

func buildEntryStore(logger *slog.Logger, cfg config.CacheConfig) cache.Store {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		logger.Debug("using memory entry store", slog.Duration("ttl", cfg.EntryTTL()))
		return cache.NewMemory(cfg.EntryTTL())
	case "redis":
		store, err := cache.NewRedis(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: cache.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		})
		if err != nil {
			logger.Error("redis entry store initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory entry store")
			return cache.NewMemory(cfg.EntryTTL())
		}
		logger.Debug("using redis entry store", slog.String("address", cfg.Redis.Address))
		return store
	default:
		logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return cache.NewMemory(cfg.EntryTTL())
	}
}

// describeFailure turns the shared error shape into operator-friendly text.
func describeFailure(err error) error {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case api.IsValidation(err) && len(apiErr.Fields) > 0:
		var b strings.Builder
		b.WriteString(apiErr.Message)
		for field, msg := range apiErr.Fields {
			fmt.Fprintf(&b, "\n  %s: %s", field, msg)
		}
		return errors.New(b.String())
	case api.IsRateLimited(err) && apiErr.RetryAfter > 0:
		return fmt.Errorf("%s (retry in %s)", apiErr.Message, apiErr.RetryAfter.Round(time.Second))
	default:
		return errors.New(apiErr.Message)
	}
}

func confirm(in io.Reader, prompt string) bool {
	fmt.Fprint(os.Stderr, prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func printJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printRaw(out io.Writer, payload json.RawMessage) error {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		_, werr := out.Write(payload)
		return werr
	}
	return printJSON(out, v)
}
