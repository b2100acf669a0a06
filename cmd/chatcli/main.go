package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"quacker/backend/internal/feed"
	"quacker/backend/internal/models"
	"quacker/backend/pkg/logger"

	env "github.com/Netflix/go-env"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config holds the environment defaults; flags override them
type Config struct {
	Server   string `env:"CHAT_SERVER,default=http://localhost:3000"`
	Nickname string `env:"CHAT_NICKNAME"`
	Interval string `env:"CHAT_INTERVAL,default=3s"`
	Limit    int    `env:"CHAT_LIMIT,default=10"`
	LogLevel string `env:"LOG_LEVEL,default=warn"`
}

func main() {
	code, err := run(os.Args[1:], os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatcli: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string, in io.Reader, out io.Writer) (int, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	fs := flag.NewFlagSet("chatcli", flag.ContinueOnError)
	server := fs.String("server", cfg.Server, "chat server base URL")
	nickname := fs.String("nickname", cfg.Nickname, "nickname to log in with")
	interval := fs.String("interval", cfg.Interval, "poll interval")
	limit := fs.Int("limit", cfg.Limit, "messages per page")
	if err := fs.Parse(args); err != nil {
		return exitConfig, err
	}

	every, err := time.ParseDuration(*interval)
	if err != nil || every <= 0 {
		return exitConfig, fmt.Errorf("invalid interval %q", *interval)
	}
	if strings.TrimSpace(*nickname) == "" {
		return exitConfig, errors.New("a nickname is required (-nickname or CHAT_NICKNAME)")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := feed.NewHTTPClient(*server, nil)
	if err != nil {
		return exitConfig, err
	}

	p := &printer{out: out}
	client := feed.NewClient(api, feed.ClientOptions{
		Limit:    *limit,
		Interval: every,
		OnNewer:  p.newer,
		OnOlder:  p.older,
		Logger:   log,
	})

	nick, err := client.Login(ctx, *nickname)
	if err != nil {
		return exitRuntime, fmt.Errorf("login: %w", err)
	}
	p.line("logged in as %s (/more for history, /quit to leave)", nick)

	if _, err := client.LoadMore(ctx); err != nil {
		return exitRuntime, fmt.Errorf("load history: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		client.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := client.Watch(ctx); err != nil {
			log.Warn("notifications unavailable, polling only", "error", err.Error())
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	code, err := readLoop(ctx, client, lines, p)
	stop()
	wg.Wait()
	return code, err
}

func readLoop(ctx context.Context, client *feed.Client, lines <-chan string, p *printer) (int, error) {
	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			switch text := strings.TrimSpace(line); text {
			case "":
			case "/quit":
				return exitOK, nil
			case "/more":
				if client.Manager.Exhausted() {
					p.line("-- start of history --")
					continue
				}
				if _, err := client.LoadMore(ctx); err != nil {
					p.line("! could not load history: %v", err)
				}
			default:
				if err := client.Post(ctx, text); err != nil {
					if feed.IsUnauthenticated(err) {
						return exitRuntime, errors.New("session expired")
					}
					p.line("! not sent: %v", err)
				}
			}
		}
	}
}

// printer serializes terminal output from the poll and input goroutines
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) line(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) message(m models.Message) {
	p.line("[%s] %s: %s", time.Unix(m.CreatedAt, 0).Format("2006-01-02 15:04"), m.Author, m.Body)
}

// newer batches arrive newest first; print them in reading order
func (p *printer) newer(batch []models.Message) {
	for i := len(batch) - 1; i >= 0; i-- {
		p.message(batch[i])
	}
}

func (p *printer) older(batch []models.Message) {
	if len(batch) == 0 {
		return
	}
	p.line("-- older --")
	p.newer(batch)
	if feed.IsLastPage(batch) {
		p.line("-- start of history --")
	}
}
