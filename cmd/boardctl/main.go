package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/park285/chess-analysis-board/internal/adapter/boardtext"
	"github.com/park285/chess-analysis-board/internal/boardclient"
	"github.com/park285/chess-analysis-board/internal/msgcat"
	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

func usage() {
	fmt.Fprintln(os.Stderr, strings.Join([]string{
		"usage: boardctl [-url URL] <command> [args]",
		"",
		"  snapshot             show the board",
		"  load <file|->        load a PGN",
		"  next | prev | reset  navigate",
		"  move <san|uci>       play a move",
		"  click <sq> <sq>      press and release squares",
		"  promote <q|r|b|n>    finish a pending promotion",
		"  flip                 toggle orientation",
		"  top [n]              ranked candidates",
		"  archive [title]      store the current line",
		"  games [limit]        list stored lines",
		"  open <id>            reopen a stored line",
		"  watch                follow the feed",
	}, "\n"))
}

func main() {
	baseURL := flag.String("url", envDefault("BOARD_URL", "http://localhost:8080"), "board server address")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	msgs, err := msgcat.New(os.Getenv("MESSAGES_DIR"))
	if err != nil {
		log.Fatalf("messages: %v", err)
	}
	f := boardtext.NewFormatter(msgs)
	client := boardclient.NewClient(*baseURL, boardclient.WithTimeout(*timeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, client, f, args); err != nil {
		fmt.Fprintln(os.Stderr, describe(f, err))
		os.Exit(1)
	}
}

func run(ctx context.Context, c *boardclient.Client, f *boardtext.Formatter, args []string) error {
	cmd, rest := strings.ToLower(args[0]), args[1:]
	show := func(snap *analysisdto.Snapshot, err error) error {
		if err != nil {
			return err
		}
		fmt.Println(f.Snapshot(snap))
		return nil
	}

	switch cmd {
	case "snapshot", "show":
		return show(c.Snapshot(ctx))
	case "load":
		pgn, err := readPGN(rest)
		if err != nil {
			return err
		}
		return show(c.LoadPGN(ctx, pgn))
	case "next":
		return show(c.Forward(ctx))
	case "prev":
		return show(c.Backward(ctx))
	case "reset":
		return show(c.Reset(ctx))
	case "flip":
		return show(c.Flip(ctx, nil))
	case "move":
		if len(rest) != 1 {
			return fmt.Errorf("move needs one argument")
		}
		return show(c.Move(ctx, rest[0]))
	case "click":
		if len(rest) != 2 {
			return fmt.Errorf("click needs two squares")
		}
		if _, err := c.PressSquare(ctx, rest[0]); err != nil {
			return err
		}
		return show(c.ReleaseSquare(ctx, rest[1]))
	case "promote":
		if len(rest) != 1 {
			return fmt.Errorf("promote needs a piece")
		}
		return show(c.Promote(ctx, rest[0]))
	case "top":
		n := 0
		if len(rest) > 0 {
			v, err := strconv.Atoi(rest[0])
			if err != nil || v <= 0 {
				return fmt.Errorf("bad count %q", rest[0])
			}
			n = v
		}
		resp, err := c.TopMoves(ctx, n)
		if err != nil {
			return err
		}
		fmt.Println(f.TopMoves(resp))
		return nil
	case "archive":
		game, err := c.Archive(ctx, strings.Join(rest, " "))
		if err != nil {
			return err
		}
		fmt.Println(f.Archives([]*analysisdto.AnalyzedGame{game}))
		return nil
	case "games":
		limit := 10
		if len(rest) > 0 {
			if v, err := strconv.Atoi(rest[0]); err == nil && v > 0 {
				limit = v
			}
		}
		games, err := c.Archives(ctx, limit)
		if err != nil {
			return err
		}
		fmt.Println(f.Archives(games))
		return nil
	case "open":
		if len(rest) != 1 {
			return fmt.Errorf("open needs an id")
		}
		id, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad id %q", rest[0])
		}
		return show(c.Reopen(ctx, id))
	case "watch":
		w := boardclient.NewWatcher(c.FeedURL(), 5, nil)
		return w.Watch(ctx, func(snap analysisdto.Snapshot) bool {
			fmt.Printf("--- #%d %s\n%s\n", snap.Seq, snap.Action, f.Snapshot(&snap))
			return true
		})
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func readPGN(rest []string) (string, error) {
	if len(rest) == 0 || rest[0] == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(rest[0])
	return string(b), err
}

// describe prefers the localized notice for board errors.
func describe(f *boardtext.Formatter, err error) string {
	var apiErr *boardclient.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Err.Message
		if msg == "" {
			msg = f.Notice(apiErr.Err.Code)
		}
		if apiErr.Retryable() {
			msg += " (retry later)"
		}
		return msg
	}
	return err.Error()
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
