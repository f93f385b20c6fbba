package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"chatsync/internal/reconcile"
	"chatsync/pkg/broadcast"
	"chatsync/pkg/codec"
	"chatsync/pkg/config"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/notify"
	"chatsync/pkg/readstate"
	"chatsync/pkg/session"
	"chatsync/pkg/store"
	"chatsync/pkg/transport"
)

// attachList collects repeated -attach flags.
type attachList []string

func (a *attachList) String() string     { return strings.Join(*a, ",") }
func (a *attachList) Set(v string) error { *a = append(*a, v); return nil }

func main() {
	_ = godotenv.Load(".env")

	var attach attachList
	cfgFlag := flag.String("config", "", "path to config yaml")
	room := flag.String("room", "room-42", "room to join")
	roleFlag := flag.String("role", "student", "local role: admin, student or coach")
	text := flag.String("text", "", "message text to send")
	listen := flag.Duration("listen", 0, "stay connected this long and print incoming messages")
	flag.Var(&attach, "attach", "file to attach (repeatable)")
	flag.Parse()

	cfg, err := config.LoadEffective(*cfgFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.InitWithLevel(cfg.Logging.Level)

	role := models.Role(*roleFlag)
	if !role.Valid() {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *roleFlag)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	tracker := readstate.NewTracker(st, broadcast.Default)
	notifier := notify.NewThrottled(notify.Func(func(title, body string) {
		fmt.Printf("** %s: %s\n", title, body)
	}), cfg.Notify.PerSecond, cfg.Notify.Burst)

	sess := session.New(session.Options{
		Room:           *room,
		Role:           role,
		Tracker:        tracker,
		Notifier:       notifier,
		TransportLabel: cfg.Transport.Mode,
	}, func(ev transport.Events) transport.Transport {
		if cfg.Transport.Mode == config.ModeNetwork {
			return transport.NewNetwork(cfg.Transport.RelayURL, *room, ev)
		}
		return transport.NewLocal(st, broadcast.Default, *room, ev)
	})
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Connect(ctx); err != nil {
		logger.Warn("connect_failed", "error", err, "msg", "sends will queue until connected")
	}

	if cfg.Reconcile.Enabled && cfg.Transport.Mode == config.ModeLocal {
		sweeper := reconcile.NewSweeper()
		sweeper.Register(*room, sess)
		stop, err := sweeper.Start(ctx, cfg.Reconcile.Cron)
		if err != nil {
			logger.Warn("reconcile_disabled", "error", err)
		} else {
			defer stop()
		}
	}

	if *text != "" || len(attach) > 0 {
		files := make([]codec.File, 0, len(attach))
		for _, path := range attach {
			files = append(files, fileFromPath(path))
		}
		if err := sess.Send(*text, files); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			os.Exit(1)
		}
	}

	if *listen > 0 {
		time.Sleep(*listen)
	} else {
		// give a queued or live send a moment to settle before printing
		time.Sleep(200 * time.Millisecond)
	}

	printLog(sess, role)
}

func fileFromPath(path string) codec.File {
	mt := mime.TypeByExtension(filepath.Ext(path))
	if mt == "" {
		mt = "application/octet-stream"
	}
	return codec.File{
		Name: filepath.Base(path),
		Mime: mt,
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

func printLog(sess *session.Session, self models.Role) {
	for _, day := range sess.GroupedLog() {
		if day.Date != "" {
			fmt.Printf("---- %s ----\n", day.Date)
		}
		for _, m := range day.Messages {
			marker := " "
			if m.Sender == self {
				marker = ">"
			}
			line := m.Text
			if line == "" && len(m.Attachments) > 0 {
				line = "(" + m.Attachments[0].Name + ")"
			}
			fmt.Printf("%s [%s] %s\n", marker, m.Sender, line)
			for _, a := range m.Attachments {
				fmt.Printf("    attachment: %s (%s, %d bytes)\n", a.Name, a.Mime, a.Size)
			}
		}
	}
	if n := sess.QueueLen(); n > 0 {
		fmt.Printf("%d message(s) queued for delivery\n", n)
	}
}
