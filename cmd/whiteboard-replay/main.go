// whiteboard-replay joins a whiteboard room, or replays its recording, and
// prints what happens in it: phase changes, scene changes, custom events
// and playback progress.
//
// Settings come from a YAML file (--config) and can be overridden with
// flags:
//
//	whiteboard-replay --config room.yaml --replay --play --events chat,cursor
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	whiteboard "github.com/whiteboard-sdk/whiteboard.go"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/config"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/events"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/imageservice"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/logger"
	logslog "github.com/whiteboard-sdk/whiteboard.go/pkg/logger/slog"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/phase"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/scenes"
)

type flags struct {
	configPath   string
	endpoint     string
	imageService string
	codec        string
	logLevel     string
	logFormat    string
	room         string
	token        string
	timeout      time.Duration
	replay       bool
	play         bool
	speed        float64
	events       []string
	highFreq     time.Duration
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var f flags
	fs := pflag.NewFlagSet("whiteboard-replay", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	fs.StringVar(&f.endpoint, "endpoint", "", "engine websocket URL (overrides the file)")
	fs.StringVar(&f.imageService, "image-service", "", "image server base URL (default: ask the engine)")
	fs.StringVar(&f.codec, "codec", "", "wire encoding, cbor or json")
	fs.StringVar(&f.logLevel, "log-level", "", "trace, debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "json", "json or text")
	fs.StringVar(&f.room, "room", "", "room uuid (overrides the file)")
	fs.StringVar(&f.token, "token", "", "room token (overrides the file)")
	fs.DurationVar(&f.timeout, "timeout", 0, "join and reconnect timeout")
	fs.BoolVar(&f.replay, "replay", false, "replay the recording instead of joining live")
	fs.BoolVar(&f.play, "play", false, "start playback once the replay is ready")
	fs.Float64Var(&f.speed, "speed", 1, "playback speed")
	fs.StringSliceVar(&f.events, "events", nil, "custom events to print")
	fs.DurationVar(&f.highFreq, "high-frequency", 0, "coalesce custom events into windows of this length")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	file, err := loadFile(f)
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(f.logFormat, file.LogLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	opts := []whiteboard.Option{
		whiteboard.WithURL(file.Endpoint),
		whiteboard.WithCodec(file.Codec),
		whiteboard.WithLogger(log),
	}
	if file.ImageService != "" {
		svc := imageservice.NewHTTPService(file.ImageService, file.Room.Token)
		svc.Logger = log
		opts = append(opts, whiteboard.WithImageService(svc))
	}

	var extra []config.Option
	if f.timeout > 0 {
		extra = append(extra, config.WithTimeout(f.timeout))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.replay {
		return replay(ctx, f, file, extra, opts)
	}
	return live(ctx, f, file, extra, opts)
}

// newLogger logs JSON through zerolog, or text through log/slog.
func newLogger(format, levelName string) (logger.Logger, func(), error) {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	switch format {
	case "json":
		logData, err := logger.New().Level(level).Make()
		if err != nil {
			return nil, nil, err
		}
		return logData, func() { _ = logData.Close() }, nil
	case "text":
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel(level)})
		return logslog.New(h), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown log format %q", format)
}

func slogLevel(l zerolog.Level) slog.Level {
	switch {
	case l <= zerolog.DebugLevel:
		return slog.LevelDebug
	case l == zerolog.InfoLevel:
		return slog.LevelInfo
	case l == zerolog.WarnLevel:
		return slog.LevelWarn
	}
	return slog.LevelError
}

// loadFile reads the configuration file, if any, and applies the flag
// overrides on top.
func loadFile(f flags) (*config.File, error) {
	file := config.DefaultFile()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	for _, o := range []struct {
		dst *string
		v   string
	}{
		{&file.Endpoint, f.endpoint},
		{&file.ImageService, f.imageService},
		{&file.Codec, f.codec},
		{&file.LogLevel, f.logLevel},
		{&file.Room.UUID, f.room},
		{&file.Room.Token, f.token},
	} {
		if o.v != "" {
			*o.dst = o.v
		}
	}
	if file.Endpoint == "" {
		return nil, errors.New("no engine endpoint: set endpoint in the config file or pass --endpoint")
	}
	return file, nil
}

func live(ctx context.Context, f flags, file *config.File, extra []config.Option, opts []whiteboard.Option) error {
	cfg, err := file.RoomConfig(extra...)
	if err != nil {
		return err
	}
	room, err := whiteboard.Connect(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	watch(room.AddPhaseListener, room.AddDisconnectListener, room.AddSceneListener)

	if _, err := room.Joined().Await(ctx); err != nil {
		return waitClosed(room.Disconnect(), err)
	}
	fmt.Printf("joined %s as observer %d (writable: %v)\n", room.UUID(), room.ObserverID(), room.Writable())
	listScenes(room.GetEntireScenes())
	subscribe(f, room.AddMagixEventListener, room.AddHighFrequencyEventListener)

	return serve(ctx, room.Closed(), room.Disconnect)
}

func replay(ctx context.Context, f flags, file *config.File, extra []config.Option, opts []whiteboard.Option) error {
	cfg, err := file.PlayerConfig(extra...)
	if err != nil {
		return err
	}
	player, err := whiteboard.Replay(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	watch(player.AddPhaseListener, player.AddDisconnectListener, player.AddSceneListener)
	player.AddPlayerPhaseListener(func(p phase.PlayerPhase) {
		fmt.Printf("player: %s\n", p)
	})
	player.AddScheduleTimeListener(func(t time.Duration) {
		fmt.Printf("at %s of %s\n", t, player.Duration())
	})

	if _, err := player.Ready().Await(ctx); err != nil {
		return waitClosed(player.Disconnect(), err)
	}
	fmt.Printf("replaying %s (%s)\n", player.UUID(), player.Duration())
	listScenes(player.GetEntireScenes())
	subscribe(f, player.AddMagixEventListener, player.AddHighFrequencyEventListener)

	if f.speed != 1 {
		if _, err := player.SetPlaybackSpeed(f.speed).Await(ctx); err != nil {
			return waitClosed(player.Disconnect(), err)
		}
	}
	if f.play {
		if _, err := player.Play().Await(ctx); err != nil {
			return waitClosed(player.Disconnect(), err)
		}
	}
	return serve(ctx, player.Closed(), player.Disconnect)
}

func watch(
	onPhase func(func(phase.Change)) whiteboard.ListenerID,
	onDisconnect func(func(error)) whiteboard.ListenerID,
	onScene func(func(scenes.State)) whiteboard.ListenerID,
) {
	onPhase(func(c phase.Change) {
		if c.Cause != nil {
			fmt.Printf("phase: %s -> %s (%v)\n", c.From, c.To, c.Cause)
			return
		}
		fmt.Printf("phase: %s -> %s\n", c.From, c.To)
	})
	onDisconnect(func(err error) {
		fmt.Printf("disconnected: %v\n", err)
	})
	onScene(func(s scenes.State) {
		fmt.Printf("scene: %s (%d/%d)\n", s.ScenePath, s.Index+1, len(s.Scenes))
	})
}

func subscribe(
	f flags,
	plain func(string, events.Handler) *whiteboard.Future[struct{}],
	windowed func(string, time.Duration, events.BatchHandler) (time.Duration, *whiteboard.Future[struct{}]),
) {
	for _, name := range f.events {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if f.highFreq > 0 {
			interval, _ := windowed(name, f.highFreq, func(batch []events.Event) {
				for _, ev := range batch {
					printEvent(ev)
				}
			})
			fmt.Printf("listening for %s every %s\n", name, interval)
			continue
		}
		plain(name, printEvent)
		fmt.Printf("listening for %s\n", name)
	}
}

func printEvent(ev events.Event) {
	fmt.Printf("event %s from %d: %v\n", ev.Name, ev.AuthorID, ev.Payload)
}

func listScenes(entire map[string][]scenes.Scene) {
	dirs := make([]string, 0, len(entire))
	for dir := range entire {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		for _, s := range entire[dir] {
			fmt.Println(scenes.Join(dir, s.Name))
		}
	}
}

// serve blocks until the session ends on its own or ctx is cancelled, in
// which case it leaves the room.
func serve(ctx context.Context, closed *whiteboard.Future[struct{}], disconnect func() *whiteboard.Future[struct{}]) error {
	select {
	case <-closed.Done():
		return nil
	case <-ctx.Done():
	}
	return waitClosed(disconnect(), nil)
}

func waitClosed(closed *whiteboard.Future[struct{}], cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := closed.Await(ctx); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
