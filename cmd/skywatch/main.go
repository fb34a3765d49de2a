package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"skywatch/internal/notify"
	"skywatch/internal/pipeline"
	"skywatch/internal/source"
	"skywatch/internal/stats"
	"skywatch/internal/store"
	"skywatch/internal/track"
	"skywatch/internal/ws"
)

const defaultEnvFile = ".env"

func main() {
	// Env values feed the flag defaults, so the env file must be loaded
	// before the flags below are declared. The -env flag itself is
	// pre-scanned from the raw arguments for the same reason.
	godotenv.Load(envFileArg(os.Args[1:]))

	var (
		sourceF   = flag.String("source", envOr("SKYWATCH_SOURCE", "demo"), "Video source: rtsp://, http://, /dev/videoN, a file path, or 'demo'")
		fpsF      = flag.Int("fps", 10, "Capture frame rate")
		widthF    = flag.Int("width", 640, "Capture width (V4L2 and demo sources)")
		heightF   = flag.Int("height", 480, "Capture height (V4L2 and demo sources)")
		httpAddrF = flag.String("http-addr", envOr("SKYWATCH_HTTP_ADDR", ":8080"), "HTTP listen address")
		dbF       = flag.String("db", envOr("SKYWATCH_DB", "skywatch.db"), "SQLite database path")
		configF   = flag.String("config", "", "Optional JSON config file overriding pipeline defaults")
		_         = flag.String("env", defaultEnvFile, "Env file loaded before flags are read")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[skywatch] ", log.Ltime)

	cfg := pipeline.DefaultConfig()
	if *configF != "" {
		data, err := os.ReadFile(*configF)
		if err != nil {
			logger.Fatalf("read config: %s", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			logger.Fatalf("parse config: %s", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %s", err)
	}

	src, err := openSource(*sourceF, *fpsF, *widthF, *heightF)
	if err != nil {
		logger.Fatalf("open source: %s", err)
	}

	db, err := store.Open(*dbF)
	if err != nil {
		logger.Fatalf("open store: %s", err)
	}
	defer db.Close()

	streamStats := stats.NewStream(cfg.StatsWindow)
	queue := pipeline.NewFrameQueue(cfg.QueueDepth)
	bus := pipeline.NewEventBus()
	hub := ws.NewHub()

	worker := pipeline.NewProcessingWorker(cfg, queue, bus, streamStats)
	capture := pipeline.NewCaptureWorker(src, queue, bus, streamStats)

	notifier := notify.NewTelegram(notify.TelegramConfig{
		BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		ChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		Enabled:  os.Getenv("TELEGRAM_BOT_TOKEN") != "",
	})

	sink := &resultSink{hub: hub, db: db, notifier: notifier, logger: logger}
	unsubResults := bus.Subscribe(sink)
	defer unsubResults()

	// Create channel used by both the signal handler and lifecycle
	// subscribers to notify the main goroutine when to stop.
	errc := make(chan error)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	unsubLifecycle := bus.SubscribeLifecycle(lifecycleForwarder(errc))
	defer unsubLifecycle()

	worker.Start()
	capture.Start()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	// Periodic stats broadcast for connected UIs.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hub.BroadcastJSON(ws.NewStatsMessage(streamStats.Snapshot()))
			}
		}
	}()

	srv := &server{
		worker:  worker,
		capture: capture,
		stats:   streamStats,
		bus:     bus,
		db:      db,
		hub:     hub,
		logger:  logger,
	}
	handleHTTPServer(ctx, *httpAddrF, srv, &wg, errc, logger)

	logger.Printf("exiting (%v)", <-errc)

	cancel()
	capture.Stop()
	worker.Stop()
	hub.Close()

	wg.Wait()
	logger.Println("exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envFileArg extracts the -env value from raw arguments before the flag
// package has run. Missing or malformed forms fall back to the default.
func envFileArg(args []string) string {
	for i := 0; i < len(args); i++ {
		if !strings.HasPrefix(args[i], "-") {
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(args[i], "-"), "=")
		if name != "env" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultEnvFile
}

// lifecycleForwarder turns terminal pipeline events into an exit reason on
// errc. Sends never block: the publisher is the capture goroutine inside
// the event bus, and main stops receiving once the first reason arrives,
// so a blocking send here would wedge both workers during shutdown.
func lifecycleForwarder(errc chan error) func(pipeline.LifecycleEvent) {
	return func(ev pipeline.LifecycleEvent) {
		var err error
		switch ev.Kind {
		case pipeline.LifecycleSourceError:
			err = fmt.Errorf("source failed: %w", ev.Err)
		case pipeline.LifecycleStopped:
			err = fmt.Errorf("source ended")
		default:
			return
		}
		select {
		case errc <- err:
		default:
		}
	}
}

// openSource maps the -source flag onto a concrete frame source. The demo
// source renders a walking target over flat terrain so the full pipeline
// can be exercised without a camera.
func openSource(spec string, fps, width, height int) (source.FrameSource, error) {
	if spec != "demo" {
		return source.OpenFFmpeg(spec, fps, width, height)
	}

	interval := time.Duration(0)
	if fps > 0 {
		interval = time.Second / time.Duration(fps)
	}
	syn := source.NewSynthetic(width, height, 0)
	syn.Interval = interval
	syn.Render = func(seq int, img *image.RGBA) {
		// A small orange target drifting across the scene
		x := 40 + seq/2
		if x > width-60 {
			x = width - 60
		}
		y := height / 2
		target := image.Rect(x, y, x+12, y+20)
		draw.Draw(img, target, &image.Uniform{C: color.RGBA{R: 230, G: 110, B: 30, A: 255}}, image.Point{}, draw.Src)
	}
	return syn, nil
}

// resultSink forwards pipeline output to WebSocket clients and persists
// track lifecycle transitions.
type resultSink struct {
	hub      *ws.Hub
	db       *store.Store
	notifier *notify.Telegram
	logger   *log.Logger
}

func (s *resultSink) OnResult(r *pipeline.Result) {
	s.hub.BroadcastJSON(ws.NewResultMessage(r))

	for _, ev := range r.Events {
		s.hub.BroadcastJSON(ws.NewTrackEventMessage(ev))

		switch ev.Kind {
		case track.EventConfirmed:
			rec := &store.EventRecord{
				ID:         r.ID,
				TrackID:    ev.Track.ID,
				FirstSeen:  ev.Track.FirstSeen,
				LastSeen:   ev.Track.LastSeen,
				FirstSeq:   ev.Track.FirstSeq,
				LastSeq:    ev.Track.LastSeq,
				X:          ev.Track.X,
				Y:          ev.Track.Y,
				Width:      ev.Track.Width,
				Height:     ev.Track.Height,
				Confidence: ev.Track.Confidence,
				Thumbnail:  r.Thumbnails[ev.Track.ID],
			}
			if err := s.db.SaveEvent(rec); err != nil {
				s.logger.Printf("save event for track %d: %s", ev.Track.ID, err)
			}
			// Notification delivery must not stall the pipeline
			go func(snap track.Snapshot) {
				if err := s.notifier.TrackConfirmed(context.Background(), snap); err != nil {
					s.logger.Printf("notify confirmed track %d: %s", snap.ID, err)
				}
			}(ev.Track)
		case track.EventLost:
			if err := s.db.CloseEvent(ev.Track.ID, ev.Track.LastSeen, ev.Track.LastSeq); err != nil {
				s.logger.Printf("close event for track %d: %s", ev.Track.ID, err)
			}
			go func(snap track.Snapshot) {
				if err := s.notifier.TrackLost(context.Background(), snap); err != nil {
					s.logger.Printf("notify lost track %d: %s", snap.ID, err)
				}
			}(ev.Track)
		}
	}
}
