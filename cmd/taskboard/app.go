package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskboard/internal/alert"
	"github.com/gosuda/taskboard/internal/config"
	"github.com/gosuda/taskboard/internal/domain"
	"github.com/gosuda/taskboard/internal/loop"
	"github.com/gosuda/taskboard/internal/realtime"
	"github.com/gosuda/taskboard/internal/restapi"
	"github.com/gosuda/taskboard/internal/session"
	redisstore "github.com/gosuda/taskboard/internal/store/redis"
)

const (
	connectTimeout = 15 * time.Second
	flushMargin    = 50 * time.Millisecond
)

var (
	errMissingUser = errors.New("no username: pass --user or set TASKBOARD_USERNAME") //nolint:gochecknoglobals // sentinel error
	errNoRedis     = errors.New("redis is not configured: set TASKBOARD_REDIS_ADDR")  //nolint:gochecknoglobals // sentinel error
)

// app carries what every subcommand shares: the loaded config and the
// global flags.
type app struct {
	cfg  *config.Config
	user string
}

func (a *app) identity() (string, error) {
	if a.user != "" {
		return a.user, nil
	}
	if a.cfg.Session.Username != "" {
		return a.cfg.Session.Username, nil
	}
	return "", errMissingUser
}

func (a *app) api() *restapi.Client {
	return restapi.New(a.cfg.Server.APIURL, restapi.WithTimeout(a.cfg.Server.HTTPTimeout))
}

// live is a connected session plus what it takes to tear it down.
type live struct {
	sess *session.Session
	lost <-chan error

	closers []func()
}

// close leaves the board, waits for the leave frame to flush and releases
// the sinks.
func (l *live) close(grace time.Duration) {
	l.sess.Disconnect()
	time.Sleep(grace + flushMargin)
	for i := len(l.closers) - 1; i >= 0; i-- {
		l.closers[i]()
	}
}

// connect builds a session from config, connects and waits for the server
// to acknowledge.
func (a *app) connect(ctx context.Context, extra ...session.Option) (*live, error) {
	identity, err := a.identity()
	if err != nil {
		return nil, err
	}

	lp := loop.New(0)
	go lp.Run(ctx)

	ready := make(chan struct{}, 1)
	failed := make(chan error, 1)
	l := &live{lost: failed}

	opts := []session.Option{
		session.WithAPI(a.api()),
		session.WithClientOptions(
			realtime.WithHeartBeat(a.cfg.Session.HeartBeat),
			realtime.WithAcceptVersion(a.cfg.Session.AcceptVersion),
			realtime.WithCloseGrace(a.cfg.Session.CloseGrace),
			realtime.WithOutboundQueue(a.cfg.Session.OutboundQueue),
		),
		session.WithReadyHook(func() {
			select {
			case ready <- struct{}{}:
			default:
			}
		}),
		session.WithErrorHook(func(err error) {
			select {
			case failed <- err:
			default:
			}
		}),
	}

	alertOpts := []alert.Option{alert.WithTTL(a.cfg.Alerts.TTL), alert.WithSink(alert.LogSink{})}
	if a.cfg.Slack.Enabled() {
		sink := alert.NewSlackSink(
			alert.NewSlackClient(a.cfg.Slack.BotToken),
			a.cfg.Slack.Channel,
			a.cfg.Slack.Rate,
			a.cfg.Slack.Burst,
		)
		alertOpts = append(alertOpts, alert.WithSink(sink))
		l.closers = append(l.closers, sink.Wait)
	}
	opts = append(opts, session.WithAlertOptions(alertOpts...))

	scannerOpts := []alert.ScannerOption{
		alert.WithScanInterval(a.cfg.Alerts.DueScanInterval),
		alert.WithDueSoonWindow(a.cfg.Alerts.DueSoonWindow),
	}
	if a.cfg.Alerts.DueDedupe {
		scannerOpts = append(scannerOpts, alert.WithDedupe())
	}
	opts = append(opts, session.WithScannerOptions(scannerOpts...))

	if a.cfg.Redis.Enabled() {
		ps, err := redisstore.New(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		tapCtx, cancel := context.WithCancel(ctx)
		tap := redisstore.NewTap(ps, identity)
		go tap.Run(tapCtx)
		opts = append(opts, session.WithObserver(tap.Observe))
		l.closers = append(l.closers, func() {
			cancel()
			if err := ps.Close(); err != nil {
				log.Warn().Err(err).Msg("close redis")
			}
		})
		log.Info().Str("channel", redisstore.EventChannel(identity)).Msg("publishing events to redis")
	}

	opts = append(opts, extra...)
	l.sess = session.New(lp, a.cfg.Server.WSURL, opts...)
	if err := l.sess.Connect(ctx, identity); err != nil {
		l.close(0)
		return nil, err
	}

	select {
	case <-ready:
		return l, nil
	case err := <-failed:
		l.close(0)
		return nil, fmt.Errorf("connect %s: %w", a.cfg.Server.WSURL, err)
	case <-ctx.Done():
		l.close(0)
		return nil, ctx.Err()
	case <-time.After(connectTimeout):
		l.close(0)
		return nil, fmt.Errorf("connect %s: no CONNECTED frame after %s", a.cfg.Server.WSURL, connectTimeout)
	}
}

// oneShot connects, runs fn and disconnects.
func (a *app) oneShot(ctx context.Context, fn func(*session.Session) error) error {
	l, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer l.close(a.cfg.Session.CloseGrace)
	return fn(l.sess)
}

func parseDue(s string) (*domain.Timestamp, error) {
	if s == "" {
		return nil, nil //nolint:nilnil // no due date
	}
	ts, err := domain.ParseTimestamp(s)
	if err != nil {
		return nil, fmt.Errorf("--due: %w", err)
	}
	return &ts, nil
}
