// Package whatsmeow reaches WhatsApp as a linked multi-device client.
package whatsmeow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	wa "go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"

	"github.com/LeventeLantos/boleto-reminder/internal/channel"
)

type Config struct {
	// StorePath is the sqlite file holding the device credentials.
	StorePath      string
	DeviceName     string
	PrintQR        bool
	SendsPerMinute int
	Logger         *slog.Logger
}

type Provider struct {
	cfg     Config
	log     *slog.Logger
	limiter *rate.Limiter

	mu        sync.Mutex
	container *sqlstore.Container
	client    *wa.Client
	handlerID uint32
	qrCancel  context.CancelFunc
}

func New(cfg Config) *Provider {
	if cfg.StorePath == "" {
		cfg.StorePath = "data/whatsmeow.db"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.SendsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.SendsPerMinute))
	}

	return &Provider{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "whatsmeow"),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (p *Provider) Name() string          { return "whatsmeow" }
func (p *Provider) AddressSuffix() string { return "@s.whatsapp.net" }

func (p *Provider) Open(ctx context.Context, sink channel.EventSink) error {
	container, err := p.storeContainer(ctx)
	if err != nil {
		return err
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}

	client := wa.NewClient(device, newLogger(p.log, "client"))
	client.EnableAutoReconnect = false
	handlerID := client.AddEventHandler(func(evt any) { p.onEvent(sink, evt) })

	var qrCancel context.CancelFunc
	if client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(ctx)
		qrChan, err := client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			client.RemoveEventHandler(handlerID)
			return fmt.Errorf("get qr channel: %w", err)
		}
		qrCancel = cancel
		go p.watchQR(qrChan, sink)
	} else {
		p.log.Info("restoring stored session", "jid", client.Store.ID.String())
	}

	p.mu.Lock()
	p.client, p.handlerID, p.qrCancel = client, handlerID, qrCancel
	p.mu.Unlock()

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (p *Provider) Send(ctx context.Context, msg channel.Message) (string, error) {
	client := p.current()
	if client == nil || !client.IsConnected() {
		return "", channel.ErrChannelUnavailable
	}

	jid, err := parseRecipient(msg.To)
	if err != nil {
		return "", err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	out, err := buildMessage(ctx, client, msg)
	if err != nil {
		return "", err
	}

	resp, err := client.SendMessage(ctx, jid, out)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (p *Provider) Close() {
	p.mu.Lock()
	client, handlerID, qrCancel := p.client, p.handlerID, p.qrCancel
	p.client, p.qrCancel = nil, nil
	p.mu.Unlock()

	if qrCancel != nil {
		qrCancel()
	}
	if client != nil {
		client.RemoveEventHandler(handlerID)
		client.Disconnect()
	}
}

// Logout unlinks the device. Without a live connection the stored
// credentials are deleted locally.
func (p *Provider) Logout(ctx context.Context) error {
	client := p.current()
	if client != nil && client.Store.ID != nil && client.IsConnected() {
		return client.Logout(ctx)
	}

	if client != nil && client.Store.ID != nil {
		return client.Store.Delete(ctx)
	}

	container, err := p.storeContainer(ctx)
	if err != nil {
		return err
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}
	if device.ID == nil {
		return nil
	}
	return device.Delete(ctx)
}

func (p *Provider) current() *wa.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}

func (p *Provider) storeContainer(ctx context.Context) (*sqlstore.Container, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.container != nil {
		return p.container, nil
	}

	if err := os.MkdirAll(filepath.Dir(p.cfg.StorePath), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	if p.cfg.DeviceName != "" {
		store.DeviceProps.Os = proto.String(p.cfg.DeviceName)
	}

	dsn := "file:" + p.cfg.StorePath + "?_foreign_keys=on"
	container, err := sqlstore.New(ctx, "sqlite3", dsn, newLogger(p.log, "store"))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	p.container = container
	return container, nil
}

func (p *Provider) onEvent(sink channel.EventSink, evt any) {
	defer func() {
		if r := recover(); r != nil {
			sink(channel.Event{Kind: channel.EventFailure, Err: fmt.Errorf("event handler panic: %v", r)})
		}
	}()

	ev, ok := translateEvent(evt)
	if !ok {
		return
	}
	sink(ev)
}

func (p *Provider) watchQR(items <-chan wa.QRChannelItem, sink channel.EventSink) {
	for item := range items {
		if item.Event == wa.QRChannelEventCode && p.cfg.PrintQR {
			qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
		}

		ev, ok := translateQR(item)
		if !ok {
			continue
		}
		p.log.Debug("qr channel event", "event", item.Event, "valid_for", item.Timeout)
		sink(ev)
	}
}

var errNoRecipient = errors.New("recipient has no user part")
