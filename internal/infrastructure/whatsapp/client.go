// Package whatsapp listens for inbound WhatsApp messages and feeds OTP
// candidates into the verification service. The first run prints a QR code
// to pair the service as a linked device; the session persists in a local
// sqlite store so later starts reconnect silently.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/go-otp-relay/internal/pkg/otp"
	"github.com/go-otp-relay/internal/pkg/phone"

	_ "github.com/mattn/go-sqlite3"
)

// OTPReporter consumes normalized (phone, otpCandidate) pairs. The client
// only reports when both are present; everything else is dropped as noise.
type OTPReporter interface {
	ReportOTP(ctx context.Context, rawPhone, candidate string)
}

// State tracks connection readiness for the health endpoints.
type State struct {
	mu          sync.RWMutex
	ready       bool
	connectedAt time.Time
}

// Ready returns the connection flag and the time the session came up.
func (s *State) Ready() (bool, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready, s.connectedAt
}

func (s *State) set(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
	if ready {
		s.connectedAt = time.Now().UTC()
	}
}

// Client wraps a whatsmeow session and forwards OTP candidates.
type Client struct {
	wm        *whatsmeow.Client
	reporter  OTPReporter
	logger    *slog.Logger
	otpLength int
	state     *State
}

// NewClient opens (or creates) the session store at dbPath and prepares a
// client. It does not connect yet; call Start.
func NewClient(ctx context.Context, dbPath string, otpLength int, reporter OTPReporter, logger *slog.Logger) (*Client, error) {
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", dbPath), waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	c := &Client{
		wm:        whatsmeow.NewClient(device, waLog.Noop),
		reporter:  reporter,
		logger:    logger,
		otpLength: otpLength,
		state:     &State{},
	}
	c.wm.AddEventHandler(c.handleEvent)
	return c, nil
}

// State exposes connection readiness for the health endpoints.
func (c *Client) State() *State { return c.state }

// Start connects the client. Without a stored session it prints a QR code
// and waits for the scan in the background.
func (c *Client) Start(ctx context.Context) error {
	if c.wm.Store.ID != nil {
		return c.wm.Connect()
	}

	qrChan, err := c.wm.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("request QR channel: %w", err)
	}
	if err := c.wm.Connect(); err != nil {
		return err
	}
	go func() {
		for evt := range qrChan {
			switch evt.Event {
			case "code":
				c.logger.Info("scan this QR code from WhatsApp to authenticate the service")
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			case "success":
				c.logger.Info("WhatsApp pairing succeeded")
			default:
				c.logger.Warn("WhatsApp pairing event", "event", evt.Event)
			}
		}
	}()
	return nil
}

// Close disconnects the session.
func (c *Client) Close() {
	c.wm.Disconnect()
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		c.state.set(true)
		c.logger.Info("WhatsApp client is ready")
	case *events.Disconnected:
		c.state.set(false)
		c.logger.Warn("WhatsApp client disconnected")
	case *events.LoggedOut:
		c.state.set(false)
		c.logger.Warn("WhatsApp session logged out", "reason", v.Reason)
	case *events.Message:
		c.handleMessage(v)
	}
}

func (c *Client) handleMessage(msg *events.Message) {
	if msg.Info.IsFromMe || msg.Info.IsGroup {
		return
	}
	normalized := phone.Normalize(msg.Info.Sender.User)
	text := msg.Message.GetConversation()
	if text == "" {
		text = msg.Message.GetExtendedTextMessage().GetText()
	}
	candidate := otp.ExtractFromText(text, c.otpLength)
	if normalized == "" || candidate == "" {
		return
	}

	c.logger.Info("incoming OTP candidate", "phone", normalized)
	c.reporter.ReportOTP(context.Background(), normalized, candidate)
}
