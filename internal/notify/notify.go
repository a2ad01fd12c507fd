// Package notify delivers a finished document to an address. Delivery is
// best effort: its outcome never changes the collection or the document.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"pintatina/internal/document"
)

// ErrInvalidAddress is returned for an address the notifier cannot use.
var ErrInvalidAddress = errors.New("invalid delivery address")

type Delivery struct {
	Address  string
	Name     string
	Document document.Document
}

type Notifier interface {
	Deliver(ctx context.Context, d Delivery) error
}

var emailPattern = regexp.MustCompile(`^(([^<>()[\]\\.,;:\s@"]+(\.[^<>()[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

// ValidEmail reports whether address looks like an email address. The
// check is case-insensitive.
func ValidEmail(address string) bool {
	address = strings.ToLower(strings.TrimSpace(address))
	return address != "" && emailPattern.MatchString(address)
}

// Simulated pretends to email the document: it validates the address,
// waits for Delay and logs the delivery.
type Simulated struct {
	Delay  time.Duration
	Logger *slog.Logger
}

func (s Simulated) Deliver(ctx context.Context, d Delivery) error {
	if !ValidEmail(d.Address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, d.Address)
	}
	if len(d.Document.Data) == 0 {
		return document.ErrEmptyDocument
	}

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger.Info("document delivered", "channel", "email", "address", d.Address, "name", d.Name, "pages", d.Document.Pages)
	return nil
}

// DocumentSender uploads a file to a chat.
type DocumentSender interface {
	SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error
}

// Telegram delivers the document to the chat whose id is the address.
type Telegram struct {
	Sender  DocumentSender
	Caption string
}

func (t Telegram) Deliver(ctx context.Context, d Delivery) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(d.Address), 10, 64)
	if err != nil || chatID == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, d.Address)
	}
	if len(d.Document.Data) == 0 {
		return document.ErrEmptyDocument
	}
	if err := t.Sender.SendDocument(ctx, chatID, d.Name, d.Document.Data, t.Caption); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}
