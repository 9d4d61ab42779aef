package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/radio"
)

// unattachedTransport is the placeholder radio.Transport wired in when no
// physical channel (CDC/SPI/UART) has been configured. Every transaction
// fails immediately with TRN_NO_RESPONSE rather than hanging for the full
// timeout, so a misconfigured daemon fails fast and visibly instead of
// silently stalling every request.
//
// The physical transport is an out-of-scope external collaborator; a real
// deployment replaces this with an adapter over the vendor CDC/SPI
// library, implementing the same radio.Transport interface.
type unattachedTransport struct{}

func (unattachedTransport) Execute(ctx context.Context, frame dpa.Frame, timeout time.Duration) (radio.TransactionResult, error) {
	return radio.TransactionResult{Code: radio.TRN_NO_RESPONSE}, errors.New("no physical transport configured")
}
