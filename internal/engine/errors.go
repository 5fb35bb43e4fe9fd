package engine

import (
	"strings"
	"time"
)

// ErrorKind classifies a channel-open failure. The kind, not the raw node
// error, is what customers and the retry policy see.
type ErrorKind string

const (
	ErrPeerNotReachable           ErrorKind = "PEER_NOT_REACHABLE"
	ErrPeerTooManyPendingChannels ErrorKind = "PEER_TOO_MANY_PENDING_CHANNELS"
	ErrPeerRejectMultiChan        ErrorKind = "PEER_REJECT_MULTI_CHAN"
	ErrChanSizeTooBig             ErrorKind = "CHAN_SIZE_TOO_BIG"
	ErrChanSizeTooSmall           ErrorKind = "CHAN_SIZE_TOO_SMALL"
	ErrBlocktankNotReady          ErrorKind = "BLOCKTANK_NOT_READY"
	ErrNoTxID                     ErrorKind = "NO_TX_ID"
	ErrServiceFailedToOpen        ErrorKind = "SERVICE_FAILED_TO_OPEN_CHANNEL"
)

// ChannelOpenError is a classified channel-open failure with its retry and
// alerting disposition.
type ChannelOpenError struct {
	Kind   ErrorKind
	GiveUp bool
	Alert  bool
	Raw    string
	Ts     time.Time
}

func (e *ChannelOpenError) Error() string {
	return string(e.Kind) + ": " + e.Raw
}

type disposition struct {
	giveUp bool
	alert  bool
}

var dispositions = map[ErrorKind]disposition{
	ErrPeerNotReachable:           {giveUp: false, alert: false},
	ErrPeerTooManyPendingChannels: {giveUp: false, alert: false},
	ErrPeerRejectMultiChan:        {giveUp: true, alert: false},
	ErrChanSizeTooBig:             {giveUp: true, alert: false},
	ErrChanSizeTooSmall:           {giveUp: true, alert: false},
	ErrBlocktankNotReady:          {giveUp: false, alert: true},
	ErrNoTxID:                     {giveUp: true, alert: true},
	ErrServiceFailedToOpen:        {giveUp: true, alert: true},
}

// errorRule matches a raw node error when every substring in all matches and,
// if any is non-empty, at least one substring in any matches.
type errorRule struct {
	all  []string
	any  []string
	kind ErrorKind
}

// openErrorRules is evaluated top to bottom, first match wins. Data-driven so
// new node error strings are one row, not new dispatch logic.
var openErrorRules = []errorRule{
	{any: []string{"RemotePeerDisconnected", "PeerIsNotOnline", "RemotePeerExited"}, kind: ErrPeerNotReachable},
	{any: []string{"PeerPendingChannelsExceedMaximumAllowable"}, kind: ErrPeerTooManyPendingChannels},
	{all: []string{"FailedToOpenChannel", "exceeds maximum chan size"}, kind: ErrChanSizeTooBig},
	{all: []string{"FailedToOpenChannel", "below min chan size"}, kind: ErrChanSizeTooSmall},
	{all: []string{"FailedToOpenChannel", "No connection established"}, kind: ErrPeerNotReachable},
	{any: []string{"InsufficientFundsToCreateChannel", "WalletNotFullySynced"}, kind: ErrBlocktankNotReady},
	{any: []string{"RemoteNodeDoesNotSupportMultipleChannels"}, kind: ErrPeerRejectMultiChan},
}

// NewChannelOpenError builds a classified error of a known kind.
func NewChannelOpenError(kind ErrorKind, raw string) *ChannelOpenError {
	d := dispositions[kind]
	return &ChannelOpenError{
		Kind:   kind,
		GiveUp: d.giveUp,
		Alert:  d.alert,
		Raw:    raw,
		Ts:     time.Now(),
	}
}

// ClassifyOpenError maps a raw node error onto the taxonomy. Unrecognised
// errors fall back to SERVICE_FAILED_TO_OPEN_CHANNEL.
func ClassifyOpenError(raw string) *ChannelOpenError {
	for _, rule := range openErrorRules {
		if rule.matches(raw) {
			return NewChannelOpenError(rule.kind, raw)
		}
	}
	return NewChannelOpenError(ErrServiceFailedToOpen, raw)
}

func (r errorRule) matches(raw string) bool {
	for _, s := range r.all {
		if !strings.Contains(raw, s) {
			return false
		}
	}
	if len(r.any) == 0 {
		return len(r.all) > 0
	}
	for _, s := range r.any {
		if strings.Contains(raw, s) {
			return true
		}
	}
	return false
}
