package audit

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pdp"
)

const (
	reconnectBackoffInit = 100 * time.Millisecond
	reconnectBackoffMax  = 30 * time.Second
)

// sdID is the structured data element ID carried by every message.
const sdID = "authzen"

// SyslogAuditLogger writes authorization decisions to the local syslog
// daemon as RFC 5424 messages. It implements pdp.AuditLogger and composes
// with pdp.MultiAuditLogger.
//
// On write failure the logger reconnects with exponential backoff
// (100ms initial, 30s cap) so a restarting daemon does not cause a tight loop.
type SyslogAuditLogger struct {
	conn       net.Conn
	hostname   string
	appName    string
	facility   Facility
	socketPath string

	mu              sync.Mutex
	backoff         time.Duration
	lastReconnectAt time.Time
}

var _ pdp.AuditLogger = (*SyslogAuditLogger)(nil)

// SyslogConfig holds configuration for the syslog writer.
type SyslogConfig struct {
	SocketPath string   // Default: "/dev/log"
	Hostname   string   // Default: os.Hostname()
	AppName    string   // Default: "authzen-pdp"
	Facility   Facility // Default: FacLocal0
}

// NewSyslogWriter connects to the syslog socket. Returns an error if the
// socket is unavailable.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogAuditLogger, error) {
	if cfg.SocketPath == "" {
		cfg.SocketPath = "/dev/log"
	}
	if cfg.Hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			cfg.Hostname = "unknown"
		} else {
			cfg.Hostname = h
		}
	}
	if cfg.AppName == "" {
		cfg.AppName = "authzen-pdp"
	}
	if cfg.Facility == 0 {
		cfg.Facility = FacLocal0
	}

	conn, err := dialSyslog(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("syslog connect: %w", err)
	}

	return &SyslogAuditLogger{
		conn:       conn,
		hostname:   cfg.Hostname,
		appName:    cfg.AppName,
		facility:   cfg.Facility,
		socketPath: cfg.SocketPath,
	}, nil
}

// LogDecision converts a decision audit entry to an RFC 5424 message and
// writes it to the socket. Safe to call on a nil receiver.
func (w *SyslogAuditLogger) LogDecision(_ context.Context, entry pdp.DecisionAuditEntry) error {
	if w == nil {
		return nil
	}
	return w.writeOrReconnect(FormatMessage(w.message(entry)))
}

func (w *SyslogAuditLogger) message(entry pdp.DecisionAuditEntry) Message {
	msgID, severity := deriveEventType(entry)

	params := []SDParam{
		{Name: "operation", Value: entry.Operation},
		{Name: "principal", Value: entry.Principal},
		{Name: "action", Value: entry.Action},
		{Name: "resource", Value: entry.Resource},
		{Name: "decision", Value: entry.Decision},
	}
	if entry.RequestID != "" {
		params = append(params, SDParam{Name: "request_id", Value: entry.RequestID})
	}
	if len(entry.Reasons) > 0 {
		params = append(params, SDParam{Name: "reasons", Value: strings.Join(entry.Reasons, ",")})
	}
	if entry.DurationUS > 0 {
		params = append(params, SDParam{Name: "duration_us", Value: strconv.FormatInt(entry.DurationUS, 10)})
	}

	return Message{
		Facility:  w.facility,
		Severity:  severity,
		Timestamp: entry.Timestamp,
		Hostname:  w.hostname,
		AppName:   w.appName,
		MessageID: msgID,
		SD:        []SDElement{{ID: sdID, Params: params}},
		Text:      strings.Join(entry.Errors, "; "),
	}
}

// writeOrReconnect writes data to the socket. On failure it attempts one
// reconnect (subject to backoff) and retries the write.
func (w *SyslogAuditLogger) writeOrReconnect(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := w.conn.Write(data)
	if err == nil {
		w.backoff = 0
		return nil
	}

	if reconnErr := w.reconnectLocked(); reconnErr != nil {
		return fmt.Errorf("syslog write failed (%v), reconnect failed: %w", err, reconnErr)
	}

	_, err = w.conn.Write(data)
	if err == nil {
		w.backoff = 0
	}
	return err
}

// reconnectLocked closes the dead connection and dials a new one.
// Must be called with w.mu held.
func (w *SyslogAuditLogger) reconnectLocked() error {
	if w.backoff > 0 && time.Since(w.lastReconnectAt) < w.backoff {
		return fmt.Errorf("syslog reconnect backoff: retry in %v", w.backoff-time.Since(w.lastReconnectAt))
	}

	w.conn.Close()

	conn, err := dialSyslog(w.socketPath)
	if err != nil {
		w.lastReconnectAt = time.Now()
		if w.backoff == 0 {
			w.backoff = reconnectBackoffInit
		} else {
			w.backoff = min(w.backoff*2, reconnectBackoffMax)
		}
		return fmt.Errorf("syslog reconnect: %w", err)
	}

	w.conn = conn
	w.backoff = 0
	w.lastReconnectAt = time.Time{}
	return nil
}

// Close closes the socket. Safe to call on a nil receiver.
func (w *SyslogAuditLogger) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Close()
}

// deriveEventType maps an entry to a message ID and severity.
func deriveEventType(entry pdp.DecisionAuditEntry) (string, Severity) {
	if len(entry.Errors) > 0 {
		return "decision.error", SeverityError
	}
	switch entry.Decision {
	case "allow":
		return "decision.allow", SeverityInfo
	case "deny":
		return "decision.deny", SeverityNotice
	default:
		return "decision.unknown", SeverityWarning
	}
}

// dialSyslog tries unixgram first and falls back to unix stream.
func dialSyslog(socketPath string) (net.Conn, error) {
	conn, err := net.Dial("unixgram", socketPath)
	if err == nil {
		return conn, nil
	}
	return net.Dial("unix", socketPath)
}
