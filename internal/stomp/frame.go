// Package stomp implements the subset of STOMP 1.2 framing the chat protocol
// uses over websocket text messages: CONNECT/CONNECTED handshake, SUBSCRIBE,
// SEND, MESSAGE delivery and DISCONNECT. Both the client session and the dev
// broker speak through this codec.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Frame commands.
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdSend        = "SEND"
	CmdMessage     = "MESSAGE"
	CmdDisconnect  = "DISCONNECT"
	CmdError       = "ERROR"
)

// Well-known headers.
const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrSubscription  = "subscription"
	HdrMessageID     = "message-id"
	HdrContentType   = "content-type"
	HdrMessage       = "message"
)

var (
	ErrMalformedFrame = errors.New("stomp: malformed frame")
	ErrUnknownCommand = errors.New("stomp: unknown command")
)

var knownCommands = map[string]bool{
	CmdConnect: true, CmdConnected: true, CmdSubscribe: true,
	CmdUnsubscribe: true, CmdSend: true, CmdMessage: true,
	CmdDisconnect: true, CmdError: true,
}

// Frame is one STOMP frame. Headers hold unescaped values.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

// NewFrame builds a frame with the given command and alternating key/value
// header pairs.
func NewFrame(command string, headers ...string) *Frame {
	f := &Frame{Command: command, Headers: make(map[string]string, len(headers)/2)}
	for i := 0; i+1 < len(headers); i += 2 {
		f.Headers[headers[i]] = headers[i+1]
	}
	return f
}

// Header returns the header value for key, or "" when absent.
func (f *Frame) Header(key string) string {
	return f.Headers[key]
}

// Encode renders the frame in wire form: command line, header lines, blank
// line, body, NUL terminator.
func (f *Frame) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')
	escaped := f.Command != CmdConnect && f.Command != CmdConnected
	for k, v := range f.Headers {
		if escaped {
			k, v = escapeHeader(k), escapeHeader(v)
		}
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(v)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// Parse decodes one wire frame. A heartbeat (bare EOL) yields a nil frame and
// nil error.
func Parse(data []byte) (*Frame, error) {
	data = bytes.TrimSuffix(data, []byte{0})
	trimmed := bytes.TrimLeft(data, "\r\n")
	if len(trimmed) == 0 {
		return nil, nil // heartbeat
	}
	head, body, found := bytes.Cut(trimmed, []byte("\n\n"))
	if !found {
		return nil, ErrMalformedFrame
	}
	lines := strings.Split(strings.ReplaceAll(string(head), "\r\n", "\n"), "\n")
	command := lines[0]
	if !knownCommands[command] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	f := &Frame{Command: command, Headers: make(map[string]string, len(lines)-1)}
	escaped := command != CmdConnect && command != CmdConnected
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header %q", ErrMalformedFrame, line)
		}
		if escaped {
			var err error
			if k, err = unescapeHeader(k); err != nil {
				return nil, err
			}
			if v, err = unescapeHeader(v); err != nil {
				return nil, err
			}
		}
		// First occurrence wins, per the STOMP spec.
		if _, dup := f.Headers[k]; !dup {
			f.Headers[k] = v
		}
	}
	f.Body = body
	return f, nil
}

func escapeHeader(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`, ":", `\c`)
	return r.Replace(s)
}

func unescapeHeader(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i == len(s) {
			return "", fmt.Errorf("%w: dangling escape", ErrMalformedFrame)
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case 'c':
			b.WriteByte(':')
		default:
			return "", fmt.Errorf("%w: escape \\%c", ErrMalformedFrame, s[i])
		}
	}
	return b.String(), nil
}
