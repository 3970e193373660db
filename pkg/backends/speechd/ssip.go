package speechd

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SSIP reply codes the client checks for.
const (
	codeLanguageSet     = 201
	codeRateSet         = 203
	codePitchSet        = 204
	codeClientNameSet   = 208
	codeVoiceSet        = 209
	codeCanceled        = 210
	codeOutputModuleSet = 216
	codeVolumeSet       = 218
	codeMessageQueued   = 225
	codeReceivingData   = 230
	codeBye             = 231
	codeVoicesSent      = 249
	codeModulesSent     = 250
	codeGet             = 251
)

// ssipError is a non-2xx reply.
type ssipError struct {
	Code    int
	Message string
}

func (e *ssipError) Error() string {
	return fmt.Sprintf("speech dispatcher replied %d %s", e.Code, e.Message)
}

// conn speaks the line based SSIP protocol. Commands end in CRLF and each
// reply is a run of "CCC-data" lines closed by one "CCC message" line.
type conn struct {
	c net.Conn
	r *bufio.Reader
}

func newConn(c net.Conn) *conn {
	return &conn{c: c, r: bufio.NewReader(c)}
}

func (c *conn) Close() error { return c.c.Close() }

// command sends one command line and returns the data lines of a reply
// carrying the expected code.
func (c *conn) command(expect int, format string, args ...interface{}) ([]string, error) {
	line := fmt.Sprintf(format, args...)
	if _, err := io.WriteString(c.c, line+"\r\n"); err != nil {
		return nil, errors.Wrapf(err, "failed to send %q", line)
	}
	return c.reply(expect)
}

func (c *conn) reply(expect int) ([]string, error) {
	var data []string
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "failed to read reply")
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 4 {
			return nil, errors.Errorf("malformed reply %q", line)
		}
		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return nil, errors.Errorf("malformed reply %q", line)
		}
		if line[3] == '-' {
			data = append(data, line[4:])
			continue
		}
		if code/100 != 2 {
			return nil, &ssipError{Code: code, Message: line[4:]}
		}
		if code != expect {
			return nil, errors.Errorf("expected reply %d, got %d %s", expect, code, line[4:])
		}
		return data, nil
	}
}

// speak sends text as one message. Lines starting with a dot are escaped
// with a second dot and a lone dot ends the message.
func (c *conn) speak(text string) error {
	if _, err := c.command(codeReceivingData, "SPEAK"); err != nil {
		return err
	}
	var b strings.Builder
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(line, ".") {
			b.WriteByte('.')
		}
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	b.WriteString(".\r\n")
	if _, err := io.WriteString(c.c, b.String()); err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	_, err := c.reply(codeMessageQueued)
	return err
}
