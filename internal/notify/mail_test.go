package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreditNoun(t *testing.T) {
	assert.Equal(t, "credit", CreditNoun(1))
	assert.Equal(t, "credits", CreditNoun(3))
	assert.Equal(t, "credits", CreditNoun(9999))
}

func TestConfirmation_Pluralization(t *testing.T) {
	one, err := Confirmation("a@example.com", 1)
	require.NoError(t, err)
	assert.Equal(t, ConfirmationSubject, one.Subject)
	assert.Equal(t, "a@example.com", one.To)
	assert.Contains(t, one.HTML, "<strong>1</strong> available credit.")

	five, err := Confirmation("a@example.com", 5)
	require.NoError(t, err)
	assert.Contains(t, five.HTML, "<strong>5</strong> available credits.")
}

type recMailer struct {
	got []Message
	err error
}

func (r *recMailer) Mail(_ context.Context, m Message) error {
	r.got = append(r.got, m)
	return r.err
}

func TestFallback(t *testing.T) {
	ctx := context.Background()
	msg := Message{To: "a@example.com", Subject: "s", HTML: "<p>x</p>"}

	first := &recMailer{err: errors.New("sendgrid down")}
	second := &recMailer{}
	require.NoError(t, Fallback{first, second}.Mail(ctx, msg))
	assert.Len(t, first.got, 1)
	assert.Len(t, second.got, 1)

	ok := &recMailer{}
	unused := &recMailer{}
	require.NoError(t, Fallback{ok, unused}.Mail(ctx, msg))
	assert.Empty(t, unused.got)

	bad := &recMailer{err: errors.New("smtp down")}
	err := Fallback{first, bad}.Mail(ctx, msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sendgrid down")
	assert.Contains(t, err.Error(), "smtp down")

	assert.ErrorIs(t, Fallback{}.Mail(ctx, msg), ErrNoMailer)
}

func TestConfirmer_SendsRenderedMessage(t *testing.T) {
	m := &recMailer{}
	require.NoError(t, Confirmer{Mailer: m}.SendConfirmation(context.Background(), "a@example.com", 3))
	require.Len(t, m.got, 1)
	assert.Contains(t, m.got[0].HTML, "3</strong> available credits")

	assert.ErrorIs(t, Confirmer{}.SendConfirmation(context.Background(), "a@example.com", 3), ErrNoMailer)
}

func TestSendGrid_PostsMail(t *testing.T) {
	var (
		auth    string
		payload map[string]any
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	sg := NewSendGrid("SG.key", "alerts@eating.london").WithBaseURL(ts.URL + "/v3/mail/send")
	require.NoError(t, sg.Mail(context.Background(), Message{To: "a@example.com", Subject: "hi", HTML: "<p>x</p>"}))
	assert.Equal(t, "Bearer SG.key", auth)
	assert.Equal(t, "hi", payload["subject"])
}

func TestSendGrid_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer ts.Close()

	sg := NewSendGrid("SG.key", "alerts@eating.london").WithBaseURL(ts.URL)
	err := sg.Mail(context.Background(), Message{To: "a@example.com", Subject: "hi", HTML: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Nil(t, NewSendGrid("", "x"))
}

func TestSMTP_BuildsMessage(t *testing.T) {
	s := NewSMTP("mail.example.com", "587", "user", "pass", "alerts@eating.london")
	var (
		addr string
		to   []string
		body string
		auth smtp.Auth
	)
	s.send = func(_ context.Context, a string, au smtp.Auth, from string, rcpt []string, msg []byte) error {
		addr, auth, to, body = a, au, rcpt, string(msg)
		return nil
	}
	require.NoError(t, s.Mail(context.Background(), Message{To: "a@example.com", Subject: "Hello", HTML: "<p>x</p>"}))
	assert.Equal(t, "mail.example.com:587", addr)
	assert.NotNil(t, auth)
	assert.Equal(t, []string{"a@example.com"}, to)
	assert.True(t, strings.HasPrefix(body, "From: alerts@eating.london\r\nTo: a@example.com\r\nSubject: Hello\r\n"))
	assert.Contains(t, body, "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>x</p>")

	s.send = func(context.Context, string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	assert.ErrorContains(t, s.Mail(context.Background(), Message{To: "a@example.com"}), "refused")
	assert.Nil(t, NewSMTP("", "25", "", "", ""))
}

// silentServer accepts connections and never sends the SMTP greeting.
func silentServer(t *testing.T) (host, port string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var conns []net.Conn
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-done
		for _, c := range conns {
			_ = c.Close()
		}
	})
	host, port, err = net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return host, port
}

func TestSMTP_HonoursContextDeadline(t *testing.T) {
	host, port := silentServer(t)
	s := NewSMTP(host, port, "", "", "alerts@eating.london")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := s.Mail(ctx, Message{To: "a@example.com", Subject: "x", HTML: "<p>x</p>"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSMTP_CancelUnblocksWithoutDeadline(t *testing.T) {
	host, port := silentServer(t)
	s := NewSMTP(host, port, "", "", "alerts@eating.london")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	start := time.Now()
	err := s.Mail(ctx, Message{To: "a@example.com"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSMTP_DeliversToServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		r := bufio.NewReader(c)
		reply := func(s string) { _, _ = c.Write([]byte(s + "\r\n")) }
		reply("220 test ready")
		var data strings.Builder
		inData := false
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if inData {
				if line == ".\r\n" {
					inData = false
					reply("250 queued")
					continue
				}
				data.WriteString(line)
				continue
			}
			switch cmd := strings.ToUpper(strings.TrimSpace(line)); {
			case strings.HasPrefix(cmd, "EHLO"):
				reply("250 test")
			case cmd == "DATA":
				inData = true
				reply("354 go ahead")
			case cmd == "QUIT":
				reply("221 bye")
				got <- data.String()
				return
			default:
				reply("250 ok")
			}
		}
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	s := NewSMTP(host, port, "", "", "alerts@eating.london")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Mail(ctx, Message{To: "a@example.com", Subject: "Hi", HTML: "<p>x</p>"}))
	select {
	case body := <-got:
		assert.Contains(t, body, "Subject: Hi")
		assert.Contains(t, body, "<p>x</p>")
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw QUIT")
	}
}
