package emailsvc

import (
	"bytes"
	"context"
	"net/http"
	"net/mail"
	"strings"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/pueriangeli/core"
	logsvc "github.com/trezcool/pueriangeli/services/logger"
)

func TestConsoleServiceMock(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf, logsvc.NewNopLogger())

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Jane Doe", Address: "jane@example.com"}},
			Subject:      "Reset your password",
			TemplateName: "password_reset",
			TemplateData: map[string]interface{}{"Name": "Jane", "UID": "dWlk", "Token": "tok-en"},
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hello"},
		&core.EmailMessage{To: []mail.Address{{Address: "x@example.com"}}, Subject: "no content"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Reset your password", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "Jane")
	assert.Contains(t, sent[0].TextContent, conf.FrontendBaseURL)
	assert.Contains(t, sent[0].HTMLContent, "tok-en")

	svc.FailWith(assert.AnError)
	assert.Equal(t, assert.AnError, svc.Send(context.Background(), &core.EmailMessage{To: []mail.Address{{Address: "x@example.com"}}, BodyStr: "hi"}))
	assert.Len(t, svc.SentMessages(), 1)

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
	assert.NoError(t, svc.Send(context.Background(), &core.EmailMessage{To: []mail.Address{{Address: "x@example.com"}}, BodyStr: "hi"}))
}

func TestConsoleService_Format(t *testing.T) {
	conf := core.NewTestConfig()
	out := new(bytes.Buffer)
	svc := &consoleService{
		defaultFromEmail: conf.DefaultFromEmail,
		subjPrefix:       "[" + conf.AppName + "] ",
		logger:           logsvc.NewNopLogger(),
		out:              out,
	}

	msg := &core.EmailMessage{
		To:      []mail.Address{{Address: "a@example.com"}},
		Bcc:     []mail.Address{{Address: "b@example.com"}, {Address: "c@example.com"}},
		Subject: "School closed",
		BodyStr: "No school tomorrow.",
	}
	require.NoError(t, msg.Attach(strings.NewReader("timetable"), "timetable.txt", "text/plain"))
	require.True(t, svc.sendMessage(msg))

	printed := out.String()
	assert.Contains(t, printed, "Subject: [Pueri Angeli] School closed")
	assert.Contains(t, printed, "BCC: <b@example.com>, <c@example.com>")
	assert.Contains(t, printed, "multipart/mixed")
	assert.Contains(t, printed, "No school tomorrow.")
	assert.Contains(t, printed, "filename=timetable.txt")
}

func TestSendgridService(t *testing.T) {
	conf := core.NewTestConfig()
	conf.SendgridApiKey = "sg-key"

	var requests []rest.Request
	svc := NewSendgridService(conf, logsvc.NewNopLogger()).(*sendgridService)
	svc.api = func(req rest.Request) (*rest.Response, error) {
		requests = append(requests, req)
		return &rest.Response{StatusCode: http.StatusAccepted}, nil
	}

	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: "Jane", Address: "jane@example.com"}},
		Cc:      []mail.Address{{Address: "office@example.com"}},
		Subject: "Hello",
		BodyStr: "Welcome",
	}
	require.NoError(t, svc.sendMessage(msg))
	require.Len(t, requests, 1)

	req := requests[0]
	assert.Equal(t, http.MethodPost, string(req.Method))
	assert.Equal(t, host+endpoint, req.BaseURL)
	assert.Equal(t, "Bearer sg-key", req.Headers["Authorization"])

	body := string(req.Body)
	assert.Contains(t, body, `"subject":"[Pueri Angeli] Hello"`)
	assert.Contains(t, body, "jane@example.com")
	assert.Contains(t, body, "office@example.com")
	assert.Contains(t, body, "Welcome")
	assert.NotContains(t, body, "text/html", "plain messages carry no html part")

	t.Run("api error status", func(t *testing.T) {
		svc.api = func(rest.Request) (*rest.Response, error) {
			return &rest.Response{StatusCode: http.StatusUnauthorized, Body: "bad key"}, nil
		}
		err := svc.sendMessage(&core.EmailMessage{To: msg.To, Subject: "x", BodyStr: "y"})
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), "401")
		}
	})

	t.Run("bcc only announcement is addressed and rejected synchronously", func(t *testing.T) {
		var body string
		svc.api = func(req rest.Request) (*rest.Response, error) {
			body = string(req.Body)
			return &rest.Response{StatusCode: http.StatusBadRequest, Body: `{"errors":[{"field":"personalizations.0.to"}]}`}, nil
		}
		err := svc.Send(context.Background(), &core.EmailMessage{
			To:      []mail.Address{conf.DefaultFromEmail},
			Bcc:     []mail.Address{{Address: "parent@example.com"}},
			Subject: "Fees",
			BodyStr: "Due Friday.",
		})
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), "400")
		}
		assert.Contains(t, body, `"to":[{`)
		assert.Contains(t, body, conf.DefaultFromEmail.Address)
		assert.Contains(t, body, `"bcc":[{`)
	})

	t.Run("Send reports empty messages", func(t *testing.T) {
		svc.api = func(rest.Request) (*rest.Response, error) {
			t.Fatal("api must not be called")
			return nil, nil
		}
		assert.Equal(t, core.ErrEmptyEmail, svc.Send(context.Background(), &core.EmailMessage{Subject: "x", BodyStr: "y"}))
	})

	t.Run("nothing to send", func(t *testing.T) {
		svc.api = func(rest.Request) (*rest.Response, error) {
			t.Fatal("api must not be called")
			return nil, nil
		}
		assert.NoError(t, svc.sendMessage(&core.EmailMessage{Subject: "x", BodyStr: "y"}))
	})
}
