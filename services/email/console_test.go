package emailsvc

import (
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/jamii/core"
)

type noticeData struct {
	Name          string
	Plan          string
	EndDate       time.Time
	DowngradeDate time.Time
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	ResetSentMessages()
	conf := &core.Config{AppName: "Jamii", FrontendBaseURL: "http://localhost:8080"}
	svc := NewConsoleServiceMock(conf)

	end := time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := mail.Address{Name: "Rafiki", Address: "rafiki@test.tz"}
	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{to},
			Subject:      "Your subscription has expired",
			TemplateName: "subscription_warning",
			TemplateData: noticeData{Name: to.Name, Plan: "gold", EndDate: end, DowngradeDate: end.Add(5 * 24 * time.Hour)},
		},
		&core.EmailMessage{Subject: "no recipient", BodyStr: "dropped"},
		&core.EmailMessage{To: []mail.Address{to}, Subject: "plain", BodyStr: "hello"},
	)

	require.Len(t, SentMessages, 2)
	warning := SentMessages[0]
	assert.Contains(t, warning.TextContent, "Hi Rafiki")
	assert.Contains(t, warning.TextContent, "Mar 6, 2021")
	assert.Contains(t, warning.HTMLContent, "<strong>gold</strong>")
	assert.True(t, strings.Contains(warning.HTMLContent, "/subscriptions"))

	plain := SentMessages[1]
	assert.Equal(t, "hello", plain.TextContent)
	assert.Empty(t, plain.HTMLContent)
}

func TestConsoleService_Wait(t *testing.T) {
	ResetSentMessages()
	svc := &consoleService{
		defaultFromEmail: mail.Address{Address: "noreply@test.tz"},
		subjPrefix:       "[Jamii] ",
		disableOutput:    true,
	}

	to := mail.Address{Address: "rafiki@test.tz"}
	messages := make([]*core.EmailMessage, 0, 20)
	for i := 0; i < 20; i++ {
		messages = append(messages, &core.EmailMessage{To: []mail.Address{to}, Subject: "hello", BodyStr: "hello"})
	}
	svc.SendMessages(messages...)
	svc.Wait()

	assert.Len(t, SentMessages, 20)
}

func TestConsoleService_joinAddresses(t *testing.T) {
	svc := consoleService{}
	got := svc.joinAddresses([]mail.Address{{Address: "a@test.tz"}, {Name: "B", Address: "b@test.tz"}})
	assert.Equal(t, `<a@test.tz>, "B" <b@test.tz>`, got)
}
