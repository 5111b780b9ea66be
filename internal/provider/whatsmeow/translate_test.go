package whatsmeow

import (
	"context"
	"errors"
	"testing"

	wa "go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/LeventeLantos/boleto-reminder/internal/channel"
)

func TestTranslateEvent(t *testing.T) {
	cases := []struct {
		name string
		evt  any
		want channel.EventKind
	}{
		{"connected", &events.Connected{}, channel.EventConnected},
		{"paired", &events.PairSuccess{}, channel.EventPaired},
		{"disconnected", &events.Disconnected{}, channel.EventDisconnected},
		{"logged out", &events.LoggedOut{}, channel.EventLoggedOut},
		{"stream replaced", &events.StreamReplaced{}, channel.EventFailure},
		{"connect failure", &events.ConnectFailure{Message: "bad"}, channel.EventFailure},
		{"client outdated", &events.ClientOutdated{}, channel.EventFailure},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := translateEvent(tc.evt)
			if !ok {
				t.Fatalf("expected %T to translate", tc.evt)
			}
			if got.Kind != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got.Kind)
			}
		})
	}

	if _, ok := translateEvent(&events.Receipt{}); ok {
		t.Fatalf("unrelated events must be ignored")
	}
}

func TestTranslateQR(t *testing.T) {
	ev, ok := translateQR(wa.QRChannelItem{Event: wa.QRChannelEventCode, Code: "2@abc"})
	if !ok || ev.Kind != channel.EventChallenge || ev.Code != "2@abc" {
		t.Fatalf("unexpected code translation: %+v ok=%v", ev, ok)
	}

	if _, ok := translateQR(wa.QRChannelSuccess); ok {
		t.Fatalf("success is reported through PairSuccess")
	}

	ev, ok = translateQR(wa.QRChannelTimeout)
	if !ok || ev.Kind != channel.EventChallengeExpired {
		t.Fatalf("unexpected timeout translation: %+v", ev)
	}

	boom := errors.New("boom")
	ev, ok = translateQR(wa.QRChannelItem{Event: wa.QRChannelEventError, Error: boom})
	if !ok || ev.Kind != channel.EventFailure || !errors.Is(ev.Err, boom) {
		t.Fatalf("unexpected error translation: %+v", ev)
	}
}

func TestParseRecipient(t *testing.T) {
	cases := map[string]string{
		"5511988887777@s.whatsapp.net": "5511988887777@s.whatsapp.net",
		"5511988887777@c.us":           "5511988887777@s.whatsapp.net",
		"5511988887777":                "5511988887777@s.whatsapp.net",
	}
	for in, want := range cases {
		jid, err := parseRecipient(in)
		if err != nil {
			t.Fatalf("parseRecipient(%q) error: %v", in, err)
		}
		if jid.String() != want {
			t.Fatalf("parseRecipient(%q) = %s, want %s", in, jid.String(), want)
		}
	}

	if _, err := parseRecipient("@" + types.DefaultUserServer); err == nil {
		t.Fatalf("expected error for empty user")
	}
}

func TestMediaKind(t *testing.T) {
	pdf := []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj")
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

	media, mime := mediaKind(pdf)
	if media != wa.MediaDocument || mime != "application/pdf" {
		t.Fatalf("pdf: got %v %s", media, mime)
	}

	media, mime = mediaKind(png)
	if media != wa.MediaImage || mime != "image/png" {
		t.Fatalf("png: got %v %s", media, mime)
	}

	media, mime = mediaKind([]byte("plain text"))
	if media != wa.MediaDocument || mime != "application/octet-stream" {
		t.Fatalf("unknown: got %v %s", media, mime)
	}
}

type fakeUploader struct {
	got wa.MediaType
}

func (f *fakeUploader) Upload(_ context.Context, data []byte, media wa.MediaType) (wa.UploadResponse, error) {
	f.got = media
	return wa.UploadResponse{URL: "https://mmg.example/x", DirectPath: "/x", FileLength: uint64(len(data))}, nil
}

func TestBuildMessage(t *testing.T) {
	text, err := buildMessage(context.Background(), &fakeUploader{}, channel.Message{Body: "oi"})
	if err != nil {
		t.Fatalf("buildMessage error: %v", err)
	}
	if text.GetConversation() != "oi" {
		t.Fatalf("expected conversation text, got %+v", text)
	}

	up := &fakeUploader{}
	doc, err := buildMessage(context.Background(), up, channel.Message{
		Body:       "Segue seu boleto",
		Attachment: &channel.Attachment{Name: "boleto-123.pdf", Data: []byte("%PDF-1.4 x")},
	})
	if err != nil {
		t.Fatalf("buildMessage error: %v", err)
	}
	if up.got != wa.MediaDocument {
		t.Fatalf("expected document upload, got %v", up.got)
	}
	dm := doc.GetDocumentMessage()
	if dm == nil || dm.GetFileName() != "boleto-123.pdf" || dm.GetTitle() != "boleto-123" || dm.GetCaption() != "Segue seu boleto" {
		t.Fatalf("unexpected document message: %+v", dm)
	}
}

func TestSendWithoutOpenIsUnavailable(t *testing.T) {
	p := New(Config{StorePath: t.TempDir() + "/wa.db"})

	_, err := p.Send(context.Background(), channel.Message{To: "5511988887777@s.whatsapp.net", Body: "oi"})
	if !errors.Is(err, channel.ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable, got %v", err)
	}
}
