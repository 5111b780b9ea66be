package whatsmeow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	wa "go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/LeventeLantos/boleto-reminder/internal/channel"
)

func translateEvent(evt any) (channel.Event, bool) {
	switch e := evt.(type) {
	case *events.Connected:
		return channel.Event{Kind: channel.EventConnected}, true
	case *events.PairSuccess:
		return channel.Event{Kind: channel.EventPaired}, true
	case *events.Disconnected:
		return channel.Event{Kind: channel.EventDisconnected, Err: errors.New("websocket disconnected")}, true
	case *events.LoggedOut:
		return channel.Event{Kind: channel.EventLoggedOut, Err: fmt.Errorf("logged out: %s", e.Reason.String())}, true
	case *events.StreamReplaced:
		return channel.Event{Kind: channel.EventFailure, Err: errors.New("stream replaced by another client")}, true
	case *events.ConnectFailure:
		return channel.Event{Kind: channel.EventFailure, Err: fmt.Errorf("connect failure: %s %s", e.Reason.String(), e.Message)}, true
	case *events.TemporaryBan:
		return channel.Event{Kind: channel.EventFailure, Err: fmt.Errorf("temporary ban: %s", e.String())}, true
	case *events.ClientOutdated:
		return channel.Event{Kind: channel.EventFailure, Err: errors.New("client outdated")}, true
	}
	return channel.Event{}, false
}

// translateQR maps QR channel items. Pairing success is reported by the
// PairSuccess event instead.
func translateQR(item wa.QRChannelItem) (channel.Event, bool) {
	switch item.Event {
	case wa.QRChannelEventCode:
		return channel.Event{Kind: channel.EventChallenge, Code: item.Code}, true
	case wa.QRChannelSuccess.Event:
		return channel.Event{}, false
	case wa.QRChannelTimeout.Event:
		return channel.Event{Kind: channel.EventChallengeExpired}, true
	}

	err := item.Error
	if err == nil {
		err = fmt.Errorf("qr channel: %s", item.Event)
	}
	return channel.Event{Kind: channel.EventFailure, Err: err}, true
}

func parseRecipient(to string) (types.JID, error) {
	if !strings.Contains(to, "@") {
		to += "@" + types.DefaultUserServer
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return types.JID{}, fmt.Errorf("parse recipient %q: %w", to, err)
	}
	if jid.User == "" {
		return types.JID{}, errNoRecipient
	}
	if jid.Server == types.LegacyUserServer {
		jid.Server = types.DefaultUserServer
	}
	return jid, nil
}

// mediaKind picks the upload type for an attachment. Anything that is not an
// image goes out as a document.
func mediaKind(data []byte) (wa.MediaType, string) {
	kind, _ := filetype.Match(data)
	mime := kind.MIME.Value
	if mime == "" {
		mime = "application/octet-stream"
	}
	if filetype.IsImage(data) {
		return wa.MediaImage, mime
	}
	return wa.MediaDocument, mime
}

type uploader interface {
	Upload(ctx context.Context, plaintext []byte, appInfo wa.MediaType) (wa.UploadResponse, error)
}

func buildMessage(ctx context.Context, up uploader, msg channel.Message) (*waE2E.Message, error) {
	if msg.Attachment == nil {
		return &waE2E.Message{Conversation: proto.String(msg.Body)}, nil
	}

	media, mime := mediaKind(msg.Attachment.Data)
	resp, err := up.Upload(ctx, msg.Attachment.Data, media)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", msg.Attachment.Name, err)
	}

	if media == wa.MediaImage {
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(msg.Body),
			Mimetype:      proto.String(mime),
			URL:           proto.String(resp.URL),
			DirectPath:    proto.String(resp.DirectPath),
			MediaKey:      resp.MediaKey,
			FileEncSHA256: resp.FileEncSHA256,
			FileSHA256:    resp.FileSHA256,
			FileLength:    proto.Uint64(resp.FileLength),
		}}, nil
	}

	name := msg.Attachment.Name
	return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Title:         proto.String(strings.TrimSuffix(name, filepath.Ext(name))),
		FileName:      proto.String(name),
		Caption:       proto.String(msg.Body),
		Mimetype:      proto.String(mime),
		URL:           proto.String(resp.URL),
		DirectPath:    proto.String(resp.DirectPath),
		MediaKey:      resp.MediaKey,
		FileEncSHA256: resp.FileEncSHA256,
		FileSHA256:    resp.FileSHA256,
		FileLength:    proto.Uint64(resp.FileLength),
	}}, nil
}
