package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/go-faster/jx"

	"nesbot/log"
)

const apiBase = "https://discord.com/api/v10"

var modRest = log.ModRest

// Client performs REST calls against the Discord API.
type Client struct {
	token string
	base  string
	hc    *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		token: token,
		base:  apiBase,
		hc:    &http.Client{Timeout: 30 * time.Second},
	}
}

const (
	callbackDeferredUpdate = 6
	callbackUpdateMessage  = 7
)

// CreateMessage posts a new message with the button grid and one uploaded
// artifact to a channel. Returns the created message, whose first attachment
// id identifies the uploaded artifact.
func (c *Client) CreateMessage(ctx context.Context, channel Snowflake, rows []ActionRow, f *File) (*Message, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("components")
	encodeRows(&e, rows)
	e.FieldStart("attachments")
	encodeNewAttachment(&e, f)
	e.ObjEnd()

	body, contentType, err := multipartBody(e.Bytes(), f)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/channels/%s/messages", c.base, channel)
	data, err := c.do(ctx, http.MethodPost, url, contentType, body)
	if err != nil {
		return nil, err
	}
	return decodeMessage(data)
}

// DeferUpdate acknowledges a component interaction without changing the
// message, buying time for a slow follow-up edit.
func (c *Client) DeferUpdate(ctx context.Context, i *Interaction) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("type")
	e.Int(callbackDeferredUpdate)
	e.ObjEnd()

	url := fmt.Sprintf("%s/interactions/%s/%s/callback", c.base, i.ID, i.Token)
	_, err := c.do(ctx, http.MethodPost, url, "application/json", bytes.NewReader(e.Bytes()))
	return err
}

// UpdateKeep acknowledges a component interaction by updating the message
// components while keeping the currently displayed artifact by reference.
// No bytes are re-uploaded.
func (c *Client) UpdateKeep(ctx context.Context, i *Interaction, rows []ActionRow, ref Snowflake) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("type")
	e.Int(callbackUpdateMessage)
	e.FieldStart("data")
	e.ObjStart()
	e.FieldStart("components")
	encodeRows(&e, rows)
	e.FieldStart("attachments")
	e.ArrStart()
	e.ObjStart()
	e.FieldStart("id")
	e.Str(string(ref))
	e.ObjEnd()
	e.ArrEnd()
	e.ObjEnd()
	e.ObjEnd()

	url := fmt.Sprintf("%s/interactions/%s/%s/callback", c.base, i.ID, i.Token)
	_, err := c.do(ctx, http.MethodPost, url, "application/json", bytes.NewReader(e.Bytes()))
	return err
}

// EditOriginal replaces the interaction's original message with new
// components and a freshly uploaded artifact, dropping the previous
// attachment. Returns the edited message so the caller can record the new
// attachment id.
func (c *Client) EditOriginal(ctx context.Context, i *Interaction, rows []ActionRow, f *File) (*Message, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("components")
	encodeRows(&e, rows)
	e.FieldStart("attachments")
	encodeNewAttachment(&e, f)
	e.ObjEnd()

	body, contentType, err := multipartBody(e.Bytes(), f)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/webhooks/%s/%s/messages/@original", c.base, i.ApplicationID, i.Token)
	data, err := c.do(ctx, http.MethodPatch, url, contentType, body)
	if err != nil {
		return nil, err
	}
	return decodeMessage(data)
}

// encodeNewAttachment writes the attachments array declaring one new upload
// bound to multipart part "files[0]".
func encodeNewAttachment(e *jx.Encoder, f *File) {
	e.ArrStart()
	e.ObjStart()
	e.FieldStart("id")
	e.Int(0)
	e.FieldStart("filename")
	e.Str(f.Name)
	e.ObjEnd()
	e.ArrEnd()
}

func multipartBody(payload []byte, f *File) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	jsonHdr := textproto.MIMEHeader{}
	jsonHdr.Set("Content-Disposition", `form-data; name="payload_json"`)
	jsonHdr.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(jsonHdr)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(payload); err != nil {
		return nil, "", err
	}

	fileHdr := textproto.MIMEHeader{}
	fileHdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[0]"; filename=%q`, f.Name))
	fileHdr.Set("Content-Type", f.ContentType)
	part, err = mw.CreatePart(fileHdr)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", err
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, method, url, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		modRest.WarnZ("api request failed").
			String("method", method).
			String("url", url).
			Int("status", resp.StatusCode).
			End()
		return nil, fmt.Errorf("discord api: %s %s: status %d", method, url, resp.StatusCode)
	}
	return data, nil
}
