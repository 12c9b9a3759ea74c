// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"

	"github.com/mrz1836/postmark"
	"github.com/samber/oops"
)

type postmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkTransport delivers through the Postmark API.
type PostmarkTransport struct {
	client postmarkSender
}

// NewPostmarkTransport creates a Postmark transport.
func NewPostmarkTransport(serverToken, accountToken string) (*PostmarkTransport, error) {
	if serverToken == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("postmark server token is required")
	}
	return &PostmarkTransport{client: postmark.NewClient(serverToken, accountToken)}, nil
}

// Deliver sends msg. Errors reported by Postmark in the response body are
// rejections of the message itself and are not retried.
func (t *PostmarkTransport) Deliver(ctx context.Context, msg Message) error {
	resp, err := t.client.SendEmail(ctx, postmark.Email{
		From:       msg.From,
		ReplyTo:    msg.ReplyTo,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTML,
		TrackLinks: "None",
	})
	if err != nil {
		return oops.Code("POSTMARK_REQUEST_FAILED").Wrap(err)
	}
	if resp.ErrorCode > 0 {
		return Permanent(oops.Code("POSTMARK_REJECTED").
			With("postmark_code", resp.ErrorCode).
			Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
