package gateway

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"lanchat/internal/apperr"
	"lanchat/internal/metrics"
	"lanchat/internal/model"
	"lanchat/internal/router"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

// decode unmarshals and validates an event payload
func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return apperr.ErrInvalidPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, "invalid payload", err)
	}
	if err := validate.Struct(dst); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) && len(ves) > 0 {
			return fieldError(ves[0])
		}
		return apperr.Wrap(apperr.CodeInvalidArgument, "invalid payload", err)
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	if fe.Tag() == "notblank" || fe.Tag() == "required" {
		switch fe.Field() {
		case "content":
			return apperr.ErrEmptyContent
		case "senderId":
			return apperr.ErrMissingSender
		case "toUserId":
			return apperr.ErrMissingTarget
		}
		return apperr.InvalidArg(fe.Field() + " is required")
	}
	return apperr.InvalidArg(fe.Field() + " is too long")
}

// handleFrame applies the rate limit and dispatches one client frame
func (g *Gateway) handleFrame(c *Conn, raw []byte) {
	var env model.Envelope
	decodeErr := json.Unmarshal(raw, &env)

	// malformed frames count against the budget too
	if !c.limiter.Allow() {
		metrics.RateLimited.Inc()
		c.log.Warn().Str("event", env.Event).Msg("rate limit exceeded; discarding event")
		g.reply(c, env.AckID, nil, apperr.ErrRateLimited)
		return
	}

	if decodeErr != nil || env.Event == "" {
		c.log.Debug().Err(decodeErr).Msg("malformed frame")
		c.sendEvent(model.EventError, "", model.ErrorEvent{Error: "invalid frame"})
		return
	}

	switch env.Event {
	case model.EventIdentify:
		g.onIdentify(c, env)
	case model.EventSendMessage:
		g.onSendMessage(c, env)
	case model.EventSendPrivateMessage:
		g.onSendPrivateMessage(c, env)
	default:
		g.reply(c, env.AckID, nil, apperr.InvalidArg("unknown event "+env.Event))
	}
}

func (g *Gateway) onIdentify(c *Conn, env model.Envelope) {
	var p model.IdentifyPayload
	if err := decode(env.Data, &p); err != nil {
		g.reply(c, env.AckID, nil, err)
		return
	}
	if err := c.Identify(p.Username, p.UserID); err != nil {
		if errors.Is(err, errConnClosed) {
			return
		}
		c.log.Warn().Err(err).Str("claimed_user_id", p.UserID).Msg("identify rejected")
		g.reply(c, env.AckID, nil, err)
		return
	}
	c.log.Info().Str("username", p.Username).Msg("identified")
	g.reply(c, env.AckID, &model.Ack{}, nil)
}

func (g *Gateway) onSendMessage(c *Conn, env model.Envelope) {
	var p model.SendMessagePayload
	if err := decode(env.Data, &p); err != nil {
		g.reply(c, env.AckID, nil, err)
		return
	}
	if p.SenderID != c.identity.UserID {
		c.log.Warn().Str("claimed_sender_id", p.SenderID).Msg("public message sender differs from credential")
	}

	ack, err := g.router.SendPublic(c.ctx, router.PublicMessage{
		SenderID:   p.SenderID,
		SenderName: p.SenderName,
		Content:    p.Content,
	})
	if err != nil {
		g.reply(c, env.AckID, nil, err)
		return
	}
	g.reply(c, env.AckID, &model.Ack{MessageID: ack.MessageID, CreatedAt: &ack.CreatedAt}, nil)
}

func (g *Gateway) onSendPrivateMessage(c *Conn, env model.Envelope) {
	if c.State() != StateIdentified {
		g.reply(c, env.AckID, nil, apperr.ErrNotIdentified)
		return
	}
	var p model.SendPrivateMessagePayload
	if err := decode(env.Data, &p); err != nil {
		g.reply(c, env.AckID, nil, err)
		return
	}
	if p.SenderID != c.identity.UserID {
		g.reply(c, env.AckID, nil, apperr.ErrUserMismatch)
		return
	}

	ack, err := g.router.SendPrivate(c.ctx, router.PrivateMessage{
		SenderID:    p.SenderID,
		SenderName:  p.SenderName,
		RecipientID: p.ToUserID,
		Content:     p.Content,
	})
	if err != nil {
		g.reply(c, env.AckID, nil, err)
		return
	}
	delivered := ack.Delivered
	g.reply(c, env.AckID, &model.Ack{MessageID: ack.MessageID, CreatedAt: &ack.CreatedAt, Delivered: &delivered}, nil)
}

// reply answers through an ack when the client asked for one, otherwise
// reports failures as an error event.
func (g *Gateway) reply(c *Conn, ackID string, ok *model.Ack, err error) {
	if ackID == "" {
		if err != nil {
			c.sendEvent(model.EventError, "", model.ErrorEvent{Error: apperr.PublicMessage(err)})
		}
		return
	}

	ack := model.Ack{AckID: ackID}
	if err != nil {
		ack.Error = apperr.PublicMessage(err)
	} else {
		if ok != nil {
			ack = *ok
			ack.AckID = ackID
		}
		ack.OK = true
	}
	c.sendEvent(model.EventAck, ackID, ack)
}
