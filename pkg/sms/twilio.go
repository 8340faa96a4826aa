package sms

import (
	"context"
	"errors"
	"net/http"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

type TwilioProvider struct {
	api            messageCreator
	fromNumber     string
	statusCallback string
}

// NewTwilioProvider builds a provider. When statusCallback is set Twilio
// posts delivery receipts for every message to that URL.
func NewTwilioProvider(accountSID, authToken, fromNumber, statusCallback string) *TwilioProvider {
	restClient := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioProvider{
		api:            restClient.Api,
		fromNumber:     fromNumber,
		statusCallback: statusCallback,
	}
}

func (t *TwilioProvider) SendSMS(ctx context.Context, request *SMSRequest) (*SMSResponse, error) {
	if err := ctx.Err(); err != nil {
		return failure(ErrCodeUnavailable, err), err
	}

	params := &api.CreateMessageParams{}
	params.SetTo(request.To)
	params.SetFrom(t.getFromNumber(request.From))
	params.SetBody(request.Message)
	if t.statusCallback != "" {
		params.SetStatusCallback(t.statusCallback)
	}

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		return failure(classifyTwilioError(err), err), err
	}

	out := &SMSResponse{Status: "sent"}
	if resp.Sid != nil {
		out.MessageID = *resp.Sid
	}
	if resp.Status != nil {
		out.Status = string(*resp.Status)
	}
	return out, nil
}

func classifyTwilioError(err error) string {
	var restErr *client.TwilioRestError
	if !errors.As(err, &restErr) {
		return ErrCodeUnavailable
	}

	switch restErr.Code {
	case 21211, 21614, 21217:
		return ErrCodeInvalidPhone
	case 21610:
		return ErrCodeBlacklisted
	case 21408, 21612:
		return ErrCodePermissionDenied
	case 20429, 14107:
		return ErrCodeRateLimited
	}

	switch {
	case restErr.Status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case restErr.Status >= http.StatusInternalServerError:
		return ErrCodeUnavailable
	default:
		return ErrCodeUnknown
	}
}

func (t *TwilioProvider) getFromNumber(from string) string {
	if from != "" {
		return from
	}
	return t.fromNumber
}
