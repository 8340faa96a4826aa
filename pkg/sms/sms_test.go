package sms

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeTwilio struct {
	err    error
	params *api.CreateMessageParams
}

func (f *fakeTwilio) CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &api.ApiV2010Message{Sid: &sid}, nil
}

type fakeSNS struct {
	err   error
	input *sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
}

func TestTwilioProvider_SendSMS(t *testing.T) {
	fake := &fakeTwilio{}
	p := &TwilioProvider{api: fake, fromNumber: "+15550000000", statusCallback: "https://x/webhooks/twilio/sms-status"}

	resp, err := p.SendSMS(context.Background(), &SMSRequest{To: "+15551234567", Message: "SOS"})
	require.NoError(t, err)
	assert.Equal(t, "SM123", resp.MessageID)
	assert.Equal(t, "sent", resp.Status)
	assert.Equal(t, "+15550000000", *fake.params.From)
	assert.Equal(t, "https://x/webhooks/twilio/sms-status", *fake.params.StatusCallback)
}

func TestClassifyTwilioError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid number", &client.TwilioRestError{Code: 21211, Status: 400}, ErrCodeInvalidPhone},
		{"unsubscribed", &client.TwilioRestError{Code: 21610, Status: 400}, ErrCodeBlacklisted},
		{"region disabled", &client.TwilioRestError{Code: 21408, Status: 400}, ErrCodePermissionDenied},
		{"throttled", &client.TwilioRestError{Code: 1, Status: http.StatusTooManyRequests}, ErrCodeRateLimited},
		{"server error", &client.TwilioRestError{Code: 1, Status: http.StatusBadGateway}, ErrCodeUnavailable},
		{"network", errors.New("dial tcp: timeout"), ErrCodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyTwilioError(tt.err))
		})
	}
}

func TestAWSSNSProvider_SendSMS(t *testing.T) {
	fake := &fakeSNS{}
	p := &AWSSNSProvider{client: fake, senderID: "SOSAlert"}

	resp, err := p.SendSMS(context.Background(), &SMSRequest{To: "+15551234567", Message: "SOS from Ann"})
	require.NoError(t, err)
	assert.Equal(t, "sns-1", resp.MessageID)
	assert.Equal(t, "SOS from Ann", aws.ToString(fake.input.Message))
	assert.Equal(t, "Transactional", aws.ToString(fake.input.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue))
	assert.Equal(t, "SOSAlert", aws.ToString(fake.input.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
}

func TestAWSSNSProvider_Rejected(t *testing.T) {
	fake := &fakeSNS{err: &smithy.GenericAPIError{Code: "InvalidParameter", Message: "bad number"}}
	p := &AWSSNSProvider{client: fake}

	resp, err := p.SendSMS(context.Background(), &SMSRequest{To: "123", Message: "SOS"})
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidPhone, resp.ErrorCode)
	assert.Equal(t, "failed", resp.Status)
}
