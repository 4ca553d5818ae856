package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestNormalizeSuccessVariants(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"explicit flag", `{"success":true}`},
		{"status field", `{"status":"SUCCESS"}`},
		{"lowercase status", `{"status":"success"}`},
		{"state field", `{"state":"SUCCESS"}`},
		{"precheck success", `{"currentStep":"PRECHECK_SUCCESS"}`},
		{"already completed phrase", `{"message":"Verification already completed"}`},
		{"result url present", `{"resultUrl":"https://x/y"}`},
		{"bare url field", `{"url":"https://x/y"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := normalize(gjson.Parse(tc.payload))
			assert.Equal(t, StatusSuccess, res.Status)
		})
	}
}

func TestNormalizeDefaultsToFail(t *testing.T) {
	res := normalize(gjson.Parse(`{"status":"REJECTED","message":"document unreadable"}`))
	assert.Equal(t, StatusFail, res.Status)
	assert.Equal(t, "document unreadable", res.Message)
}

func TestNormalizeExplicitErrorAndTimeout(t *testing.T) {
	assert.Equal(t, StatusError, normalize(gjson.Parse(`{"status":"ERROR"}`)).Status)
	assert.Equal(t, StatusTimeout, normalize(gjson.Parse(`{"status":"TIMEOUT"}`)).Status)
}

func TestNormalizeSkipConsume(t *testing.T) {
	res := normalize(gjson.Parse(`{"message":"Verification already completed","resultUrl":"https://x/y"}`))
	assert.Equal(t, StatusSuccess, res.Status)
	assert.True(t, res.SkipConsume)

	res = normalize(gjson.Parse(`{"currentStep":"completed"}`))
	assert.True(t, res.SkipConsume)

	res = normalize(gjson.Parse(`{"status":"SUCCESS"}`))
	assert.False(t, res.SkipConsume)
}

func TestNormalizeCarriesMetadata(t *testing.T) {
	res := normalize(gjson.Parse(`{
		"status":"SUCCESS",
		"resultUrl":"https://x/y",
		"errorCode":"E0",
		"verificationId":"6a00000000000000000000aa",
		"upstreamReqId":"req-9"
	}`))
	assert.Equal(t, "https://x/y", res.ResultURL)
	assert.Equal(t, "E0", res.ErrorCode)
	assert.Equal(t, "6a00000000000000000000aa", res.VerificationID)
	assert.Equal(t, "req-9", res.UpstreamRequestID)
}

func TestNormalizeStatusFieldWinsOverStep(t *testing.T) {
	// A payload can carry both a progress marker and a terminal status;
	// classification must trust the status field.
	res := normalize(gjson.Parse(`{"currentStep":"verified","status":"SUCCESS"}`))
	assert.Equal(t, StatusSuccess, res.Status)

	res = normalize(gjson.Parse(`{"currentStep":"processing","status":"ERROR"}`))
	assert.Equal(t, StatusError, res.Status)

	// without a status field the step marker still classifies
	assert.Equal(t, "success", statusOf(gjson.Parse(`{"currentStep":"SUCCESS"}`)))
}

func TestStepOfFieldPriority(t *testing.T) {
	assert.Equal(t, "upload", stepOf(gjson.Parse(`{"currentStep":"UPLOAD","status":"ignored"}`)))
	assert.Equal(t, "upload", stepOf(gjson.Parse(`{"current_step":"UPLOAD"}`)))
	assert.Equal(t, "done", stepOf(gjson.Parse(`{"state":"done"}`)))
	assert.Empty(t, stepOf(gjson.Parse(`{}`)))
}

func TestIsReviewPending(t *testing.T) {
	assert.True(t, isReviewPending(gjson.Parse(`{"status":"pending"}`)))
	assert.True(t, isReviewPending(gjson.Parse(`{"status":"review"}`)))
	assert.True(t, isReviewPending(gjson.Parse(`{"message":"document uploaded, awaiting review"}`)))
	// already-completed wins over a pending-looking message
	assert.False(t, isReviewPending(gjson.Parse(`{"currentStep":"precheck_success","message":"waiting for review"}`)))
	assert.False(t, isReviewPending(gjson.Parse(`{"status":"SUCCESS"}`)))
}

func TestParsePayloadWrapsPlainText(t *testing.T) {
	payload := parsePayload("upstream exploded")
	assert.Equal(t, "upstream exploded", payload.Get("message").String())

	payload = parsePayload(`{"status":"SUCCESS"}`)
	assert.Equal(t, "SUCCESS", payload.Get("status").String())
}
