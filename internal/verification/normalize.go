package verification

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// The upstream payload has no fixed schema; every heuristic that
// inspects it lives in this file so the surface stays auditable. The
// phrase matching against free-text messages is an external-contract
// risk inherited from the upstream service and is preserved as-is.

var (
	alreadyCompletedRe = regexp.MustCompile(`(?i)verification already completed`)
	reviewPendingRe    = regexp.MustCompile(`(?i)document uploaded|waiting for review|awaiting review`)
)

// The two field priorities differ on purpose: progress checks trust the
// step marker first, terminal classification trusts the status field
// first.
var (
	stepFields   = []string{"currentStep", "current_step", "status", "state", "result"}
	statusFields = []string{"status", "state", "result", "currentStep", "current_step"}
)

func fieldOf(payload gjson.Result, fields []string) string {
	for _, field := range fields {
		if v := payload.Get(field); v.Exists() {
			return strings.ToLower(v.String())
		}
	}
	return ""
}

// stepOf extracts the lowercased step/status marker from whichever of
// the known field names is present.
func stepOf(payload gjson.Result) string {
	return fieldOf(payload, stepFields)
}

// statusOf is the terminal-status counterpart of stepOf.
func statusOf(payload gjson.Result) string {
	return fieldOf(payload, statusFields)
}

func isAlreadyCompleted(payload gjson.Result) bool {
	step := stepOf(payload)
	if step == "precheck_success" || step == "completed" {
		return true
	}
	return alreadyCompletedRe.MatchString(payload.Get("message").String())
}

func isReviewPending(payload gjson.Result) bool {
	if isAlreadyCompleted(payload) {
		return false
	}
	switch stepOf(payload) {
	case "pending", "processing", "queued", "review":
		return true
	}
	return reviewPendingRe.MatchString(payload.Get("message").String())
}

// stillPolling reports whether a poll response means the verification
// is not finished yet.
func stillPolling(payload gjson.Result) bool {
	switch stepOf(payload) {
	case "pending", "processing", "queued":
		return true
	}
	return false
}

func checkTokenOf(payload gjson.Result) string {
	if token := payload.Get("checkToken").String(); token != "" {
		return token
	}
	return payload.Get("token").String()
}

// normalize collapses an arbitrary upstream payload into a terminal
// Result. Success wins over everything: an explicit success flag, a
// SUCCESS/PRECHECK_SUCCESS status, the already-completed phrase, or the
// presence of a result URL. SkipConsume is set whenever the
// already-completed signature is detected, regardless of which branch
// produced the status.
func normalize(payload gjson.Result) Result {
	statusRaw := strings.ToUpper(statusOf(payload))
	message := payload.Get("message").String()
	alreadyCompleted := isAlreadyCompleted(payload)

	resultURL := payload.Get("resultUrl").String()
	if resultURL == "" {
		resultURL = payload.Get("url").String()
	}

	isSuccess := payload.Get("success").Bool() ||
		statusRaw == "SUCCESS" ||
		statusRaw == "PRECHECK_SUCCESS" ||
		alreadyCompletedRe.MatchString(message) ||
		resultURL != ""

	status := StatusFail
	switch {
	case isSuccess:
		status = StatusSuccess
	case statusRaw == "ERROR":
		status = StatusError
	case statusRaw == "TIMEOUT":
		status = StatusTimeout
	}

	return Result{
		Status:            status,
		ResultURL:         resultURL,
		Message:           message,
		ErrorCode:         payload.Get("errorCode").String(),
		VerificationID:    payload.Get("verificationId").String(),
		UpstreamRequestID: payload.Get("upstreamReqId").String(),
		SkipConsume:       alreadyCompleted,
	}
}

// parsePayload interprets raw event/poll data as a JSON object, falling
// back to wrapping plain text as a message-only payload.
func parsePayload(data string) gjson.Result {
	if gjson.Valid(data) && gjson.Parse(data).IsObject() {
		return gjson.Parse(data)
	}
	wrapped, _ := sjson.Set(`{}`, "message", data)
	return gjson.Parse(wrapped)
}
