package reliability

// IsRetryableHTTPStatus classifies retryable HTTP status codes from the
// synthesis and chat providers.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsFatalRecognizerCode classifies recognizer error codes that cannot be
// recovered by simply restarting the recognizer. Everything else (no speech,
// aborted utterance) is treated as benign.
func IsFatalRecognizerCode(code string) bool {
	switch code {
	case "not-allowed", "service-not-allowed", "audio-capture":
		return true
	default:
		return false
	}
}
