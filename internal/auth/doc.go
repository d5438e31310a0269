// Package auth acquires access tokens and resolves the time-penalty
// challenges the API returns when requests arrive too quickly.
//
// A challenge is a response payload carrying a p-ticket. The caller waits
// p-time seconds and resubmits the original request with the ticket
// attached. A payload that also sets p-captcha cannot be resolved without
// an operator and fails with ErrCaptchaRequired.
package auth
