package api

import "time"

// Contract from GET /contract/find and /contract/suggest.
type Contract struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	ContractMaturityID int64  `json:"contractMaturityId"`
}

// AccessTokenRequest is the body of POST /auth/accesstokenrequest.
// Ticket is only set when retrying after a time-penalty challenge.
type AccessTokenRequest struct {
	Name       string `json:"name"`
	Password   string `json:"password"`
	AppID      string `json:"appId,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
	CID        string `json:"cid,omitempty"`
	Sec        string `json:"sec,omitempty"`
	DeviceID   string `json:"deviceId,omitempty"`
	Ticket     string `json:"p-ticket,omitempty"`
}

// AccessTokenResponse from POST /auth/accesstokenrequest.
type AccessTokenResponse struct {
	ErrorText      string    `json:"errorText,omitempty"`
	AccessToken    string    `json:"accessToken"`
	MDAccessToken  string    `json:"mdAccessToken,omitempty"`
	ExpirationTime time.Time `json:"expirationTime"`
	UserID         int64     `json:"userId"`
	UserStatus     string    `json:"userStatus"`
	Name           string    `json:"name"`
	HasLive        bool      `json:"hasLive"`
}
