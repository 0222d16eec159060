package broker

import (
	"encoding/base64"
	"encoding/json"
)

// stateTypeMarker discriminates this broker's own state values from anything
// else that might travel through the upstream provider's state channel.
const stateTypeMarker = "calbridge_mcp_auth"

// StateEnvelope is the payload encoded into the upstream provider's state
// parameter. It exists only on the wire between authorize and the callback;
// it is never persisted.
type StateEnvelope struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	AccountID string `json:"account_id"`
}

// EncodeAuthState packs a session/account pair into an opaque state string.
func EncodeAuthState(sessionID, accountID string) (string, error) {
	payload, err := json.Marshal(StateEnvelope{
		Type:      stateTypeMarker,
		SessionID: sessionID,
		AccountID: accountID,
	})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// ParseAuthState decodes a state string minted by EncodeAuthState. It returns
// nil, never an error, for empty or malformed input and for payloads whose
// type marker is not ours: the upstream state channel is shared and may carry
// values this broker did not originate.
func ParseAuthState(raw string) *StateEnvelope {
	if raw == "" {
		return nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		// Tolerate padded input from intermediaries that re-encode.
		payload, err = base64.URLEncoding.DecodeString(raw)
		if err != nil {
			return nil
		}
	}
	var env StateEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil
	}
	if env.Type != stateTypeMarker {
		return nil
	}
	return &env
}
