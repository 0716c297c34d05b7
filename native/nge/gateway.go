package nge

import (
	"encoding/json"

	"daogov/errs"
)

// wirePayload is the on-the-wire shape of the inner payload the Membership
// Token Gateway forwards via execute_dao (spec §4.5: "{sender, token_id,
// msg}"). Only the fields relevant to Kind are populated by the caller.
type wirePayload struct {
	Kind        PayloadKind `json:"kind"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Link        string      `json:"link,omitempty"`
	PollID      uint64      `json:"poll_id,omitempty"`
	Vote        uint8       `json:"vote,omitempty"`
	DelegatorID string      `json:"delegator_id,omitempty"`
}

// ReceiveNFT implements membership.Forwarder: it decodes the gateway's
// forwarded payload and dispatches it as the token id's inner call (spec
// §4.4 receive).
func (e *Engine) ReceiveNFT(sender, tokenID string, msg json.RawMessage) error {
	var w wirePayload
	if err := json.Unmarshal(msg, &w); err != nil {
		return errs.New(errs.KindDataShouldBeGiven, "payload failed to decode: %v", err)
	}
	payload := Payload{
		Kind:        w.Kind,
		CreatePoll:  CreatePollMsg{Title: w.Title, Description: w.Description, Link: w.Link},
		PollID:      w.PollID,
		Vote:        w.Vote,
		DelegatorID: w.DelegatorID,
	}
	_, err := e.Dispatch(sender, tokenID, payload)
	return err
}
