// Package messaging connects the page, the background coordinator, the content
// scripts running in site tabs and the popup through typed request/response envelopes.
package messaging

import (
	"encoding/json"
	"fmt"

	"cart-autofill/internal/types"
)

// Actions carried by envelopes
const (
	ActionStartAutomation    = "startAutomation"
	ActionAutomationResponse = "automationResponse"
	ActionProgressUpdate     = "progressUpdate"
)

// Sources tag envelopes crossing the page bridge
const (
	SourceApp       = "app"
	SourceExtension = "extension"
)

// Well-known addresses on the bus
const (
	AddrBackground = "background"
	AddrPopup      = "popup"
)

// TabAddress returns the address of the content script in tab id
func TabAddress(id int) string {
	return fmt.Sprintf("tab:%d", id)
}

// Envelope is the single message shape exchanged between contexts
type Envelope struct {
	ID       string             `json:"id,omitempty"`
	Source   string             `json:"source,omitempty"`
	Action   string             `json:"action,omitempty"`
	Site     string             `json:"site,omitempty"`
	Items    []types.ExportItem `json:"items,omitempty"`
	Success  []types.ExportItem `json:"success,omitempty"`
	Failed   []types.ExportItem `json:"failed,omitempty"`
	Error    string             `json:"error,omitempty"`
	Progress float64            `json:"progress,omitempty"`
	Message  string             `json:"message,omitempty"`
}

// ErrorEnvelope returns a reply carrying only an error message
func ErrorEnvelope(message string) Envelope {
	return Envelope{Error: message}
}

// ResultEnvelope returns a reply carrying an automation result
func ResultEnvelope(result types.AutomationResult) Envelope {
	return Envelope{Success: result.Success, Failed: result.Failed}
}

// Result returns the automation result an envelope carries, never with nil partitions
func (e Envelope) Result() types.AutomationResult {
	result := types.NewAutomationResult()
	result.Success = append(result.Success, e.Success...)
	result.Failed = append(result.Failed, e.Failed...)
	return result
}

// MarshalJSON always writes both partitions of a result, even when one is empty,
// and always writes the percentage of a progress update, even at 0.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	if e.Action == ActionProgressUpdate {
		return json.Marshal(struct {
			plain
			Progress float64 `json:"progress"`
		}{plain(e), e.Progress})
	}
	if e.Success == nil && e.Failed == nil {
		return json.Marshal(plain(e))
	}
	result := e.Result()
	return json.Marshal(struct {
		plain
		Success []types.ExportItem `json:"success"`
		Failed  []types.ExportItem `json:"failed"`
	}{plain(e), result.Success, result.Failed})
}
