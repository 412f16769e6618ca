// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldContentID = "content_id"
	FieldViewerID  = "viewer_id"
	FieldTxnID     = "txn_id"

	// Process fields
	FieldComponent = "component"
	FieldEvent     = "event"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Monetization fields
	FieldAmount    = "amount_usd"
	FieldKind      = "kind"
	FieldRecipient = "recipient"

	// Asset fields
	FieldRef  = "ref"
	FieldURL  = "url"
	FieldPath = "path"
)
