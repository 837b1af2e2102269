package log

// Field names shared by every component so log lines can be joined on them.
const (
	FieldComponent = "component"
	FieldSession   = "session_id"
	FieldClient    = "client_id"
	FieldEntry     = "entry_id"
	FieldFile      = "file"
	FieldStatus    = "status"
	FieldDelay     = "delay"
)
